package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// DefaultKeywordLimit caps keyword lookups.
const DefaultKeywordLimit = 20

var ErrColumnNotAllowed = errors.New("table/column is not allowed for existence checks")

// existenceColumns whitelists the (table, column) pairs ValueExists may probe.
var existenceColumns = map[string]map[string]struct{}{
	"canonical_articles": {"id": {}, "url": {}, "title": {}},
	"article_variants":   {"id": {}, "url": {}, "canonical_id": {}, "title": {}},
	"article_vectors":    {"article_id": {}, "metadata": {}},
	"article_full_texts": {"article_id": {}},
	"article_keywords":   {"article_id": {}, "keyword": {}},
	"article_categories": {"id": {}, "article_id": {}, "category": {}},
}

// StoredVector is one row of the similarity corpus. Embedding is the raw
// text form of the vector; parsing is left to the caller so one bad row does
// not fail the whole listing.
type StoredVector struct {
	ArticleID string
	Metadata  string
	Embedding string
}

// ExistenceColumnAllowed reports whether ValueExists accepts table.column.
func ExistenceColumnAllowed(table, column string) bool {
	columns, ok := existenceColumns[strings.ToLower(strings.TrimSpace(table))]
	if !ok {
		return false
	}
	_, ok = columns[strings.ToLower(strings.TrimSpace(column))]
	return ok
}

// ValueExists reports whether value is present in table.column.
func (p *Pool) ValueExists(ctx context.Context, table, column string, value any) (bool, error) {
	if !ExistenceColumnAllowed(table, column) {
		return false, fmt.Errorf("%w: %s.%s", ErrColumnNotAllowed, table, column)
	}
	table = strings.ToLower(strings.TrimSpace(table))
	column = strings.ToLower(strings.TrimSpace(column))

	q, args, err := sq.Select("1").
		From(table).
		Where(sq.Eq{column: value}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build existence query: %w", err)
	}

	var one int
	if err := p.QueryRow(ctx, q, args...).Scan(&one); err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("check %s.%s existence: %w", table, column, err)
	}
	return true, nil
}

// ListCandidateVectors returns every stored vector except the one recorded
// for excludeURL and those whose metadata contains excludeOrigin
// (case-insensitive). An empty excludeOrigin disables the origin filter.
func (p *Pool) ListCandidateVectors(ctx context.Context, excludeURL, excludeOrigin string) ([]StoredVector, error) {
	const q = `
SELECT
	v.article_id,
	v.metadata,
	v.embedding
FROM article_vectors v
WHERE v.metadata <> ?
  AND (? = '' OR LOWER(v.metadata) NOT LIKE ? ESCAPE '\')
ORDER BY v.article_id
`

	origin := strings.ToLower(strings.TrimSpace(excludeOrigin))
	pattern := "%" + escapeLike(origin) + "%"

	rows, err := p.Query(ctx, q, strings.TrimSpace(excludeURL), origin, pattern)
	if err != nil {
		return nil, fmt.Errorf("query candidate vectors: %w", err)
	}
	defer rows.Close()

	vectors := make([]StoredVector, 0, 256)
	for rows.Next() {
		var row StoredVector
		if err := rows.Scan(&row.ArticleID, &row.Metadata, &row.Embedding); err != nil {
			return nil, fmt.Errorf("scan candidate vector: %w", err)
		}
		vectors = append(vectors, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate vectors: %w", err)
	}
	return vectors, nil
}

// KeywordsForArticle returns up to limit distinct keywords for an article id.
// A canonical id also collects keywords recorded on its variants.
func (p *Pool) KeywordsForArticle(ctx context.Context, articleID string, limit int) ([]string, error) {
	articleID = strings.TrimSpace(articleID)
	if articleID == "" {
		return nil, fmt.Errorf("article id is required")
	}
	if limit <= 0 || limit > DefaultKeywordLimit {
		limit = DefaultKeywordLimit
	}

	const q = `
SELECT DISTINCT k.keyword
FROM article_keywords k
WHERE k.article_id = ?
   OR k.article_id IN (
	SELECT v.id
	FROM article_variants v
	WHERE v.canonical_id = ?
)
ORDER BY k.keyword
LIMIT ?
`

	rows, err := p.Query(ctx, q, articleID, articleID, limit)
	if err != nil {
		return nil, fmt.Errorf("query keywords for %s: %w", articleID, err)
	}
	defer rows.Close()

	keywords := make([]string, 0, limit)
	for rows.Next() {
		var keyword string
		if err := rows.Scan(&keyword); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		keywords = append(keywords, keyword)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keywords: %w", err)
	}
	return keywords, nil
}

// CanonicalIDByURL returns the canonical id stored for url, or ErrNoRows.
func (p *Pool) CanonicalIDByURL(ctx context.Context, url string) (string, error) {
	const q = `
SELECT c.id
FROM canonical_articles c
WHERE c.url = ?
`

	var id string
	if err := p.QueryRow(ctx, q, strings.TrimSpace(url)).Scan(&id); err != nil {
		if IsNoRows(err) {
			return "", ErrNoRows
		}
		return "", fmt.Errorf("lookup canonical id by url: %w", err)
	}
	return id, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
