package db

import (
	"context"
	"fmt"
	"time"
)

// TableCounts stores row counts per store table.
type TableCounts struct {
	CanonicalArticles int64 `json:"canonical_articles"`
	Variants          int64 `json:"variants"`
	Vectors           int64 `json:"vectors"`
	FullTexts         int64 `json:"full_texts"`
	Keywords          int64 `json:"keywords"`
	Categories        int64 `json:"categories"`
}

// StoreStats is the read model returned by the stats endpoint.
type StoreStats struct {
	Since           time.Time   `json:"since"`
	Totals          TableCounts `json:"totals"`
	VariantsScraped int64       `json:"variants_scraped_since"`
	CanonicalsSince int64       `json:"canonicals_created_since"`
}

// QueryStoreStats returns table totals plus what was written since the given instant.
func (p *Pool) QueryStoreStats(ctx context.Context, since time.Time) (*StoreStats, error) {
	stats := &StoreStats{Since: since.UTC()}

	const totalsQuery = `
SELECT
	(SELECT COUNT(*) FROM canonical_articles),
	(SELECT COUNT(*) FROM article_variants),
	(SELECT COUNT(*) FROM article_vectors),
	(SELECT COUNT(*) FROM article_full_texts),
	(SELECT COUNT(*) FROM article_keywords),
	(SELECT COUNT(*) FROM article_categories)
`
	if err := p.QueryRow(ctx, totalsQuery).Scan(
		&stats.Totals.CanonicalArticles,
		&stats.Totals.Variants,
		&stats.Totals.Vectors,
		&stats.Totals.FullTexts,
		&stats.Totals.Keywords,
		&stats.Totals.Categories,
	); err != nil {
		return nil, fmt.Errorf("query table totals: %w", err)
	}

	const recentQuery = `
SELECT
	(SELECT COUNT(*) FROM article_variants WHERE scraped_at >= ?),
	(SELECT COUNT(*) FROM canonical_articles WHERE created_at >= ?)
`
	if err := p.QueryRow(ctx, recentQuery, stats.Since, stats.Since).Scan(
		&stats.VariantsScraped,
		&stats.CanonicalsSince,
	); err != nil {
		return nil, fmt.Errorf("query recent writes: %w", err)
	}

	return stats, nil
}
