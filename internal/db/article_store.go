package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aakash091-dark/news-scraper-new/internal/globaltime"
)

// DefaultScrapeVersion tags variants written by the current scraper format.
const DefaultScrapeVersion = "SNAP-v1"

var errURLAlreadyStored = errors.New("url already stored")

// Category is one (category, subcategory) assignment from the classifier.
type Category struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// NewArticle is the write payload shared by both insert paths.
type NewArticle struct {
	Title         string
	URL           string
	Description   string
	Source        string
	PublishDate   string
	FullText      string
	Keywords      []string
	Categories    []Category
	ScrapeVersion string
}

// WriteResult describes the outcome of a store write. Created is false when
// the URL was already stored; the ids then point at the existing rows.
type WriteResult struct {
	CanonicalID string
	VariantID   string
	Created     bool
}

// InsertNewCanonical records a novel story: canonical row, its first variant,
// the story vector, full text, keywords and categories in one transaction.
// Full text, keywords and categories are keyed by the variant id.
func (p *Pool) InsertNewCanonical(ctx context.Context, article NewArticle, vector []float32) (WriteResult, error) {
	article = article.normalized()
	if err := article.validate(); err != nil {
		return WriteResult{}, err
	}
	if err := validateVector(vector); err != nil {
		return WriteResult{}, err
	}

	canonicalID := uuid.NewString()
	variantID := uuid.NewString()
	now := globaltime.UTC()

	err := p.runTx(ctx, "insert new canonical", func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoNothing: true,
		}).Create(&CanonicalArticle{
			ID:          canonicalID,
			Title:       article.Title,
			URL:         article.URL,
			Description: article.Description,
			NewsSource:  article.Source,
			PublishDate: article.PublishDate,
			CreatedAt:   now,
		})
		if res.Error != nil {
			return fmt.Errorf("insert canonical article: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errURLAlreadyStored
		}

		if err := tx.Create(&ArticleVariant{
			ID:            variantID,
			CanonicalID:   canonicalID,
			Title:         article.Title,
			URL:           article.URL,
			Description:   article.Description,
			PublishDate:   article.PublishDate,
			Source:        article.Source,
			ScrapeVersion: article.ScrapeVersion,
			ScrapedAt:     now,
		}).Error; err != nil {
			return fmt.Errorf("insert article variant: %w", err)
		}

		if err := tx.Create(&ArticleVector{
			ArticleID: canonicalID,
			Embedding: pgvector.NewVector(vector),
			Metadata:  article.URL,
			CreatedAt: now,
		}).Error; err != nil {
			return fmt.Errorf("insert article vector: %w", err)
		}

		return insertVariantFacetsTx(tx, variantID, article)
	})
	if err == nil {
		return WriteResult{CanonicalID: canonicalID, VariantID: variantID, Created: true}, nil
	}
	if errors.Is(err, errURLAlreadyStored) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return p.existingWriteResult(ctx, article.URL)
	}
	return WriteResult{}, err
}

// InsertDuplicateVariant attaches a near-duplicate occurrence to an existing
// canonical story. The story vector is left untouched.
func (p *Pool) InsertDuplicateVariant(ctx context.Context, canonicalID string, article NewArticle) (WriteResult, error) {
	canonicalID = strings.TrimSpace(canonicalID)
	if canonicalID == "" {
		return WriteResult{}, fmt.Errorf("canonical id is required")
	}
	article = article.normalized()
	if err := article.validate(); err != nil {
		return WriteResult{}, err
	}

	variantID := uuid.NewString()
	now := globaltime.UTC()

	err := p.runTx(ctx, "insert duplicate variant", func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoNothing: true,
		}).Create(&ArticleVariant{
			ID:            variantID,
			CanonicalID:   canonicalID,
			Title:         article.Title,
			URL:           article.URL,
			Description:   article.Description,
			PublishDate:   article.PublishDate,
			Source:        article.Source,
			ScrapeVersion: article.ScrapeVersion,
			ScrapedAt:     now,
		})
		if res.Error != nil {
			return fmt.Errorf("insert article variant: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errURLAlreadyStored
		}

		return insertVariantFacetsTx(tx, variantID, article)
	})
	if err == nil {
		return WriteResult{CanonicalID: canonicalID, VariantID: variantID, Created: true}, nil
	}
	if errors.Is(err, errURLAlreadyStored) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return p.existingWriteResult(ctx, article.URL)
	}
	return WriteResult{}, err
}

func insertVariantFacetsTx(tx *gorm.DB, variantID string, article NewArticle) error {
	if err := tx.Create(&ArticleFullText{
		ArticleID: variantID,
		Title:     article.Title,
		Body:      article.FullText,
	}).Error; err != nil {
		return fmt.Errorf("insert full text: %w", err)
	}

	if err := insertKeywordsTx(tx, variantID, article.Keywords); err != nil {
		return err
	}
	return insertCategoriesTx(tx, variantID, article.Categories)
}

func insertKeywordsTx(tx *gorm.DB, articleID string, keywords []string) error {
	rows := make([]ArticleKeyword, 0, len(keywords))
	for _, keyword := range uniqueKeywords(keywords) {
		rows = append(rows, ArticleKeyword{ArticleID: articleID, Keyword: keyword})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert keywords: %w", err)
	}
	return nil
}

func insertCategoriesTx(tx *gorm.DB, articleID string, categories []Category) error {
	rows := make([]ArticleCategory, 0, len(categories))
	for _, category := range uniqueCategories(categories) {
		rows = append(rows, ArticleCategory{
			ID:          uuid.NewString(),
			ArticleID:   articleID,
			Category:    category.Category,
			Subcategory: category.Subcategory,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert categories: %w", err)
	}
	return nil
}

// InsertKeywords adds keywords to an existing article id. Pairs already
// present are ignored.
func (p *Pool) InsertKeywords(ctx context.Context, articleID string, keywords []string) error {
	return p.runTx(ctx, "insert keywords", func(tx *gorm.DB) error {
		return insertKeywordsTx(tx, articleID, keywords)
	})
}

// InsertCategories adds category assignments to an existing article id.
// Assignments already present are ignored.
func (p *Pool) InsertCategories(ctx context.Context, articleID string, categories []Category) error {
	return p.runTx(ctx, "insert categories", func(tx *gorm.DB) error {
		return insertCategoriesTx(tx, articleID, categories)
	})
}

func (p *Pool) existingWriteResult(ctx context.Context, url string) (WriteResult, error) {
	const q = `
SELECT v.canonical_id, v.id
FROM article_variants v
WHERE v.url = ?
UNION ALL
SELECT c.id, ''
FROM canonical_articles c
WHERE c.url = ?
UNION ALL
SELECT vec.article_id, ''
FROM article_vectors vec
WHERE vec.metadata = ?
LIMIT 1
`

	var result WriteResult
	if err := p.QueryRow(ctx, q, url, url, url).Scan(&result.CanonicalID, &result.VariantID); err != nil {
		if IsNoRows(err) {
			return WriteResult{}, fmt.Errorf("resolve existing article for url %q: conflict reported but no row found", url)
		}
		return WriteResult{}, fmt.Errorf("resolve existing article for url %q: %w", url, err)
	}
	return result, nil
}

func (a NewArticle) normalized() NewArticle {
	out := a
	out.Title = strings.TrimSpace(a.Title)
	out.URL = strings.TrimSpace(a.URL)
	out.Description = strings.TrimSpace(a.Description)
	out.Source = strings.TrimSpace(a.Source)
	out.PublishDate = strings.TrimSpace(a.PublishDate)
	out.ScrapeVersion = strings.TrimSpace(a.ScrapeVersion)
	if out.ScrapeVersion == "" {
		out.ScrapeVersion = DefaultScrapeVersion
	}
	return out
}

func (a NewArticle) validate() error {
	if a.Title == "" {
		return fmt.Errorf("article title is required")
	}
	if a.URL == "" {
		return fmt.Errorf("article url is required")
	}
	return nil
}

func validateVector(vector []float32) error {
	if len(vector) != VectorDimensions {
		return fmt.Errorf("expected %d vector dimensions, got %d", VectorDimensions, len(vector))
	}
	for i, value := range vector {
		f := float64(value)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("vector has non-finite value at index %d", i)
		}
	}
	return nil
}

func uniqueKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, raw := range keywords {
		keyword := strings.TrimSpace(raw)
		if keyword == "" {
			continue
		}
		if _, ok := seen[keyword]; ok {
			continue
		}
		seen[keyword] = struct{}{}
		out = append(out, keyword)
	}
	return out
}

func uniqueCategories(categories []Category) []Category {
	seen := make(map[Category]struct{}, len(categories))
	out := make([]Category, 0, len(categories))
	for _, raw := range categories {
		category := Category{
			Category:    strings.TrimSpace(raw.Category),
			Subcategory: strings.TrimSpace(raw.Subcategory),
		}
		if category.Category == "" {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		out = append(out, category)
	}
	return out
}
