package db

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// VectorDimensions is the width of the stored embedding column.
const VectorDimensions = 768

// CanonicalArticle maps canonical_articles: one row per distinct story.
type CanonicalArticle struct {
	ID          string    `gorm:"column:id;size:36;primaryKey"`
	Title       string    `gorm:"column:title;type:text;not null"`
	URL         string    `gorm:"column:url;type:text;not null;uniqueIndex:ux_canonical_articles_url"`
	Description string    `gorm:"column:description;type:text;not null;default:''"`
	NewsSource  string    `gorm:"column:news_source;type:text;not null;default:''"`
	PublishDate string    `gorm:"column:publish_date;type:text;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (CanonicalArticle) TableName() string { return "canonical_articles" }

// ArticleVariant maps article_variants: one scraped occurrence of a story.
type ArticleVariant struct {
	ID            string            `gorm:"column:id;size:36;primaryKey"`
	CanonicalID   string            `gorm:"column:canonical_id;size:36;not null;index:ix_article_variants_canonical_id"`
	Canonical     *CanonicalArticle `gorm:"foreignKey:CanonicalID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Title         string            `gorm:"column:title;type:text;not null"`
	URL           string            `gorm:"column:url;type:text;not null;uniqueIndex:ux_article_variants_url"`
	Description   string            `gorm:"column:description;type:text;not null;default:''"`
	PublishDate   string            `gorm:"column:publish_date;type:text;not null;default:''"`
	Source        string            `gorm:"column:source;type:text;not null;default:''"`
	ScrapeVersion string            `gorm:"column:scrape_version;type:text;not null"`
	ScrapedAt     time.Time         `gorm:"column:scraped_at;not null"`
}

func (ArticleVariant) TableName() string { return "article_variants" }

// ArticleVector maps article_vectors. Metadata carries the originating URL.
type ArticleVector struct {
	ArticleID string            `gorm:"column:article_id;size:36;primaryKey"`
	Canonical *CanonicalArticle `gorm:"foreignKey:ArticleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Embedding pgvector.Vector   `gorm:"column:embedding;type:vector(768);not null"`
	Metadata  string            `gorm:"column:metadata;type:text;not null;uniqueIndex:ux_article_vectors_metadata"`
	CreatedAt time.Time         `gorm:"column:created_at;not null"`
}

func (ArticleVector) TableName() string { return "article_vectors" }

// ArticleFullText maps article_full_texts, keyed by variant id.
type ArticleFullText struct {
	ArticleID string `gorm:"column:article_id;size:36;primaryKey"`
	Title     string `gorm:"column:title;type:text;not null;default:''"`
	Body      string `gorm:"column:body;type:text;not null;default:''"`
}

func (ArticleFullText) TableName() string { return "article_full_texts" }

// ArticleCategory maps article_categories.
type ArticleCategory struct {
	ID          string `gorm:"column:id;size:36;primaryKey"`
	ArticleID   string `gorm:"column:article_id;size:36;not null;uniqueIndex:ux_article_categories_assignment,priority:1"`
	Category    string `gorm:"column:category;type:text;not null;uniqueIndex:ux_article_categories_assignment,priority:2"`
	Subcategory string `gorm:"column:subcategory;type:text;not null;default:'';uniqueIndex:ux_article_categories_assignment,priority:3"`
}

func (ArticleCategory) TableName() string { return "article_categories" }

// ArticleKeyword maps article_keywords.
type ArticleKeyword struct {
	ArticleID string `gorm:"column:article_id;size:36;primaryKey"`
	Keyword   string `gorm:"column:keyword;type:text;primaryKey"`
}

func (ArticleKeyword) TableName() string { return "article_keywords" }

func autoMigrateModels() []any {
	return []any{
		&CanonicalArticle{},
		&ArticleVariant{},
		&ArticleVector{},
		&ArticleFullText{},
		&ArticleCategory{},
		&ArticleKeyword{},
	}
}
