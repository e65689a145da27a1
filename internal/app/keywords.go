package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Aakash091-dark/news-scraper-new/internal/cli"
	"github.com/Aakash091-dark/news-scraper-new/internal/db"
)

func runKeywords(args []string) int {
	fs := flag.NewFlagSet("keywords", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	id := fs.String("id", "", "Variant or canonical article id")
	limit := fs.Int("limit", db.DefaultKeywordLimit, "Maximum keywords to print")
	timeout := fs.Duration("timeout", 30*time.Second, "Query timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	articleID := strings.TrimSpace(*id)
	if articleID == "" {
		fmt.Fprintln(os.Stderr, "--id is required")
		return 2
	}
	if *limit < 1 || *limit > db.DefaultKeywordLimit {
		fmt.Fprintf(os.Stderr, "--limit must be between 1 and %d\n", db.DefaultKeywordLimit)
		return 2
	}

	cfg, logger, ok := loadRuntime(envLoader)
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, ok := openPool(ctx, cfg, logger, "keywords")
	if !ok {
		return 1
	}
	defer pool.Close()

	keywords, err := pool.KeywordsForArticle(ctx, articleID, *limit)
	if err != nil {
		logger.Error().Err(err).Str("id", articleID).Msg("keyword lookup failed")
		fmt.Fprintf(os.Stderr, "Keyword lookup failed: %v\n", err)
		return 1
	}

	for _, keyword := range keywords {
		fmt.Println(keyword)
	}
	logger.Debug().Str("id", articleID).Int("count", len(keywords)).Msg("keywords listed")
	return 0
}
