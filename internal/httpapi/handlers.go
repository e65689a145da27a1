package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Aakash091-dark/news-scraper-new/internal/db"
	"github.com/Aakash091-dark/news-scraper-new/internal/globaltime"
	"github.com/Aakash091-dark/news-scraper-new/internal/pipeline"
	payloadschema "github.com/Aakash091-dark/news-scraper-new/schema"
)

const defaultStatsWindow = 24 * time.Hour

type matchResponse struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type outcomeResponse struct {
	Link        string         `json:"link"`
	Decision    string         `json:"decision"`
	CanonicalID string         `json:"canonical_id,omitempty"`
	VariantID   string         `json:"variant_id,omitempty"`
	Exact       *matchResponse `json:"exact,omitempty"`
	Soft        *matchResponse `json:"soft,omitempty"`
	Scanned     int            `json:"scanned"`
	Skipped     int            `json:"skipped"`
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error().Err(err).Msg("health check ping failed")
		return c.JSON(http.StatusServiceUnavailable, jsendResponse{
			Status:  "error",
			Message: "Database unavailable",
			Code:    http.StatusServiceUnavailable,
		})
	}
	return success(c, map[string]any{
		"service":  "newsdedup",
		"database": "ok",
		"time":     globaltime.UTC(),
	})
}

func (s *Server) handleProcessArticle(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "Could not read request body", nil)
	}

	candidate, err := payloadschema.ValidateCandidatePayload(body)
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	article := pipeline.FromCandidate(*candidate)
	if len(article.Categories) == 0 && s.classifier != nil {
		article.Categories = s.classifier.Classify(article.Title, article.Description)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.opts.RequestTimeout)
	defer cancel()

	outcome, err := s.processor.Process(ctx, article)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidArticle) {
			return failValidation(c, map[string]string{"payload": err.Error()})
		}
		s.logger.Error().Err(err).Str("link", candidate.Link).Msg("process article failed")
		return internalError(c, "Failed to process article")
	}

	status := http.StatusOK
	if outcome.Decision == pipeline.DecisionNew || outcome.Decision == pipeline.DecisionVariant {
		status = http.StatusCreated
	}
	return successWithStatus(c, status, toOutcomeResponse(outcome))
}

func (s *Server) handleExists(c echo.Context) error {
	table := strings.TrimSpace(c.QueryParam("table"))
	column := strings.TrimSpace(c.QueryParam("column"))
	value := c.QueryParam("value")

	fieldErrors := map[string]string{}
	if table == "" {
		fieldErrors["table"] = "is required"
	}
	if column == "" {
		fieldErrors["column"] = "is required"
	}
	if strings.TrimSpace(value) == "" {
		fieldErrors["value"] = "is required"
	}
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}
	if !db.ExistenceColumnAllowed(table, column) {
		return failValidation(c, map[string]string{"column": fmt.Sprintf("%s.%s is not allowed", table, column)})
	}

	exists, err := s.store.ValueExists(c.Request().Context(), table, column, value)
	if err != nil {
		if errors.Is(err, db.ErrColumnNotAllowed) {
			return failValidation(c, map[string]string{"column": err.Error()})
		}
		s.logger.Error().Err(err).Str("table", table).Str("column", column).Msg("existence check failed")
		return internalError(c, "Failed to check existence")
	}

	return success(c, map[string]any{
		"table":  strings.ToLower(table),
		"column": strings.ToLower(column),
		"exists": exists,
	})
}

func (s *Server) handleKeywords(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return failValidation(c, map[string]string{"id": "is required"})
	}
	limit, err := parsePositiveInt(c.QueryParam("limit"), db.DefaultKeywordLimit, 1, db.DefaultKeywordLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	keywords, err := s.store.KeywordsForArticle(c.Request().Context(), id, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("article_id", id).Msg("keyword lookup failed")
		return internalError(c, "Failed to load keywords")
	}
	if keywords == nil {
		keywords = []string{}
	}
	return success(c, map[string]any{
		"article_id": id,
		"keywords":   keywords,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	since := globaltime.UTC().Add(-defaultStatsWindow)
	if raw := strings.TrimSpace(c.QueryParam("since")); raw != "" {
		parsed, err := parseTimeParam(raw)
		if err != nil {
			return failValidation(c, map[string]string{"since": "must be RFC3339 or YYYY-MM-DD"})
		}
		since = parsed
	}

	stats, err := s.store.QueryStoreStats(c.Request().Context(), since)
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func toOutcomeResponse(o pipeline.Outcome) outcomeResponse {
	resp := outcomeResponse{
		Link:        o.Link,
		Decision:    string(o.Decision),
		CanonicalID: o.CanonicalID,
		VariantID:   o.VariantID,
		Scanned:     o.Scanned,
		Skipped:     o.Skipped,
	}
	if o.Exact != nil {
		resp.Exact = &matchResponse{ID: o.Exact.ID, Score: o.Exact.Score}
	}
	if o.Soft != nil {
		resp.Soft = &matchResponse{ID: o.Soft.ID, Score: o.Soft.Score}
	}
	return resp
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	if day, err := time.Parse("2006-01-02", raw); err == nil {
		return day.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
