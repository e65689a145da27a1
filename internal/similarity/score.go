// Package similarity scores a query embedding against stored story vectors
// and buckets the best matches into exact and soft bands.
//
// Bands, with defaults:
//
//	exact     score >= 0.90
//	soft      0.60 < score < 0.90
//	unrelated score <= 0.60
//
// Within a band the highest score wins; equal scores resolve to the
// lexicographically lowest id, so results do not depend on scan order.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/pgvector/pgvector-go"
)

const (
	DefaultExactThreshold = 0.90
	DefaultSoftThreshold  = 0.60
)

var (
	ErrZeroNormQuery     = errors.New("query vector has zero norm")
	ErrNonFiniteQuery    = errors.New("query vector has non-finite values")
	ErrEmptyQuery        = errors.New("query vector is empty")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrZeroNormCandidate = errors.New("candidate vector has zero norm")
	ErrNonFiniteVector   = errors.New("candidate vector has non-finite values")
)

type Band int

const (
	BandUnrelated Band = iota
	BandSoft
	BandExact
)

func (b Band) String() string {
	switch b {
	case BandExact:
		return "exact"
	case BandSoft:
		return "soft"
	default:
		return "unrelated"
	}
}

type Thresholds struct {
	Exact float64
	Soft  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Exact: DefaultExactThreshold, Soft: DefaultSoftThreshold}
}

func (t Thresholds) Validate() error {
	if t.Exact <= 0 || t.Exact > 1 {
		return fmt.Errorf("exact threshold %.4f must be in (0, 1]", t.Exact)
	}
	if t.Soft < -1 || t.Soft >= t.Exact {
		return fmt.Errorf("soft threshold %.4f must be in [-1, %.4f)", t.Soft, t.Exact)
	}
	return nil
}

// Classify buckets a cosine score. The exact band is inclusive at its lower
// edge; the soft band is exclusive at both edges.
func (t Thresholds) Classify(score float64) Band {
	switch {
	case score >= t.Exact:
		return BandExact
	case score > t.Soft:
		return BandSoft
	default:
		return BandUnrelated
	}
}

type Candidate struct {
	ID     string
	Vector []float32
}

type Match struct {
	ID    string
	Score float64
}

// Skipped records a candidate left out of the scan.
type Skipped struct {
	ID  string
	Err error
}

type Result struct {
	Exact   *Match
	Soft    *Match
	Scanned int
	Skipped []Skipped
}

// ExactID returns the best exact-band id or "".
func (r Result) ExactID() string {
	if r.Exact == nil {
		return ""
	}
	return r.Exact.ID
}

// SoftID returns the best soft-band id or "".
func (r Result) SoftID() string {
	if r.Soft == nil {
		return ""
	}
	return r.Soft.ID
}

// Score compares query against every candidate. An empty candidate set is
// not an error. A degenerate query fails the whole call; a degenerate
// candidate is reported in Result.Skipped and the scan continues.
func Score(query []float32, candidates []Candidate, thresholds Thresholds) (Result, error) {
	if err := thresholds.Validate(); err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return Result{}, nil
	}

	unitQuery, err := normalize(query)
	if err != nil {
		return Result{}, queryError(err)
	}

	var result Result
	for _, candidate := range candidates {
		if len(candidate.Vector) != len(unitQuery) {
			result.Skipped = append(result.Skipped, Skipped{
				ID:  candidate.ID,
				Err: fmt.Errorf("%w: query=%d candidate=%d", ErrDimensionMismatch, len(unitQuery), len(candidate.Vector)),
			})
			continue
		}

		unitCandidate, err := normalize(candidate.Vector)
		if err != nil {
			reason := ErrZeroNormCandidate
			if errors.Is(err, errNonFinite) {
				reason = ErrNonFiniteVector
			}
			result.Skipped = append(result.Skipped, Skipped{ID: candidate.ID, Err: reason})
			continue
		}

		result.Scanned++
		score := dot(unitQuery, unitCandidate)

		switch thresholds.Classify(score) {
		case BandExact:
			result.Exact = better(result.Exact, candidate.ID, score)
		case BandSoft:
			result.Soft = better(result.Soft, candidate.ID, score)
		}
	}

	return result, nil
}

// ValidateQuery reports whether query can be scored at all.
func ValidateQuery(query []float32) error {
	if _, err := normalize(query); err != nil {
		return queryError(err)
	}
	return nil
}

func queryError(err error) error {
	switch {
	case errors.Is(err, errZeroNorm):
		return ErrZeroNormQuery
	case errors.Is(err, errNonFinite):
		return ErrNonFiniteQuery
	default:
		return ErrEmptyQuery
	}
}

// ParseVector decodes the pgvector text form "[x,y,...]" and checks its width.
func ParseVector(raw string, dimensions int) ([]float32, error) {
	var vec pgvector.Vector
	if err := vec.Parse(strings.TrimSpace(raw)); err != nil {
		return nil, fmt.Errorf("parse vector: %w", err)
	}
	values := vec.Slice()
	if dimensions > 0 && len(values) != dimensions {
		return nil, fmt.Errorf("%w: want %d got %d", ErrDimensionMismatch, dimensions, len(values))
	}
	return values, nil
}

// Normalize returns a unit-length copy of v.
func Normalize(v []float32) ([]float32, error) {
	unit, err := normalize(v)
	if err != nil {
		return nil, fmt.Errorf("normalize vector: %w", err)
	}
	out := make([]float32, len(unit))
	for i, value := range unit {
		out[i] = float32(value)
	}
	return out, nil
}

var (
	errZeroNorm  = errors.New("zero norm")
	errNonFinite = errors.New("non-finite value")
	errEmpty     = errors.New("empty vector")
)

func normalize(v []float32) ([]float64, error) {
	if len(v) == 0 {
		return nil, errEmpty
	}
	var sum float64
	for _, value := range v {
		f := float64(value)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errNonFinite
		}
		sum += f * f
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsInf(norm, 0) {
		return nil, errZeroNorm
	}
	out := make([]float64, len(v))
	for i, value := range v {
		out[i] = float64(value) / norm
	}
	return out, nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func better(current *Match, id string, score float64) *Match {
	if current == nil || score > current.Score || (score == current.Score && id < current.ID) {
		return &Match{ID: id, Score: score}
	}
	return current
}
