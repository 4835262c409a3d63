package service

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/points-ledger-api/internal/dto"
	"github.com/noah-isme/points-ledger-api/internal/models"
)

const (
	phoneMatchScore        = 0.97
	emailMatchScore        = 0.99
	defaultDuplicateFloor  = 0.45
	defaultDuplicateResult = 5
)

// StringMetric scores the similarity of two normalised names in [0,1].
type StringMetric func(a, b string) float64

// LevenshteinSimilarity is the default name metric.
func LevenshteinSimilarity(a, b string) float64 {
	return strutil.Similarity(a, b, metrics.NewLevenshtein())
}

type candidateRepository interface {
	ListActiveForMatching(ctx context.Context) ([]models.Student, error)
}

// DuplicateConfig tunes a DuplicateDetector.
type DuplicateConfig struct {
	// Threshold is exclusive: only scores strictly above it are reported.
	Threshold  float64
	MaxResults int
	Compare    StringMetric
}

// DuplicateDetector ranks active students that resemble a prospective enrollment.
type DuplicateDetector struct {
	repo       candidateRepository
	compare    StringMetric
	threshold  float64
	maxResults int
	metrics    *MetricsService
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewDuplicateDetector constructs a DuplicateDetector.
func NewDuplicateDetector(repo candidateRepository, cfg DuplicateConfig, metricsSvc *MetricsService, logger *zap.Logger) *DuplicateDetector {
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		cfg.Threshold = defaultDuplicateFloor
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultDuplicateResult
	}
	if cfg.Compare == nil {
		cfg.Compare = LevenshteinSimilarity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuplicateDetector{
		repo:       repo,
		compare:    cfg.Compare,
		threshold:  cfg.Threshold,
		maxResults: cfg.MaxResults,
		metrics:    metricsSvc,
		logger:     logger,
		tracer:     otel.Tracer("github.com/noah-isme/points-ledger-api/internal/service/duplicates"),
	}
}

// FindDuplicates scores every active student against the given identity. An exact phone match
// floors the score at 0.97 and an exact email match at 0.99. Results are ordered by score, ties
// keeping student id order, and truncated to maxResults (the configured default when <= 0).
// A store failure is returned as an error, never as an empty result.
func (d *DuplicateDetector) FindDuplicates(ctx context.Context, name, phone, email string, maxResults int) ([]dto.DuplicateMatch, error) {
	if maxResults <= 0 {
		maxResults = d.maxResults
	}
	ctx, span := d.tracer.Start(ctx, "duplicates.find", trace.WithAttributes(
		attribute.Bool("duplicates.has_phone", strings.TrimSpace(phone) != ""),
		attribute.Bool("duplicates.has_email", strings.TrimSpace(email) != ""),
		attribute.Int("duplicates.max_results", maxResults),
	))
	defer span.End()

	candidates, err := d.repo.ListActiveForMatching(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate scan failed")
		d.metrics.RecordDuplicateCheck("error")
		d.logger.Error("duplicate scan failed", zap.Error(err))
		return nil, storeError(err, "failed to scan students for duplicates")
	}

	nameNorm := normaliseName(name)
	phoneNorm := normalisePhone(phone)
	emailNorm := normaliseEmail(email)

	matches := make([]dto.DuplicateMatch, 0)
	for _, c := range candidates {
		score := 0.0
		if candidate := normaliseName(c.FullName); nameNorm != "" && candidate != "" {
			score = d.compare(nameNorm, candidate)
		}
		if phoneNorm != "" && phoneNorm == normalisePhone(c.Phone) {
			score = math.Max(score, phoneMatchScore)
		}
		if emailNorm != "" && emailNorm == normaliseEmail(c.Email) {
			score = math.Max(score, emailMatchScore)
		}
		if score <= d.threshold {
			continue
		}
		matches = append(matches, dto.DuplicateMatch{
			StudentID:  c.ID,
			Name:       c.FullName,
			Phone:      c.Phone,
			Email:      c.Email,
			Classroom:  c.Classroom,
			Confidence: int(math.Round(score * 100)),
			Score:      score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	span.SetAttributes(attribute.Int("duplicates.matches", len(matches)))
	if len(matches) > 0 {
		d.metrics.RecordDuplicateCheck("matched")
	} else {
		d.metrics.RecordDuplicateCheck("clear")
	}
	return matches, nil
}

func normaliseName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normaliseEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalisePhone drops whitespace and the separators people type between digit groups.
func normalisePhone(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
