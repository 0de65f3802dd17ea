package pricing

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/cache"
	"github.com/Additional-Code/paygate/internal/config"
	"github.com/Additional-Code/paygate/internal/coursekey"
	"github.com/Additional-Code/paygate/internal/dto"
	"github.com/Additional-Code/paygate/internal/entity"
	catalogrepo "github.com/Additional-Code/paygate/internal/repository/catalog"
	"github.com/Additional-Code/paygate/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/paygate/service/pricing")

// Module provides the pricing service to Fx.
var Module = fx.Provide(NewService)

// Catalog is the read-only view of LMS course modes and overviews.
type Catalog interface {
	Modes(ctx context.Context, courseID string) ([]entity.CourseMode, error)
	Overview(ctx context.Context, courseID string) (*entity.CourseOverview, error)
}

// Service projects catalog rows into the staff pricing report.
type Service struct {
	catalog  Catalog
	cache    cache.Store
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Catalog *catalogrepo.Repository
	Cache   cache.Store
	Config  config.Config
	Logger  *zap.Logger
}

// NewService wires a Service from the Fx graph.
func NewService(p Params) *Service {
	return New(p.Catalog, p.Cache, p.Config.Catalog.CacheTTL, p.Logger, time.Now)
}

// New builds a Service from explicit collaborators. A non-positive ttl disables caching.
func New(catalog Catalog, store cache.Store, ttl time.Duration, logger *zap.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{catalog: catalog, cache: store, cacheTTL: ttl, logger: logger, now: now}
}

// Query returns the course metadata and its payable modes.
func (s *Service) Query(ctx context.Context, rawCourseID string) (*dto.CoursePricing, error) {
	courseID := coursekey.Normalize(rawCourseID)
	if courseID == "" {
		return nil, errorbank.BadRequest("Missing course_id")
	}
	key, err := coursekey.Parse(courseID)
	if err != nil {
		return nil, errorbank.BadRequest("Invalid course_id", errorbank.WithCause(err))
	}
	canonical := key.String()

	ctx, span := serviceTracer.Start(ctx, "PricingService.Query", trace.WithAttributes(attribute.String("course.id", canonical)))
	defer span.End()

	snap, err := s.snapshot(ctx, span, key)
	if err != nil {
		return nil, err
	}

	out := snap.Course
	out.Modes = PayableModes(snap.Modes, s.now())
	return &out, nil
}

// catalogSnapshot is what the pricing cache holds: raw catalog rows, not the
// filtered report, so expirations are evaluated against the clock on every query.
type catalogSnapshot struct {
	Course dto.CoursePricing   `json:"course"`
	Modes  []entity.CourseMode `json:"modes"`
}

func (s *Service) snapshot(ctx context.Context, span trace.Span, key coursekey.Key) (*catalogSnapshot, error) {
	canonical := key.String()
	cacheKey := "pricing:" + canonical
	if s.cacheTTL > 0 {
		var cached catalogSnapshot
		err := cache.GetJSON(ctx, s.cache, cacheKey, &cached)
		if err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("pricing cache read failed", zap.String("course_id", canonical), zap.Error(err))
		}
	}

	modes, err := s.catalog.Modes(ctx, canonical)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog error")
		return nil, errorbank.Internal("failed to load course modes", errorbank.WithCause(err))
	}
	snap := &catalogSnapshot{Course: *s.overviewOrDefault(ctx, key), Modes: modes}

	if s.cacheTTL > 0 {
		if err := cache.SetJSON(ctx, s.cache, cacheKey, snap, s.cacheTTL); err != nil {
			s.logger.Warn("pricing cache write failed", zap.String("course_id", canonical), zap.Error(err))
		}
	}
	return snap, nil
}

// overviewOrDefault returns the course metadata, or a report where every
// field except course_id is null when the overview cannot be loaded.
func (s *Service) overviewOrDefault(ctx context.Context, key coursekey.Key) *dto.CoursePricing {
	out := &dto.CoursePricing{CourseID: key.String()}

	overview, err := s.catalog.Overview(ctx, key.String())
	if err != nil {
		if !errors.Is(err, catalogrepo.ErrNotFound) {
			s.logger.Warn("course overview lookup failed", zap.String("course_id", key.String()), zap.Error(err))
		}
		return out
	}

	name := key.DisplayName()
	if overview.DisplayName != nil && *overview.DisplayName != "" {
		name = *overview.DisplayName
	}
	inviteOnly := overview.InviteOnly

	out.CourseName = &name
	out.CourseStart = formatTime(overview.Start)
	out.CourseEnd = formatTime(overview.End)
	out.EnrollmentStart = formatTime(overview.EnrollmentStart)
	out.EnrollmentEnd = formatTime(overview.EnrollmentEnd)
	out.InviteOnly = &inviteOnly
	return out
}

// PayableModes filters catalog modes down to the ones a learner can pay for:
// free tracks and modes expired at or before now are dropped, and what remains
// must carry a positive price, a SKU or a currency.
func PayableModes(modes []entity.CourseMode, now time.Time) []dto.ModePrice {
	out := make([]dto.ModePrice, 0, len(modes))
	for i := range modes {
		m := &modes[i]
		if m.Free() || m.Expired(now) {
			continue
		}

		minPrice := entity.CoercePrice(m.MinPrice.String())
		sku := m.PreferredSKU()
		if minPrice <= 0 && sku == "" && m.Currency == "" {
			continue
		}

		out = append(out, dto.ModePrice{
			Slug:               m.ModeSlug,
			Name:               m.DisplayName(),
			Currency:           optional(m.Currency),
			MinPrice:           minPrice,
			SuggestedPrices:    m.SuggestedPriceList(),
			SKU:                optional(sku),
			ExpirationDatetime: formatTime(m.ExpiresAt()),
			IsExpired:          false,
		})
	}
	return out
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
