package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/paygate/internal/database"
	"github.com/Additional-Code/paygate/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/paygate/repository/catalog")

// ErrNotFound is returned when a course mode or overview is missing.
var ErrNotFound = errors.New("catalog entry not found")

// Module provides the catalog repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository reads LMS course modes and overviews. It never writes.
type Repository struct {
	db *bun.DB
}

// NewRepository wires a repository on the catalog connection.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{db: conns.Catalog}
}

// Modes lists every mode configured for the course.
func (r *Repository) Modes(ctx context.Context, courseID string) ([]entity.CourseMode, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.Modes", trace.WithAttributes(attribute.String("course.id", courseID)))
	defer span.End()

	var modes []entity.CourseMode
	err := r.db.NewSelect().
		Model(&modes).
		Where("cm.course_id = ?", courseID).
		OrderExpr("cm.id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return modes, nil
}

// Mode loads one mode of the course by slug.
func (r *Repository) Mode(ctx context.Context, courseID, slug string) (*entity.CourseMode, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.Mode", trace.WithAttributes(
		attribute.String("course.id", courseID),
		attribute.String("course.mode", slug),
	))
	defer span.End()

	mode := new(entity.CourseMode)
	err := r.db.NewSelect().
		Model(mode).
		Where("cm.course_id = ?", courseID).
		Where("cm.mode_slug = ?", slug).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return mode, nil
}

// Overview loads the course overview row.
func (r *Repository) Overview(ctx context.Context, courseID string) (*entity.CourseOverview, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.Overview", trace.WithAttributes(attribute.String("course.id", courseID)))
	defer span.End()

	overview := new(entity.CourseOverview)
	err := r.db.NewSelect().Model(overview).Where("co.id = ?", courseID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return overview, nil
}
