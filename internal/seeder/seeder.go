package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/database"
	"github.com/Additional-Code/paygate/internal/entity"
)

// DemoCourseID is the course seeded for local checkouts.
const DemoCourseID = "course-v1:Org+Num+Run"

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder prepares a development catalog. Production catalogs belong to the LMS.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Seeder on the catalog connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Catalog, logger: logger, now: time.Now}
}

// Catalog creates the LMS catalog tables when missing and seeds a demo course
// with a free audit track, a paid verified track and an expired professional track.
func (s *Seeder) Catalog(ctx context.Context) error {
	for _, model := range []any{(*entity.CourseMode)(nil), (*entity.CourseOverview)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create catalog table: %w", err)
		}
	}

	now := s.now().UTC()
	name := "Demo Course"
	start := now.AddDate(0, -1, 0)
	overview := entity.CourseOverview{ID: DemoCourseID, DisplayName: &name, Start: &start}
	exists, err := s.db.NewSelect().Model((*entity.CourseOverview)(nil)).Where("co.id = ?", DemoCourseID).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		if _, err := s.db.NewInsert().Model(&overview).Exec(ctx); err != nil {
			return fmt.Errorf("seed overview: %w", err)
		}
	}

	sku := "PAYGATE-DEMO-VERIFIED"
	expired := now.AddDate(0, 0, -1)
	modes := []entity.CourseMode{
		{CourseID: DemoCourseID, ModeSlug: entity.ModeAudit, ModeDisplayName: "Audit", MinPrice: decimal.Zero, Currency: "VND"},
		{CourseID: DemoCourseID, ModeSlug: entity.DefaultMode, ModeDisplayName: "Verified Certificate", MinPrice: decimal.NewFromInt(500000), Currency: "VND", SuggestedPrices: "500000,750000", SKU: &sku},
		{CourseID: DemoCourseID, ModeSlug: "professional", ModeDisplayName: "Professional", MinPrice: decimal.NewFromInt(900000), Currency: "VND", ExpirationDatetime: &expired},
	}

	seeded := 0
	for i := range modes {
		mode := modes[i]
		exists, err := s.db.NewSelect().Model((*entity.CourseMode)(nil)).
			Where("cm.course_id = ?", mode.CourseID).
			Where("cm.mode_slug = ?", mode.ModeSlug).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := s.db.NewInsert().Model(&mode).Exec(ctx); err != nil {
			return fmt.Errorf("seed mode %s: %w", mode.ModeSlug, err)
		}
		seeded++
	}

	if s.logger != nil {
		s.logger.Info("seeded catalog", zap.String("course_id", DemoCourseID), zap.Int("modes", seeded))
	}
	return nil
}
