package catalog

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/database"
	"github.com/Additional-Code/paygate/internal/entity"
	"github.com/Additional-Code/paygate/internal/seeder"
)

func setupSeededCatalog(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("lms"),
		postgres.WithUsername("lms"),
		postgres.WithPassword("lms"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pgC) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	conns := &database.Connections{Writer: db, Reader: db, Catalog: db}
	seed := seeder.New(conns, zap.NewNop())
	if err := seed.Catalog(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Seeding twice must not duplicate rows.
	if err := seed.Catalog(ctx); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	return NewRepository(conns)
}

func TestCatalogReadsSeededCourse(t *testing.T) {
	repo := setupSeededCatalog(t)
	ctx := context.Background()

	modes, err := repo.Modes(ctx, seeder.DemoCourseID)
	if err != nil {
		t.Fatalf("modes: %v", err)
	}
	if len(modes) != 3 {
		t.Fatalf("expected 3 modes, got %d", len(modes))
	}

	verified, err := repo.Mode(ctx, seeder.DemoCourseID, entity.DefaultMode)
	if err != nil {
		t.Fatalf("mode: %v", err)
	}
	if verified.MinPrice.StringFixed(2) != "500000.00" || verified.PreferredSKU() != "PAYGATE-DEMO-VERIFIED" {
		t.Errorf("unexpected verified mode %+v", verified)
	}

	overview, err := repo.Overview(ctx, seeder.DemoCourseID)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview.DisplayName == nil || *overview.DisplayName != "Demo Course" {
		t.Errorf("unexpected overview %+v", overview)
	}
}

func TestCatalogMissingEntries(t *testing.T) {
	repo := setupSeededCatalog(t)
	ctx := context.Background()

	if _, err := repo.Mode(ctx, seeder.DemoCourseID, "masters"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for mode, got %v", err)
	}
	if _, err := repo.Overview(ctx, "course-v1:No+Such+Course"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for overview, got %v", err)
	}
	modes, err := repo.Modes(ctx, "course-v1:No+Such+Course")
	if err != nil || len(modes) != 0 {
		t.Errorf("expected no modes, got %d (%v)", len(modes), err)
	}
}
