package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/config"
)

// Connections bundles the bun instances used by the service.
type Connections struct {
	// Writer and Reader serve the payment orders schema.
	Writer *bun.DB
	Reader *bun.DB
	// Catalog reads LMS course modes and overviews. It is the orders reader
	// when no dedicated catalog DSN is configured.
	Catalog *bun.DB
}

// Module registers the database connections with Fx.
var Module = fx.Provide(New)

// New establishes the writer, reader and catalog pools backed by Bun.
func New(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Connections, error) {
	conns, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := conns.Ping(ctx); err != nil {
				return err
			}
			logger.Info("database connected",
				zap.String("driver", cfg.Database.Driver),
				zap.String("catalog_driver", cfg.Catalog.Driver),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return conns.Close()
		},
	})

	return conns, nil
}

// Open builds the connection pools without pinging them.
func Open(cfg config.Config) (*Connections, error) {
	writer, err := openBun(cfg.Database.Driver, cfg.Database.WriterDSN, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}

	reader := writer
	if cfg.Database.ReaderDSN != cfg.Database.WriterDSN {
		reader, err = openBun(cfg.Database.Driver, cfg.Database.ReaderDSN, cfg.Database)
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("open reader: %w", err)
		}
	}

	catalog := reader
	if cfg.Catalog.DSN != "" {
		catalog, err = openBun(cfg.Catalog.Driver, cfg.Catalog.DSN, cfg.Database)
		if err != nil {
			_ = writer.Close()
			if reader != writer {
				_ = reader.Close()
			}
			return nil, fmt.Errorf("open catalog: %w", err)
		}
	}

	return &Connections{Writer: writer, Reader: reader, Catalog: catalog}, nil
}

// Ping checks every distinct pool.
func (c *Connections) Ping(ctx context.Context) error {
	if err := pingContext(ctx, c.Writer); err != nil {
		return fmt.Errorf("ping writer: %w", err)
	}
	if c.Reader != c.Writer {
		if err := pingContext(ctx, c.Reader); err != nil {
			return fmt.Errorf("ping reader: %w", err)
		}
	}
	if c.Catalog != c.Reader && c.Catalog != c.Writer {
		if err := pingContext(ctx, c.Catalog); err != nil {
			return fmt.Errorf("ping catalog: %w", err)
		}
	}
	return nil
}

// Close releases every distinct pool.
func (c *Connections) Close() error {
	var closeErr error
	if err := c.Writer.Close(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("close writer: %w", err))
	}
	if c.Reader != c.Writer {
		if err := c.Reader.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close reader: %w", err))
		}
	}
	if c.Catalog != c.Reader && c.Catalog != c.Writer {
		if err := c.Catalog.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close catalog: %w", err))
		}
	}
	return closeErr
}

func openBun(driver, dsn string, pool config.Database) (*bun.DB, error) {
	dial, err := selectDialect(driver)
	if err != nil {
		return nil, err
	}
	sqldb, err := openSQLDB(driver, dsn)
	if err != nil {
		return nil, err
	}
	applyPoolSettings(sqldb, pool)
	return bun.NewDB(sqldb, dial), nil
}

func selectDialect(driver string) (schema.Dialect, error) {
	switch driver {
	case "postgres":
		return pgdialect.New(), nil
	case "mysql":
		return mysqldialect.New(), nil
	case "sqlite":
		return sqlitedialect.New(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func openSQLDB(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty DSN")
	}

	switch driver {
	case "postgres":
		connector := pgdriver.NewConnector(pgdriver.WithDSN(dsn))
		return sql.OpenDB(connector), nil
	case "mysql":
		return sql.Open("mysql", dsn)
	case "sqlite":
		// No sqlite3 driver is linked here. A binary that selects this driver
		// must blank-import one, otherwise Open reports an unknown driver.
		return sql.Open("sqlite3", dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

func applyPoolSettings(db *sql.DB, cfg config.Database) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
}

func pingContext(ctx context.Context, db *bun.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.DB.PingContext(pingCtx)
}
