package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/medigrid/backend/pkg/config"
	"github.com/medigrid/backend/pkg/retry"
)

// Client wraps the SQL connection pool together with the goqu dialect that
// matches its driver.
type Client struct {
	db      *sql.DB
	driver  string
	dialect string
}

// NewClient opens the configured database and waits for it to answer a
// ping, retrying with exponential backoff.
func NewClient(ctx context.Context, cfg *config.DatabaseConfig) (*Client, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
	}

	if cfg.Driver == config.DriverSQLite {
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY churn.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	err = retry.Do(ctx, retry.DefaultConfig(), cfg.Driver, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, func(attempt int, err error, next time.Duration) {
		log.Warn().Err(err).
			Str("driver", cfg.Driver).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Msg("database ping failed")
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("driver", cfg.Driver).Msg("connected to database")
	return NewClientFromDB(db, cfg.Driver), nil
}

// NewClientFromDB wraps an already opened pool. Tests use it with sqlmock.
func NewClientFromDB(db *sql.DB, driver string) *Client {
	dialect := "sqlite3"
	if driver == config.DriverPostgres {
		dialect = "postgres"
	}
	return &Client{db: db, driver: driver, dialect: dialect}
}

// DB returns the underlying database connection
func (c *Client) DB() *sql.DB {
	return c.db
}

// Driver returns the database/sql driver name
func (c *Client) Driver() string {
	return c.driver
}

// Goqu returns a query builder bound to the pool and the driver's dialect.
func (c *Client) Goqu() *goqu.Database {
	return goqu.New(c.dialect, c.db)
}

// Dialect returns the goqu dialect wrapper for building SQL without executing it.
func (c *Client) Dialect() goqu.DialectWrapper {
	return goqu.Dialect(c.dialect)
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// BeginTx starts a new transaction
func (c *Client) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, nil)
}

// Ping verifies the connection to the database
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
