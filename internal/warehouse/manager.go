// Package warehouse provides Snowflake connection management and the
// tier-aware session every pipeline stage executes through.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sf "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/dbsmedya/cdcpipe/internal/config"
)

// driverName is the database/sql driver registered by gosnowflake.
const driverName = "snowflake"

// openDB is a test hook that points to sql.Open by default.
var openDB = sql.Open

// Manager owns the warehouse connection pool.
type Manager struct {
	DB      *sql.DB
	config  *config.WarehouseConfig
	backoff time.Duration
}

// NewManager creates a new warehouse manager from configuration.
func NewManager(cfg *config.WarehouseConfig) *Manager {
	return &Manager{
		config:  cfg,
		backoff: time.Second,
	}
}

// Connect establishes the warehouse connection.
func (m *Manager) Connect(ctx context.Context) error {
	db, err := m.connectWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	m.DB = db
	return nil
}

// OpenSession connects if needed and pins one connection for the run.
// The session starts on the initial tier, which the DSN selects at login.
func (m *Manager) OpenSession(ctx context.Context) (*Session, error) {
	if m.DB == nil {
		if err := m.Connect(ctx); err != nil {
			return nil, err
		}
	}

	conn, err := m.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire warehouse session: %w", err)
	}

	s := NewSession(conn, Tier(m.config.Tiers.Initial))
	s.closer = conn.Close
	return s, nil
}

// connectWithRetry attempts to connect with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context) (*sql.DB, error) {
	var db *sql.DB
	var err error

	maxRetries := m.config.ConnectRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	backoff := m.backoff

	for i := 0; i < maxRetries; i++ {
		db, err = m.connect()
		if err == nil {
			// Verify connection
			if pingErr := db.PingContext(ctx); pingErr == nil {
				return db, nil
			} else {
				db.Close()
				err = pingErr
			}
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", maxRetries, err)
}

// connect creates a database handle. The pipeline is sequential, so the
// pool is capped at a single connection.
func (m *Manager) connect() (*sql.DB, error) {
	dsn, err := BuildDSN(m.config)
	if err != nil {
		return nil, err
	}

	db, err := openDB(driverName, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// BuildDSN constructs a Snowflake DSN from configuration.
// The initial tier is set as the login warehouse.
func BuildDSN(cfg *config.WarehouseConfig) (string, error) {
	dsn, err := sf.DSN(&sf.Config{
		Account:      cfg.Account,
		User:         cfg.User,
		Password:     cfg.Password,
		Role:         cfg.Role,
		Database:     cfg.Database,
		Schema:       cfg.Schema,
		Warehouse:    cfg.Tiers.Initial,
		LoginTimeout: cfg.LoginTimeout(),
		Application:  "cdcpipe",
	})
	if err != nil {
		return "", fmt.Errorf("failed to build snowflake DSN: %w", err)
	}
	return dsn, nil
}

// Close closes the connection pool.
func (m *Manager) Close() error {
	if m.DB == nil {
		return nil
	}
	if err := m.DB.Close(); err != nil {
		return fmt.Errorf("warehouse close: %w", err)
	}
	return nil
}

// Ping verifies the connection is alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.DB == nil {
		return fmt.Errorf("warehouse not connected")
	}
	if err := m.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("warehouse ping failed: %w", err)
	}
	return nil
}
