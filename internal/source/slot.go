// Package source probes the operational Postgres database that feeds the
// CDC streams. The only check is how much WAL the CDC replication slot is
// holding back, which shows how far extraction is behind.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/dbsmedya/cdcpipe/internal/config"
	"github.com/dbsmedya/cdcpipe/internal/logger"
)

// openDB is replaced in tests.
var openDB = sql.Open

// SlotStatus is the state of one logical replication slot.
type SlotStatus struct {
	SlotName         string
	Plugin           string
	Active           bool
	RetainedWALBytes sql.NullInt64 // NULL when restart_lsn is unset
	WALStatus        string        // reserved, extended, unreserved or lost
}

// SlotProbe checks the CDC replication slot on the source database.
type SlotProbe struct {
	db          *sql.DB
	enabled     bool
	slot        string
	maxRetained int64
	logger      *logger.Logger
}

// Open opens the source database with the pgx driver.
func Open(ctx context.Context, cfg config.SourceConfig) (*sql.DB, error) {
	db, err := openDB("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open source database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping source database: %w", err)
	}
	return db, nil
}

// NewSlotProbe creates a probe. A nil db disables probing.
func NewSlotProbe(db *sql.DB, cfg config.SourceConfig, log *logger.Logger) *SlotProbe {
	if log == nil {
		log = logger.NewDefault()
	}

	if db == nil {
		log.Info("Source slot probe is DISABLED (no source connection)")
		return &SlotProbe{enabled: false, logger: log}
	}

	return &SlotProbe{
		db:          db,
		enabled:     true,
		slot:        cfg.ReplicationSlot,
		maxRetained: cfg.MaxRetainedWALBytes,
		logger:      log,
	}
}

const slotQuery = `SELECT slot_name, plugin, active,
  pg_wal_lsn_diff(pg_current_wal_lsn(), restart_lsn)::bigint,
  wal_status
FROM pg_replication_slots
WHERE slot_name = $1`

// GetSlotStatus returns the status of the configured slot, or nil when the
// probe is disabled.
func (p *SlotProbe) GetSlotStatus(ctx context.Context) (*SlotStatus, error) {
	if !p.enabled {
		return nil, nil
	}

	var (
		st        SlotStatus
		plugin    sql.NullString
		walStatus sql.NullString
	)
	err := p.db.QueryRowContext(ctx, slotQuery, p.slot).
		Scan(&st.SlotName, &plugin, &st.Active, &st.RetainedWALBytes, &walStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("replication slot %q does not exist", p.slot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query replication slot: %w", err)
	}

	st.Plugin = plugin.String
	st.WALStatus = walStatus.String
	return &st, nil
}

// CheckSlot reports whether the slot is healthy: present, not lost, and
// retaining no more WAL than the configured maximum.
//
// Returns:
//   - bool: true if healthy (or probing disabled)
//   - int64: retained WAL in bytes (0 if disabled, -1 if unknown)
//   - error: query failure or an unusable slot
func (p *SlotProbe) CheckSlot(ctx context.Context) (bool, int64, error) {
	if !p.enabled {
		return true, 0, nil
	}

	st, err := p.GetSlotStatus(ctx)
	if err != nil {
		p.logger.Errorf("Failed to check replication slot: %v", err)
		return false, -1, err
	}

	if st.WALStatus == "lost" {
		p.logger.Errorf("Replication slot %s has lost required WAL; CDC must be re-initialized", st.SlotName)
		return false, -1, fmt.Errorf("replication slot %q has lost required WAL", st.SlotName)
	}

	if !st.RetainedWALBytes.Valid {
		p.logger.Warnf("Replication slot %s has no restart position", st.SlotName)
		return false, -1, nil
	}
	retained := st.RetainedWALBytes.Int64

	if !st.Active {
		p.logger.Warnf("Replication slot %s is not active (no CDC consumer attached)", st.SlotName)
	}

	if p.maxRetained > 0 && retained > p.maxRetained {
		p.logger.Warnf("Replication slot %s retains %d bytes of WAL (threshold: %d bytes)", st.SlotName, retained, p.maxRetained)
		return false, retained, nil
	}

	p.logger.Debugf("Replication slot %s OK: %d bytes retained", st.SlotName, retained)
	return true, retained, nil
}

// IsEnabled returns whether slot probing is enabled.
func (p *SlotProbe) IsEnabled() bool {
	return p.enabled
}
