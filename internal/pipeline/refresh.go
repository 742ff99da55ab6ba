package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dbsmedya/cdcpipe/internal/catalog"
	"github.com/dbsmedya/cdcpipe/internal/logger"
	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

// ErrStagedTableMissing is recorded when a catalog entity has no dynamic
// table in the warehouse.
var ErrStagedTableMissing = errors.New("dynamic table not found")

// StagedTableStatus is the observed recency of one staged table.
type StagedTableStatus struct {
	Entity          catalog.Entity
	TargetLag       string
	RefreshMode     string
	LastRefreshTime sql.NullTime
	Behind          bool  // last refresh is older than the target lag allows
	Err             error // *StagedTableError when the lookup failed
}

// RefreshWatcher observes staged table refresh state. It never triggers a
// refresh; the warehouse maintains those tables against their target lag.
type RefreshWatcher struct {
	logger *logger.Logger
	now    func() time.Time
}

// NewRefreshWatcher creates a watcher.
func NewRefreshWatcher(log *logger.Logger) *RefreshWatcher {
	if log == nil {
		log = logger.NewDefault()
	}
	return &RefreshWatcher{logger: log, now: time.Now}
}

const dynamicTableQuery = `SELECT name, target_lag, refresh_mode, last_refresh_time
FROM INFORMATION_SCHEMA.DYNAMIC_TABLES
WHERE name = ? AND schema_name = ?`

// CheckDynamicTables reports on every staged table in catalog order.
// Lookup failures are recorded on the entity's status and do not stop the
// remaining entities. Only an escaping error (tier switch, cancellation) is
// returned.
func (w *RefreshWatcher) CheckDynamicTables(ctx context.Context, s *warehouse.Session, tier warehouse.Tier) ([]StagedTableStatus, error) {
	if err := s.Use(ctx, tier); err != nil {
		return nil, err
	}

	entities := catalog.StagedEntities()
	statuses := make([]StagedTableStatus, 0, len(entities))

	for _, e := range entities {
		st, err := w.checkOne(ctx, s, tier, e)
		if err != nil {
			if escapes(ctx, err) {
				return statuses, err
			}
			st.Err = &StagedTableError{Table: e.StagedDisplayName(), Err: err}
			w.logger.Errorw("Error checking staged table", "table", e.StagedDisplayName(), "error", err)
		}
		statuses = append(statuses, st)
	}

	return statuses, nil
}

func (w *RefreshWatcher) checkOne(ctx context.Context, s *warehouse.Session, tier warehouse.Tier, e catalog.Entity) (StagedTableStatus, error) {
	st := StagedTableStatus{Entity: e}

	row, err := s.QueryRowContext(ctx, tier, dynamicTableQuery, e.Staged, catalog.SchemaStaging)
	if err != nil {
		return st, err
	}

	var (
		name      string
		targetLag sql.NullString
		mode      sql.NullString
	)
	if err := row.Scan(&name, &targetLag, &mode, &st.LastRefreshTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, ErrStagedTableMissing
		}
		return st, err
	}
	st.TargetLag = targetLag.String
	st.RefreshMode = mode.String

	if st.LastRefreshTime.Valid {
		w.logger.Infof("%s - Last refresh: %s", e.StagedDisplayName(), st.LastRefreshTime.Time.Format(time.RFC3339))
	} else {
		w.logger.Infof("%s - Not yet refreshed", e.StagedDisplayName())
	}

	if lag, ok := parseTargetLag(st.TargetLag); ok && st.LastRefreshTime.Valid {
		behind := w.now().Sub(st.LastRefreshTime.Time)
		if behind > lag {
			st.Behind = true
			w.logger.Warnw("Staged table is behind its target lag",
				"table", e.StagedDisplayName(),
				"target_lag", st.TargetLag,
				"behind", behind.Round(time.Second).String(),
			)
		}
	}

	return st, nil
}

var targetLagPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*(second|minute|hour|day)s?\s*$`)

// parseTargetLag converts a target lag such as "5 minutes" to a duration.
// DOWNSTREAM and anything unrecognised report false.
func parseTargetLag(s string) (time.Duration, bool) {
	m := targetLagPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}

	var unit time.Duration
	switch strings.ToLower(m[2]) {
	case "second":
		unit = time.Second
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	default:
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// String summarizes the status for log output.
func (st StagedTableStatus) String() string {
	switch {
	case st.Err != nil:
		return fmt.Sprintf("%s: %v", st.Entity.StagedDisplayName(), st.Err)
	case st.Behind:
		return fmt.Sprintf("%s: behind target lag %s", st.Entity.StagedDisplayName(), st.TargetLag)
	default:
		return fmt.Sprintf("%s: ok", st.Entity.StagedDisplayName())
	}
}
