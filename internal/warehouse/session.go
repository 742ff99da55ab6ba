package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/cdcpipe/internal/sqlutil"
)

// Tier names a compute warehouse. The zero value means "whichever tier the
// session is already on" and never triggers a switch.
type Tier string

// CurrentTier runs a statement on the active tier.
const CurrentTier Tier = ""

func (t Tier) String() string {
	if t == CurrentTier {
		return "(current)"
	}
	return string(t)
}

func (t Tier) normalized() Tier {
	return Tier(sqlutil.NormalizeIdentifier(string(t)))
}

// Querier is the statement execution surface the pipeline needs.
// *sql.DB, *sql.Conn and *sql.Tx all satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TierSwitchError is returned when USE WAREHOUSE fails. There is no
// fallback tier; the statement that requested the tier is not run.
type TierSwitchError struct {
	Tier Tier
	Err  error
}

func (e *TierSwitchError) Error() string {
	return fmt.Sprintf("failed to switch to tier %s: %v", e.Tier, e.Err)
}

func (e *TierSwitchError) Unwrap() error {
	return e.Err
}

// Session is a single warehouse session. The active tier is session state
// on the server; Session mirrors it so a USE WAREHOUSE is only issued when a
// statement asks for a different tier than the one in effect.
// A Session is not safe for concurrent use.
type Session struct {
	q        Querier
	active   Tier
	switches int
	closer   func() error
}

// NewSession wraps q, which must already be running on the active tier.
func NewSession(q Querier, active Tier) *Session {
	return &Session{q: q, active: active.normalized()}
}

// Active returns the tier the session is currently on.
func (s *Session) Active() Tier {
	return s.active
}

// Switches returns the number of USE WAREHOUSE directives issued.
func (s *Session) Switches() int {
	return s.switches
}

// Use makes tier the active tier. CurrentTier and the already-active tier
// are no-ops. Tier names resolve the way unquoted names do, so
// "clinical_cdc_wh" selects CLINICAL_CDC_WH.
func (s *Session) Use(ctx context.Context, tier Tier) error {
	tier = tier.normalized()
	if tier == CurrentTier || tier == s.active {
		return nil
	}

	name, err := sqlutil.QuoteIdentifierSafe(string(tier))
	if err != nil {
		return &TierSwitchError{Tier: tier, Err: err}
	}

	if _, err := s.q.ExecContext(ctx, "USE WAREHOUSE "+name); err != nil {
		return &TierSwitchError{Tier: tier, Err: err}
	}

	s.active = tier
	s.switches++
	return nil
}

// ExecContext runs a statement on tier.
func (s *Session) ExecContext(ctx context.Context, tier Tier, query string, args ...any) (sql.Result, error) {
	if err := s.Use(ctx, tier); err != nil {
		return nil, err
	}
	return s.q.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on tier.
func (s *Session) QueryContext(ctx context.Context, tier Tier, query string, args ...any) (*sql.Rows, error) {
	if err := s.Use(ctx, tier); err != nil {
		return nil, err
	}
	return s.q.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query on tier. The switch error is
// returned separately because *sql.Row cannot carry it.
func (s *Session) QueryRowContext(ctx context.Context, tier Tier, query string, args ...any) (*sql.Row, error) {
	if err := s.Use(ctx, tier); err != nil {
		return nil, err
	}
	return s.q.QueryRowContext(ctx, query, args...), nil
}

// Close releases the underlying connection, if the session owns one.
func (s *Session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
