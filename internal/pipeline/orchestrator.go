// Package pipeline coordinates one CDC-to-warehouse pipeline run: stream
// checks, staged table observation, fact population, cost accounting and
// the audit trail, each routed to its compute tier.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/google/uuid"

	"github.com/dbsmedya/cdcpipe/internal/config"
	"github.com/dbsmedya/cdcpipe/internal/logger"
	"github.com/dbsmedya/cdcpipe/internal/warehouse"
)

// State is a pipeline run state.
type State string

const (
	StateConnecting           State = "CONNECTING"
	StateCheckingStreams      State = "CHECKING_STREAMS"
	StateCountingChanges      State = "COUNTING_CHANGES"
	StateCheckingStagedTables State = "CHECKING_STAGED_TABLES"
	StatePopulating           State = "POPULATING"
	StateSkipping             State = "SKIPPING"
	StateTrackingCosts        State = "TRACKING_COSTS"
	StateComplete             State = "COMPLETE"
	StateFailed               State = "FAILED"
)

// SessionOpener opens the warehouse session a run executes on.
// *warehouse.Manager satisfies it.
type SessionOpener interface {
	OpenSession(ctx context.Context) (*warehouse.Session, error)
}

// StreamMonitor is the change monitor surface used by the orchestrator.
type StreamMonitor interface {
	CheckStreamStatus(ctx context.Context, s *warehouse.Session, tier warehouse.Tier) ([]Stream, error)
	StreamChangeCount(ctx context.Context, s *warehouse.Session, tier warehouse.Tier, stream string) (int64, error)
}

// StagedTableWatcher is the refresh watcher surface.
type StagedTableWatcher interface {
	CheckDynamicTables(ctx context.Context, s *warehouse.Session, tier warehouse.Tier) ([]StagedTableStatus, error)
}

// Populator is the fact populator surface.
type Populator interface {
	Populate(ctx context.Context, s *warehouse.Session, tier warehouse.Tier) ([]EntityResult, error)
}

// CostReporter is the cost accountant surface.
type CostReporter interface {
	WarehouseCosts(ctx context.Context, s *warehouse.Session, tier warehouse.Tier) (*CostReport, error)
}

// Auditor is the audit recorder surface. It has no error return.
type Auditor interface {
	Record(ctx context.Context, s *warehouse.Session, event, details string, status AuditStatus)
}

// Components are the stage implementations an orchestrator drives.
type Components struct {
	Monitor   StreamMonitor
	Watcher   StagedTableWatcher
	Populator Populator
	Costs     CostReporter
	Audit     Auditor
}

// NewComponents builds the warehouse-backed components for cfg.
func NewComponents(cfg *config.Config, log *logger.Logger) Components {
	return Components{
		Monitor:   NewChangeMonitor(cfg.Warehouse.Schema, log),
		Watcher:   NewRefreshWatcher(log),
		Populator: NewFactPopulator(log),
		Costs:     NewCostAccountant(NewTierSelector(cfg.Warehouse.Tiers).TrackedTiers(), log),
		Audit:     NewAuditRecorder(log),
	}
}

// PendingChangeCount is the number of changes waiting in one stream.
type PendingChangeCount struct {
	StreamName string
	Count      int64
}

// RunOutcome describes a finished run. It is returned for failed runs too.
type RunOutcome struct {
	RunID               string
	StartedAt           time.Time
	Duration            time.Duration
	State               State // COMPLETE or FAILED
	FailedIn            State // state the run was in when it failed
	Success             bool
	Streams             []Stream
	Counts              []PendingChangeCount
	TotalPendingChanges int64
	Populated           bool
	StagedTables        []StagedTableStatus
	Entities            []EntityResult
	Costs               *CostReport
	Recovered           []error // component errors the run degraded around
	Err                 error   // *ConnectionError or *PipelineError
}

// Orchestrator runs the pipeline state machine. It is single-threaded and
// holds one warehouse session for the duration of a run.
type Orchestrator struct {
	opener   SessionOpener
	tiers    *TierSelector
	c        Components
	logger   *logger.Logger
	now      func() time.Time
	newRunID func() string
}

// NewOrchestrator creates an orchestrator. Every component must be set.
func NewOrchestrator(cfg *config.Config, opener SessionOpener, c Components, log *logger.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if opener == nil {
		return nil, fmt.Errorf("session opener is nil")
	}
	if c.Monitor == nil || c.Watcher == nil || c.Populator == nil || c.Costs == nil || c.Audit == nil {
		return nil, fmt.Errorf("pipeline components are incomplete")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	return &Orchestrator{
		opener:   opener,
		tiers:    NewTierSelector(cfg.Warehouse.Tiers),
		c:        c,
		logger:   log,
		now:      time.Now,
		newRunID: uuid.NewString,
	}, nil
}

// run carries the mutable state of one execution.
type run struct {
	out     *RunOutcome
	state   State
	session *warehouse.Session
	log     *logger.Logger
}

func (r *run) enter(state State) {
	r.state = state
	r.log.Infow("Pipeline state", "state", string(state))
}

// absorb records a recovered component error. Escaping errors are returned.
func (r *run) absorb(ctx context.Context, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if escapes(ctx, err) {
		return false, err
	}
	r.out.Recovered = append(r.out.Recovered, err)
	return true, nil
}

// Run executes one pipeline run. The outcome is always non-nil. The error
// is a *ConnectionError when no session could be opened and a
// *PipelineError when a stage aborted the run.
func (o *Orchestrator) Run(ctx context.Context) (*RunOutcome, error) {
	out := &RunOutcome{
		RunID:     o.newRunID(),
		StartedAt: o.now(),
		Costs:     orderedmap.NewOrderedMap[string, TierCost](),
	}
	r := &run{out: out, log: o.logger.WithRun(out.RunID)}

	r.log.Info("Starting pipeline orchestration")
	r.enter(StateConnecting)

	session, err := o.opener.OpenSession(ctx)
	if err != nil {
		cerr := &ConnectionError{Err: err}
		r.log.Errorw("Failed to connect to warehouse", "error", err)
		o.fail(r, cerr)
		return out, cerr
	}
	r.session = session
	defer func() {
		if err := session.Close(); err != nil {
			r.log.Warnf("Failed to close warehouse session: %v", err)
		}
	}()

	if err := o.runStages(ctx, r); err != nil {
		perr := &PipelineError{State: r.state, Err: err}
		r.log.Errorw("Pipeline execution failed", "state", string(r.state), "error", err)
		// The run context may be the reason for the failure.
		o.c.Audit.Record(context.WithoutCancel(ctx), session, EventPipelineError, err.Error(), StatusFailure)
		o.fail(r, perr)
		return out, perr
	}

	return out, nil
}

func (o *Orchestrator) fail(r *run, err error) {
	r.out.FailedIn = r.state
	r.out.State = StateFailed
	r.out.Success = false
	r.out.Err = err
	r.out.Duration = o.now().Sub(r.out.StartedAt)
	r.state = StateFailed
}

func (o *Orchestrator) runStages(ctx context.Context, r *run) error {
	if err := o.checkStreams(ctx, r); err != nil {
		return err
	}
	if err := o.checkStagedTables(ctx, r); err != nil {
		return err
	}

	if r.out.TotalPendingChanges > 0 {
		if err := o.populate(ctx, r); err != nil {
			return err
		}
	} else {
		r.enter(StateSkipping)
		r.log.Info("No pending changes; skipping fact population")
	}

	if err := o.trackCosts(ctx, r); err != nil {
		return err
	}

	r.out.Duration = o.now().Sub(r.out.StartedAt)
	seconds := r.out.Duration.Seconds()
	r.log.Infof("Pipeline completed successfully in %.2f seconds", seconds)
	o.c.Audit.Record(ctx, r.session, EventPipelineComplete, fmt.Sprintf("Duration: %.2fs", seconds), StatusSuccess)

	r.enter(StateComplete)
	r.out.State = StateComplete
	r.out.Success = true
	return nil
}

func (o *Orchestrator) checkStreams(ctx context.Context, r *run) error {
	tier := o.tiers.Select(StageMonitoring)

	r.enter(StateCheckingStreams)
	streams, err := o.c.Monitor.CheckStreamStatus(ctx, r.session, tier)
	degraded, err := r.absorb(ctx, err)
	if err != nil {
		return err
	}
	r.out.Streams = streams

	r.enter(StateCountingChanges)
	for _, st := range streams {
		n, err := o.c.Monitor.StreamChangeCount(ctx, r.session, tier, st.Name)
		failed, err := r.absorb(ctx, err)
		if err != nil {
			return err
		}
		degraded = degraded || failed
		r.out.Counts = append(r.out.Counts, PendingChangeCount{StreamName: st.Name, Count: n})
		r.out.TotalPendingChanges += n
	}
	r.log.Infof("Total pending changes: %d", r.out.TotalPendingChanges)

	o.c.Audit.Record(ctx, r.session, EventStreamCheck,
		fmt.Sprintf("Checked %d streams", len(streams)), statusFor(degraded))
	return nil
}

func (o *Orchestrator) checkStagedTables(ctx context.Context, r *run) error {
	r.enter(StateCheckingStagedTables)

	statuses, err := o.c.Watcher.CheckDynamicTables(ctx, r.session, o.tiers.Select(StageCDCProcessing))
	r.out.StagedTables = statuses
	if err != nil {
		return err
	}

	failed, behind := 0, 0
	for _, st := range statuses {
		if st.Err != nil {
			failed++
			r.out.Recovered = append(r.out.Recovered, st.Err)
		}
		if st.Behind {
			behind++
		}
	}

	details := "Checked dynamic table status"
	if failed > 0 || behind > 0 {
		details = fmt.Sprintf("%s: %d of %d failed, %d behind target lag", details, failed, len(statuses), behind)
	}
	o.c.Audit.Record(ctx, r.session, EventDynamicTables, details, statusFor(failed > 0))
	return nil
}

func (o *Orchestrator) populate(ctx context.Context, r *run) error {
	r.enter(StatePopulating)

	results, err := o.c.Populator.Populate(ctx, r.session, o.tiers.Select(StageInteractiveAnalytics))
	r.out.Entities = results
	r.out.Populated = true
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			r.out.Recovered = append(r.out.Recovered, res.Err)
		}
	}
	if failed > 0 {
		r.log.Warnf("%d of %d fact tables failed to load", failed, len(results))
	}

	o.c.Audit.Record(ctx, r.session, EventAnalyticsRefresh,
		fmt.Sprintf("Processed %d changes", r.out.TotalPendingChanges), statusFor(failed > 0))
	return nil
}

func (o *Orchestrator) trackCosts(ctx context.Context, r *run) error {
	r.enter(StateTrackingCosts)

	costs, err := o.c.Costs.WarehouseCosts(ctx, r.session, o.tiers.Select(StageMonitoring))
	degraded, err := r.absorb(ctx, err)
	if err != nil {
		return err
	}
	if costs != nil {
		r.out.Costs = costs
	}

	o.c.Audit.Record(ctx, r.session, EventCostTracking,
		"Weekly costs: "+FormatCosts(r.out.Costs), statusFor(degraded))
	return nil
}

func statusFor(degraded bool) AuditStatus {
	if degraded {
		return StatusFailure
	}
	return StatusSuccess
}
