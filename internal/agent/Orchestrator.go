/*

This file contains the agent orchestrator: the state machine that drives the
scan / analyze / execute loop on two timers. A cheap quick scan runs every
ScanInterval and may trigger a full analysis out of band when the market
moves; the scheduled full analysis runs every FullAnalysisInterval
regardless. Consecutive cycle failures pause the agent until an operator
resumes it.

*/

package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elys-network/ara/internal/config"
	"github.com/elys-network/ara/internal/datafetcher"
	"github.com/elys-network/ara/internal/engine"
	"github.com/elys-network/ara/internal/executor"
	"github.com/elys-network/ara/internal/logger"
	"github.com/elys-network/ara/internal/notify"
	"github.com/elys-network/ara/internal/portfolio"
	"github.com/elys-network/ara/internal/settlement"
	"github.com/elys-network/ara/internal/types"
	"github.com/rs/zerolog"
)

// State names the orchestrator's current phase.
type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StateAnalyzing State = "analyzing"
	StateExecuting State = "executing"
	StatePaused    State = "paused"
	StateError     State = "error"
	StateStopped   State = "stopped"
)

var (
	// ErrAlreadyRunning is returned by Start on a running agent.
	ErrAlreadyRunning = errors.New("agent is already running")
	// ErrNotPaused is returned by Resume when the agent is not paused.
	ErrNotPaused = errors.New("agent is not paused")
)

// SnapshotSink persists per-cycle snapshots. A nil sink disables snapshots.
type SnapshotSink interface {
	SaveCycleSnapshot(snapshot types.CycleSnapshot) error
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Agent      config.AgentConfig
	Engine     *engine.Engine
	Executor   *executor.Executor
	Provider   datafetcher.YieldDataProvider
	Portfolio  portfolio.Store
	Settlement settlement.NetworkClient
	Snapshots  SnapshotSink
	Notifier   notify.Sink

	// InitialCycle seeds the cycle counter, usually from persistent state,
	// so numbering stays continuous across restarts.
	InitialCycle int
}

// Status is a point-in-time view of the orchestrator for the ops surface.
type Status struct {
	State             State     `json:"state"`
	RiskProfile       string    `json:"risk_profile"`
	CycleCount        int       `json:"cycle_count"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastError         string    `json:"last_error,omitempty"`
	LastCycleAt       time.Time `json:"last_cycle_at,omitempty"`
	CooldownActive    bool      `json:"cooldown_active"`
}

// Agent runs the autonomous rebalancing loop.
type Agent struct {
	logger     zerolog.Logger
	cfg        config.AgentConfig
	engine     *engine.Engine
	exec       *executor.Executor
	provider   datafetcher.YieldDataProvider
	store      portfolio.Store
	settlement settlement.NetworkClient
	snapshots  SnapshotSink
	notifier   notify.Sink
	events     *eventBus

	mu                sync.Mutex
	state             State
	started           bool
	analyzing         bool
	cycleCount        int
	consecutiveErrors int
	lastError         string
	lastCycleAt       time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an orchestrator. All collaborators except Snapshots and
// Notifier are required.
func New(cfg Config) (*Agent, error) {
	if err := cfg.Agent.Validate(); err != nil {
		return nil, fmt.Errorf("agent configuration validation failed: %w", err)
	}
	if cfg.Engine == nil {
		return nil, errors.New("agent requires a decision engine")
	}
	if cfg.Executor == nil {
		return nil, errors.New("agent requires a trade executor")
	}
	if cfg.Provider == nil {
		return nil, errors.New("agent requires a yield data provider")
	}
	if cfg.Portfolio == nil {
		return nil, errors.New("agent requires a portfolio store")
	}
	if cfg.Settlement == nil {
		return nil, errors.New("agent requires a settlement network client")
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewConsoleSink()
	}
	return &Agent{
		logger:     logger.GetForComponent("orchestrator"),
		cfg:        cfg.Agent,
		engine:     cfg.Engine,
		exec:       cfg.Executor,
		provider:   cfg.Provider,
		store:      cfg.Portfolio,
		settlement: cfg.Settlement,
		snapshots:  cfg.Snapshots,
		notifier:   notifier,
		events:     newEventBus(),
		state:      StateIdle,
		cycleCount: cfg.InitialCycle,
	}, nil
}

// Subscribe registers a handler for lifecycle events.
func (a *Agent) Subscribe(handler EventHandler) {
	a.events.subscribe(handler)
}

// Status returns a snapshot of the orchestrator's state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		State:             a.state,
		RiskProfile:       a.cfg.RiskProfile,
		CycleCount:        a.cycleCount,
		ConsecutiveErrors: a.consecutiveErrors,
		LastError:         a.lastError,
		LastCycleAt:       a.lastCycleAt,
		CooldownActive:    a.engine.CooldownActive(),
	}
}

// Start connects to the settlement network and launches the run loop. It
// returns once the loop is running; the loop itself stops when Stop is
// called or the context is cancelled.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.started = true
	a.mu.Unlock()

	if !a.settlement.Connected() {
		if err := a.settlement.Connect(ctx); err != nil {
			a.markStopped()
			return fmt.Errorf("settlement connect failed: %w", err)
		}
		if err := a.settlement.Authenticate(ctx); err != nil {
			a.markStopped()
			return fmt.Errorf("settlement authentication failed: %w", err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.events.emit(types.EventStarted, "agent started", map[string]any{
		"risk_profile":  a.cfg.RiskProfile,
		"scan_interval": a.cfg.ScanInterval.String(),
	})
	a.logger.Info().
		Str("riskProfile", a.cfg.RiskProfile).
		Dur("scanInterval", a.cfg.ScanInterval).
		Dur("fullAnalysisInterval", a.cfg.FullAnalysisInterval).
		Msg("Agent started")

	a.wg.Add(1)
	go a.runLoop(loopCtx, ctx)
	return nil
}

// Stop cancels the run loop's timers, waits for any in-flight cycle to
// finish, and disconnects. Cycle work runs under the caller's Start context,
// not the loop context, so a plan mid-execution is never aborted by Stop.
func (a *Agent) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	if err := a.settlement.Disconnect(); err != nil {
		a.logger.Warn().Err(err).Msg("Settlement disconnect failed during shutdown")
	}
	a.markStopped()
	a.events.emit(types.EventStopped, "agent stopped", nil)
	a.logger.Info().Msg("Agent stopped")
}

// Pause suspends cycle processing without tearing down timers or sessions.
func (a *Agent) Pause(reason string) {
	a.mu.Lock()
	if a.state == StatePaused || a.state == StateStopped {
		a.mu.Unlock()
		return
	}
	a.state = StatePaused
	a.mu.Unlock()

	a.events.emit(types.EventPaused, reason, nil)
	a.notifier.Notify(notify.LevelWarning, "Agent paused", reason, nil)
	a.logger.Warn().Str("reason", reason).Msg("Agent paused")
}

// Resume returns a paused agent to idle and clears the error streak.
func (a *Agent) Resume() error {
	a.mu.Lock()
	if a.state != StatePaused {
		a.mu.Unlock()
		return ErrNotPaused
	}
	a.state = StateIdle
	a.consecutiveErrors = 0
	a.lastError = ""
	a.mu.Unlock()

	a.events.emit(types.EventResumed, "agent resumed", nil)
	a.logger.Info().Msg("Agent resumed")
	return nil
}

// runLoop drives the timers off loopCtx and the cycles themselves off
// workCtx. Stop cancels only loopCtx, so an in-flight cycle completes its
// current trades before the loop exits.
func (a *Agent) runLoop(loopCtx, workCtx context.Context) {
	defer a.wg.Done()

	scanTicker := time.NewTicker(a.cfg.ScanInterval)
	defer scanTicker.Stop()
	analysisTicker := time.NewTicker(a.cfg.FullAnalysisInterval)
	defer analysisTicker.Stop()

	// First full cycle runs immediately, not one interval from now.
	a.runCycle(workCtx)

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-analysisTicker.C:
			a.runCycle(workCtx)
		case <-scanTicker.C:
			a.quickScan(workCtx)
		}
	}
}

// quickScan is the cheap ScanInterval pass: fetch, filter, and compare the
// best eligible APY against the best APY already held. A big enough edge
// triggers a full analysis cycle out of band.
func (a *Agent) quickScan(ctx context.Context) {
	if !a.enterState(StateScanning) {
		return
	}

	result, err := a.provider.Scan(ctx)
	if err != nil {
		a.handleCycleError(fmt.Errorf("quick scan failed: %w", err))
		return
	}
	a.events.emit(types.EventScanCompleted, "quick scan completed", map[string]any{
		"pools_scanned": result.Stats.PoolsScanned,
		"usable":        len(result.Pools),
	})

	eligible := a.engine.FilterEligible(result.Pools)
	var bestAPY float64
	for _, opp := range eligible {
		if opp.APY > bestAPY {
			bestAPY = opp.APY
		}
	}

	current, err := a.store.GetCurrentPortfolio()
	if err != nil {
		a.handleCycleError(fmt.Errorf("portfolio read failed: %w", err))
		return
	}

	profile := a.engine.Profile()
	edge := bestAPY - current.BestHeldAPY()
	// Upper bound on what the edge could pay: one max-size trade capturing
	// the full edge. A small book ignores edges that cannot clear the
	// benefit floor no matter how wide they are.
	impliedDailyUSD := current.TotalValueUSD * profile.MaxSingleTradePct * edge / 100 / 365
	if edge >= profile.MinApyDifferential && impliedDailyUSD >= profile.MinNetBenefitUSD {
		a.logger.Info().
			Float64("bestEligibleAPY", bestAPY).
			Float64("bestHeldAPY", current.BestHeldAPY()).
			Float64("impliedDailyUSD", impliedDailyUSD).
			Msg("Quick scan found a significant edge, running full analysis")
		a.leaveState()
		a.analyzeAndExecute(ctx, current, result)
		return
	}

	a.clearErrorStreak()
	a.leaveState()
}

// runCycle is one scheduled full pass: scan, then analyze and execute.
func (a *Agent) runCycle(ctx context.Context) {
	if !a.enterState(StateScanning) {
		return
	}

	if err := a.store.AccrueYield(time.Now()); err != nil {
		a.handleCycleError(fmt.Errorf("yield accrual failed: %w", err))
		return
	}
	current, err := a.store.GetCurrentPortfolio()
	if err != nil {
		a.handleCycleError(fmt.Errorf("portfolio read failed: %w", err))
		return
	}

	result, err := a.provider.Scan(ctx)
	if err != nil {
		a.handleCycleError(fmt.Errorf("scan failed: %w", err))
		return
	}
	a.events.emit(types.EventScanCompleted, "scan completed", map[string]any{
		"pools_scanned": result.Stats.PoolsScanned,
		"usable":        len(result.Pools),
	})

	a.leaveState()
	a.analyzeAndExecute(ctx, current, result)
}

// analyzeAndExecute runs the decision engine and, when it says to act, the
// executor. Only one analysis runs at a time; a quick-scan trigger racing
// the scheduled timer is dropped, not queued.
func (a *Agent) analyzeAndExecute(ctx context.Context, current types.Portfolio, scan types.ScanResult) {
	a.mu.Lock()
	if a.analyzing || a.state == StatePaused || a.state == StateStopped {
		a.mu.Unlock()
		return
	}
	a.analyzing = true
	a.state = StateAnalyzing
	a.cycleCount++
	cycleNumber := a.cycleCount
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.analyzing = false
		a.lastCycleAt = time.Now()
		if a.state == StateAnalyzing || a.state == StateExecuting {
			a.state = StateIdle
		}
		a.mu.Unlock()
	}()

	snapshot := types.CycleSnapshot{
		CycleNumber:          cycleNumber,
		Timestamp:            time.Now(),
		RiskProfile:          a.cfg.RiskProfile,
		InitialTotalValueUSD: current.TotalValueUSD,
		InitialIdleUSD:       current.IdleBalanceUSD(),
		InitialPositions:     current.Positions,
	}

	decision := a.engine.Analyze(current, scan.Pools)
	snapshot.Decision = decision.Reason

	if !decision.ShouldAct {
		a.logger.Info().Str("reason", decision.Reason).Msg("Cycle ended without action")
		a.clearErrorStreak()
		a.finishCycle(&snapshot, current)
		return
	}

	snapshot.Plan = decision.Plan
	a.events.emit(types.EventOpportunityFound, decision.Reason, map[string]any{
		"plan_id":       decision.Plan.ID,
		"opportunities": len(decision.Plan.Opportunities),
	})

	a.mu.Lock()
	a.state = StateExecuting
	a.mu.Unlock()
	a.events.emit(types.EventExecutionStarted, "plan execution started", map[string]any{
		"plan_id": decision.Plan.ID,
	})

	result, err := a.exec.ExecutePlan(ctx, decision.Plan)
	if err != nil {
		a.handleCycleError(fmt.Errorf("plan execution failed: %w", err))
		snapshot.ErrorCount = 1
		a.finishCycle(&snapshot, current)
		return
	}

	a.engine.MarkRebalanceExecuted()
	snapshot.Executions = result.Executions
	snapshot.TotalCostUSD = result.TotalCostUSD
	snapshot.TotalReceivedUSD = result.TotalReceivedUSD
	snapshot.ErrorCount = len(result.Errors)

	a.events.emit(types.EventExecutionCompleted, "plan execution completed", map[string]any{
		"plan_id":  decision.Plan.ID,
		"success":  result.Success,
		"failures": len(result.Errors),
	})

	if result.Success {
		a.clearErrorStreak()
	} else {
		a.handleCycleError(fmt.Errorf("%d of %d trades failed", len(result.Errors), len(decision.Plan.Opportunities)))
	}

	final, ferr := a.store.GetCurrentPortfolio()
	if ferr != nil {
		a.logger.Warn().Err(ferr).Msg("Could not read final portfolio for snapshot")
		final = current
	}
	a.finishCycle(&snapshot, final)
}

func (a *Agent) finishCycle(snapshot *types.CycleSnapshot, final types.Portfolio) {
	snapshot.FinalTotalValueUSD = final.TotalValueUSD
	snapshot.FinalIdleUSD = final.IdleBalanceUSD()
	if a.snapshots == nil {
		return
	}
	if err := a.snapshots.SaveCycleSnapshot(*snapshot); err != nil {
		a.logger.Error().Err(err).Int("cycle", snapshot.CycleNumber).Msg("Failed to persist cycle snapshot")
	}
}

// enterState moves idle -> next; paused, stopped, or busy agents refuse.
func (a *Agent) enterState(next State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateIdle && a.state != StateError {
		return false
	}
	a.state = next
	return true
}

func (a *Agent) leaveState() {
	a.mu.Lock()
	if a.state != StatePaused && a.state != StateStopped {
		a.state = StateIdle
	}
	a.mu.Unlock()
}

// handleCycleError records a failure and pauses the agent once the
// consecutive-error threshold is reached.
func (a *Agent) handleCycleError(err error) {
	a.mu.Lock()
	a.consecutiveErrors++
	a.lastError = err.Error()
	streak := a.consecutiveErrors
	if a.state != StatePaused && a.state != StateStopped {
		a.state = StateError
	}
	a.mu.Unlock()

	a.logger.Error().Err(err).Int("consecutiveErrors", streak).Msg("Cycle error")
	a.events.emit(types.EventError, err.Error(), map[string]any{
		"consecutive_errors": streak,
	})

	if streak >= a.cfg.PauseOnConsecutiveErrors {
		a.Pause(fmt.Sprintf("%d consecutive errors, last: %v", streak, err))
		return
	}
	a.leaveState()
}

func (a *Agent) clearErrorStreak() {
	a.mu.Lock()
	a.consecutiveErrors = 0
	a.lastError = ""
	a.mu.Unlock()
}

func (a *Agent) markStopped() {
	a.mu.Lock()
	a.state = StateStopped
	a.started = false
	a.mu.Unlock()
}
