package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/elys-network/ara/internal/bridge"
	"github.com/elys-network/ara/internal/config"
	"github.com/elys-network/ara/internal/engine"
	"github.com/elys-network/ara/internal/executor"
	"github.com/elys-network/ara/internal/portfolio"
	"github.com/elys-network/ara/internal/settlement"
	"github.com/elys-network/ara/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu    sync.Mutex
	pools []types.YieldOpportunity
	err   error
	calls int
}

func (f *fakeProvider) Scan(ctx context.Context) (types.ScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return types.ScanResult{}, f.err
	}
	return types.ScanResult{
		Pools: f.pools,
		Stats: types.ScanStats{PoolsScanned: len(f.pools), FetchedAt: time.Now()},
	}, nil
}

type stubSettlement struct {
	balance float64
}

func (s *stubSettlement) Connect(ctx context.Context) error      { return nil }
func (s *stubSettlement) Authenticate(ctx context.Context) error { return nil }
func (s *stubSettlement) Connected() bool                        { return true }
func (s *stubSettlement) Disconnect() error                      { return nil }
func (s *stubSettlement) AssetPrecision(asset string) int        { return 6 }
func (s *stubSettlement) GetLedgerBalance(ctx context.Context, asset string) (float64, error) {
	return s.balance, nil
}
func (s *stubSettlement) Transfer(ctx context.Context, destination, asset string, amount decimal.Decimal) (string, error) {
	return "receipt-1", nil
}

type stubBridge struct{}

func (s *stubBridge) GetQuote(ctx context.Context, fromChain, toChain, fromToken, toToken string, amountUSD float64, userAddress string) (*bridge.Quote, error) {
	return &bridge.Quote{
		ToAmountUSD:    amountUSD,
		ToAmountMinUSD: amountUSD,
		BridgeName:     "stub",
	}, nil
}

type captureSink struct {
	mu    sync.Mutex
	snaps []types.CycleSnapshot
}

func (c *captureSink) SaveCycleSnapshot(snapshot types.CycleSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, snapshot)
	return nil
}

func newTestAgent(t *testing.T, provider *fakeProvider, store portfolio.Store, sink SnapshotSink) *Agent {
	t.Helper()
	return newTestAgentWith(t, provider, store, sink, &stubSettlement{balance: 1_000_000})
}

func newTestAgentWith(t *testing.T, provider *fakeProvider, store portfolio.Store, sink SnapshotSink, settle settlement.NetworkClient) *Agent {
	t.Helper()
	cfg := config.DefaultAgentConfig

	eng, err := engine.New(cfg)
	require.NoError(t, err)

	exec, err := executor.New(executor.Config{
		Agent:      cfg,
		Settlement: settle,
		Bridge:     &stubBridge{},
		Portfolio:  store,
	})
	require.NoError(t, err)

	a, err := New(Config{
		Agent:      cfg,
		Engine:     eng,
		Executor:   exec,
		Provider:   provider,
		Portfolio:  store,
		Settlement: settle,
		Snapshots:  sink,
	})
	require.NoError(t, err)
	return a
}

func collectEvents(a *Agent) *[]types.EventType {
	var mu sync.Mutex
	events := &[]types.EventType{}
	a.Subscribe(func(e types.Event) {
		mu.Lock()
		*events = append(*events, e.Type)
		mu.Unlock()
	})
	return events
}

func TestRunCyclePausesAfterConsecutiveErrors(t *testing.T) {
	provider := &fakeProvider{err: errors.New("feed down")}
	a := newTestAgent(t, provider, portfolio.NewMemoryStore(), &captureSink{})
	events := collectEvents(a)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		a.runCycle(ctx)
	}

	status := a.Status()
	assert.Equal(t, StatePaused, status.State)
	assert.Equal(t, 3, status.ConsecutiveErrors)
	assert.Contains(t, status.LastError, "feed down")
	assert.Contains(t, *events, types.EventError)
	assert.Contains(t, *events, types.EventPaused)

	// A paused agent skips further cycles.
	before := provider.calls
	a.runCycle(ctx)
	assert.Equal(t, before, provider.calls)

	require.NoError(t, a.Resume())
	status = a.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.Zero(t, status.ConsecutiveErrors)
	assert.Contains(t, *events, types.EventResumed)
}

func TestResumeOnlyWorksWhenPaused(t *testing.T) {
	a := newTestAgent(t, &fakeProvider{}, portfolio.NewMemoryStore(), &captureSink{})
	assert.ErrorIs(t, a.Resume(), ErrNotPaused)
}

func TestSuccessfulCycleClearsErrorStreak(t *testing.T) {
	provider := &fakeProvider{err: errors.New("feed down")}
	a := newTestAgent(t, provider, portfolio.NewMemoryStore(), &captureSink{})

	ctx := context.Background()
	a.runCycle(ctx)
	assert.Equal(t, 1, a.Status().ConsecutiveErrors)

	provider.mu.Lock()
	provider.err = nil
	provider.mu.Unlock()

	a.runCycle(ctx)
	status := a.Status()
	assert.Zero(t, status.ConsecutiveErrors)
	assert.Equal(t, StateIdle, status.State)
}

func TestFullCycleExecutesPlanAndSnapshots(t *testing.T) {
	store := portfolio.NewMemoryStore()
	require.NoError(t, store.AddPosition(types.Position{
		ID: "settlement:cash:usdc", ChainID: "settlement", Protocol: "cash",
		PoolID: "usdc", BalanceUSD: 10_000, Idle: true, UpdatedAt: time.Now(),
	}))

	provider := &fakeProvider{pools: []types.YieldOpportunity{{
		ChainID: "arbitrum", Protocol: "aave-v3", PoolID: "pool-a", Symbol: "USDC",
		APY: 8.0, TvlUSD: 20_000_000, RiskScore: 2,
	}}}
	sink := &captureSink{}
	a := newTestAgent(t, provider, store, sink)
	events := collectEvents(a)

	a.runCycle(context.Background())

	status := a.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.Equal(t, 1, status.CycleCount)
	assert.Zero(t, status.ConsecutiveErrors)
	// An executed plan starts the rebalance cooldown.
	assert.True(t, status.CooldownActive)

	require.Len(t, sink.snaps, 1)
	snap := sink.snaps[0]
	assert.Equal(t, 1, snap.CycleNumber)
	require.NotNil(t, snap.Plan)
	require.Len(t, snap.Executions, 1)
	assert.Equal(t, types.ExecutionCompleted, snap.Executions[0].Status)
	assert.InDelta(t, 10_000, snap.InitialIdleUSD, 1e-9)
	assert.Less(t, snap.FinalIdleUSD, snap.InitialIdleUSD)

	assert.Contains(t, *events, types.EventScanCompleted)
	assert.Contains(t, *events, types.EventOpportunityFound)
	assert.Contains(t, *events, types.EventExecutionStarted)
	assert.Contains(t, *events, types.EventExecutionCompleted)
}

func TestQuickScanTriggersOutOfBandAnalysis(t *testing.T) {
	store := portfolio.NewMemoryStore()
	require.NoError(t, store.AddPosition(types.Position{
		ID: "arbitrum:aave-v3:pool-a", ChainID: "arbitrum", Protocol: "aave-v3",
		PoolID: "pool-a", BalanceUSD: 100_000, CurrentAPY: 5.0, UpdatedAt: time.Now(),
	}))

	// The best eligible APY beats the best held APY by well over the
	// differential, so the quick scan escalates to a full analysis.
	provider := &fakeProvider{pools: []types.YieldOpportunity{{
		ChainID: "arbitrum", Protocol: "curve", PoolID: "pool-c", Symbol: "USDC",
		APY: 12.0, TvlUSD: 5_000_000, RiskScore: 4,
	}}}
	sink := &captureSink{}
	a := newTestAgent(t, provider, store, sink)

	a.quickScan(context.Background())

	status := a.Status()
	assert.Equal(t, 1, status.CycleCount)
	require.Len(t, sink.snaps, 1)
	require.NotNil(t, sink.snaps[0].Plan)
}

func TestQuickScanWithoutEdgeStaysQuiet(t *testing.T) {
	store := portfolio.NewMemoryStore()
	require.NoError(t, store.AddPosition(types.Position{
		ID: "arbitrum:aave-v3:pool-a", ChainID: "arbitrum", Protocol: "aave-v3",
		PoolID: "pool-a", BalanceUSD: 100_000, CurrentAPY: 10.0, UpdatedAt: time.Now(),
	}))

	// Two points of edge is under the five-point differential.
	provider := &fakeProvider{pools: []types.YieldOpportunity{{
		ChainID: "arbitrum", Protocol: "curve", PoolID: "pool-c", Symbol: "USDC",
		APY: 12.0, TvlUSD: 5_000_000, RiskScore: 4,
	}}}
	sink := &captureSink{}
	a := newTestAgent(t, provider, store, sink)

	a.quickScan(context.Background())

	assert.Zero(t, a.Status().CycleCount)
	assert.Empty(t, sink.snaps)
	assert.Equal(t, StateIdle, a.Status().State)
}

func TestQuickScanSmallPortfolioIgnoresBigEdge(t *testing.T) {
	store := portfolio.NewMemoryStore()
	require.NoError(t, store.AddPosition(types.Position{
		ID: "arbitrum:aave-v3:pool-a", ChainID: "arbitrum", Protocol: "aave-v3",
		PoolID: "pool-a", BalanceUSD: 100, CurrentAPY: 5.0, UpdatedAt: time.Now(),
	}))

	// Seven points of edge on a 100 USD book implies well under a cent a
	// day, nowhere near the benefit floor.
	provider := &fakeProvider{pools: []types.YieldOpportunity{{
		ChainID: "arbitrum", Protocol: "curve", PoolID: "pool-c", Symbol: "USDC",
		APY: 12.0, TvlUSD: 5_000_000, RiskScore: 4,
	}}}
	sink := &captureSink{}
	a := newTestAgent(t, provider, store, sink)

	a.quickScan(context.Background())

	assert.Zero(t, a.Status().CycleCount)
	assert.Empty(t, sink.snaps)
	assert.Equal(t, StateIdle, a.Status().State)
}

// blockingSettlement parks Transfer until released so shutdown can race it.
type blockingSettlement struct {
	stubSettlement
	started chan struct{}
	release chan struct{}

	once           sync.Once
	mu             sync.Mutex
	transferCtxErr error
	completed      bool
}

func (s *blockingSettlement) Transfer(ctx context.Context, destination, asset string, amount decimal.Decimal) (string, error) {
	s.once.Do(func() { close(s.started) })
	<-s.release

	s.mu.Lock()
	s.transferCtxErr = ctx.Err()
	s.completed = true
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "receipt-slow", nil
}

func TestStopLetsInFlightExecutionFinish(t *testing.T) {
	store := portfolio.NewMemoryStore()
	require.NoError(t, store.AddPosition(types.Position{
		ID: "settlement:cash:usdc", ChainID: "settlement", Protocol: "cash",
		PoolID: "usdc", BalanceUSD: 10_000, Idle: true, UpdatedAt: time.Now(),
	}))
	provider := &fakeProvider{pools: []types.YieldOpportunity{{
		ChainID: "arbitrum", Protocol: "aave-v3", PoolID: "pool-a", Symbol: "USDC",
		APY: 8.0, TvlUSD: 20_000_000, RiskScore: 2,
	}}}
	settle := &blockingSettlement{
		stubSettlement: stubSettlement{balance: 1_000_000},
		started:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	sink := &captureSink{}
	a := newTestAgentWith(t, provider, store, sink, settle)

	require.NoError(t, a.Start(context.Background()))
	<-settle.started

	stopped := make(chan struct{})
	go func() {
		a.Stop()
		close(stopped)
	}()

	// Give Stop time to cancel the timers while the transfer is parked.
	time.Sleep(50 * time.Millisecond)
	close(settle.release)
	<-stopped

	settle.mu.Lock()
	defer settle.mu.Unlock()
	assert.True(t, settle.completed)
	assert.NoError(t, settle.transferCtxErr)

	require.Len(t, sink.snaps, 1)
	require.Len(t, sink.snaps[0].Executions, 1)
	assert.Equal(t, types.ExecutionCompleted, sink.snaps[0].Executions[0].Status)
	assert.Equal(t, StateStopped, a.Status().State)
}

func TestStartAndStopLifecycle(t *testing.T) {
	provider := &fakeProvider{}
	a := newTestAgent(t, provider, portfolio.NewMemoryStore(), &captureSink{})
	events := collectEvents(a)

	require.NoError(t, a.Start(context.Background()))
	assert.ErrorIs(t, a.Start(context.Background()), ErrAlreadyRunning)

	a.Stop()
	status := a.Status()
	assert.Equal(t, StateStopped, status.State)
	assert.Contains(t, *events, types.EventStarted)
	assert.Contains(t, *events, types.EventStopped)

	// The initial cycle ran before the stop.
	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.GreaterOrEqual(t, provider.calls, 1)
}

func TestEventHandlerPanicIsIsolated(t *testing.T) {
	bus := newEventBus()
	bus.subscribe(func(types.Event) { panic("bad handler") })

	var got []types.Event
	bus.subscribe(func(e types.Event) { got = append(got, e) })

	bus.emit(types.EventStarted, "hello", nil)
	require.Len(t, got, 1)
	assert.Equal(t, types.EventStarted, got[0].Type)
	assert.Equal(t, "hello", got[0].Message)
}
