package healthmon

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/frozlab/tidelog/internal/executor"
	"github.com/frozlab/tidelog/internal/metrics"
)

func testParams() Params {
	return Params{
		SleepPeriod:                   100 * time.Millisecond,
		NumWorkers:                    4,
		MaxQueueStallsAvg:             20 * time.Millisecond,
		MaxQueueStallDuration:         50 * time.Millisecond,
		MaxOverloadedWorkerPercentage: 0.5,
		MaxStallsAvg:                  40 * time.Millisecond,
		MaxStalledWorkerPercentage:    0.25,
	}
}

// testMonitor drives the evaluator with a synthetic clock, bypassing
// the executor: tests own the single thread.
type testMonitor struct {
	*Monitor
	clock time.Time
}

func newTestMonitor(t *testing.T, params Params) *testMonitor {
	t.Helper()
	exec := executor.New(&executor.Config{Name: "test-monitor"})
	t.Cleanup(exec.Stop)

	m := New(exec, params, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	tm := &testMonitor{Monitor: m, clock: time.Unix(1000, 0)}
	m.now = func() time.Time { return tm.clock }
	m.stateTimer = NewStateTimer(params.SleepPeriod, params.SleepPeriod, maxTimerValue,
		timerMultiplier, timerDecreaseRate, timerFuzzFactor, tm.clock)
	m.updateVariables(tm.clock)
	return tm
}

// tick advances the clock one sleep period and evaluates, as the loop
// would.
func (tm *testMonitor) tick() {
	tm.clock = tm.clock.Add(tm.params.SleepPeriod)
	tm.processReports()
}

// Only a HEALTHY node serves; OVERLOADED sheds load just like UNHEALTHY.
func TestNodeStateServing(t *testing.T) {
	assert.True(t, NodeHealthy.Serving())
	assert.False(t, NodeOverloaded.Serving())
	assert.False(t, NodeUnhealthy.Serving())
}

func TestMonitorStaysHealthyWithoutReports(t *testing.T) {
	tm := newTestMonitor(t, testParams())

	for i := 0; i < 10; i++ {
		tm.tick()
		assert.Equal(t, NodeHealthy, tm.NodeState())
	}
	assert.Equal(t, tm.params.SleepPeriod, tm.stateTimer.Current())
	assert.Equal(t, 10.0, testutil.ToFloat64(tm.metrics.HealthMonitorStateIndicator))
}

// Queue stalls on half the workers push the node to OVERLOADED without
// making it UNHEALTHY: overload is not a negative-feedback signal.
func TestMonitorOverload(t *testing.T) {
	tm := newTestMonitor(t, testParams())

	for _, worker := range []int{0, 1} {
		for i := 0; i < 4; i++ {
			tm.info.workerQueueStalls[worker].Add(
				tm.clock.Add(time.Duration(10+10*i)*time.Millisecond),
				30*time.Millisecond)
		}
	}

	tm.tick()
	assert.Equal(t, NodeOverloaded, tm.NodeState())
	tm.tick()
	assert.Equal(t, NodeOverloaded, tm.NodeState())

	assert.Equal(t, 0.0, testutil.ToFloat64(tm.metrics.HealthMonitorStallIndicator))
	assert.Equal(t, 2.0, testutil.ToFloat64(tm.metrics.HealthMonitorOverloadIndicator))
}

// One idle worker short of the percentage threshold keeps the node out
// of OVERLOADED.
func TestMonitorOverloadBelowThreshold(t *testing.T) {
	tm := newTestMonitor(t, testParams())

	for i := 0; i < 4; i++ {
		tm.info.workerQueueStalls[0].Add(
			tm.clock.Add(time.Duration(10+10*i)*time.Millisecond),
			30*time.Millisecond)
	}

	tm.tick()
	assert.Equal(t, NodeHealthy, tm.NodeState())
}

// A critically stalled worker (stall >= sleep period) doubles the
// negative feedback and keeps the node UNHEALTHY until the hysteresis
// timer decays back down.
func TestMonitorCriticalStall(t *testing.T) {
	tm := newTestMonitor(t, testParams())

	tm.info.workerStalls[0].Add(tm.clock.Add(10*time.Millisecond), 120*time.Millisecond)

	tm.tick()
	assert.Equal(t, NodeUnhealthy, tm.NodeState())
	assert.Equal(t, 1, tm.stallInfo.CriticallyStalled)

	// With no further events the state must stay UNHEALTHY for at
	// least ceil(log2(max/min)) ticks before the timer can decay away.
	minUnhealthy := 7 // ceil(log2(10s / 100ms))
	unhealthy := 1
	for i := 0; i < 2000 && tm.NodeState() == NodeUnhealthy; i++ {
		tm.tick()
		if tm.NodeState() == NodeUnhealthy {
			unhealthy++
		}
	}
	assert.GreaterOrEqual(t, unhealthy, minUnhealthy)
	assert.Equal(t, NodeHealthy, tm.NodeState(), "node eventually recovers")
	assert.Equal(t, tm.params.SleepPeriod, tm.stateTimer.Current())
}

// A short stall trips the stall predicate and a single negative
// feedback, enough for UNHEALTHY but recovering sooner.
func TestMonitorShortStall(t *testing.T) {
	tm := newTestMonitor(t, testParams())

	tm.info.workerStalls[0].Add(tm.clock.Add(10*time.Millisecond), 50*time.Millisecond)

	tm.tick()
	assert.Equal(t, NodeUnhealthy, tm.NodeState())
	assert.Equal(t, 0, tm.stallInfo.CriticallyStalled)
	assert.True(t, tm.stallInfo.Stalled)
}

func TestMonitorWatchdogDelayIsNegativeSignal(t *testing.T) {
	tm := newTestMonitor(t, testParams())

	tm.info.watchdogDelay = true
	tm.tick()
	assert.Equal(t, NodeUnhealthy, tm.NodeState())

	tm.info.watchdogDelay = false
	for i := 0; i < 200 && tm.NodeState() != NodeHealthy; i++ {
		tm.tick()
	}
	assert.Equal(t, NodeHealthy, tm.NodeState())
}

func TestMonitorOverdueWakeupIsNegativeSignal(t *testing.T) {
	tm := newTestMonitor(t, testParams())

	tm.info.healthMonitorDelay = true
	tm.tick()
	assert.Equal(t, NodeUnhealthy, tm.NodeState())
}

// Intake methods only enqueue; mutation happens on the executor, and
// out-of-range worker indices are dropped silently.
func TestMonitorIntake(t *testing.T) {
	exec := executor.New(&executor.Config{Name: "intake-test"})
	t.Cleanup(exec.Stop)

	m := New(exec, testParams(), metrics.New(prometheus.NewRegistry()), zap.NewNop())

	m.ReportWorkerStall(1, 30*time.Millisecond)
	m.ReportWorkerQueueStall(2, 20*time.Millisecond)
	m.ReportWorkerStall(-1, 30*time.Millisecond)
	m.ReportWorkerStall(99, 30*time.Millisecond)
	m.ReportWatchdogHealth(true)
	m.ReportStalledWorkers(3)

	// Drain the executor by waiting for a sentinel task.
	done := make(chan struct{})
	require.True(t, exec.Submit(func() { close(done) }))
	<-done

	// Query a range that covers the samples' whole buckets so that
	// partial-bucket interpolation does not scale the count.
	now := time.Now()
	assert.Equal(t, 1.0, m.info.workerStalls[1].Count(now.Add(-time.Second), now.Add(time.Second)))
	assert.Equal(t, 1.0, m.info.workerQueueStalls[2].Count(now.Add(-time.Second), now.Add(time.Second)))
	assert.True(t, m.info.watchdogDelay)
	assert.Equal(t, 3, m.info.totalStalledWorkers)
}

// The loop runs on the executor, ticks, and resolves the shutdown
// future on its next wake; intake after shutdown is dropped but does
// not wedge anything.
func TestMonitorLoopShutdown(t *testing.T) {
	exec := executor.New(&executor.Config{Name: "loop-test"})
	defer exec.Stop()

	params := testParams()
	params.SleepPeriod = 10 * time.Millisecond
	reg := prometheus.NewRegistry()
	m := New(exec, params, metrics.New(reg), zap.NewNop())
	m.StartUp()

	time.Sleep(50 * time.Millisecond)

	done := m.Shutdown()
	m.ReportWorkerStall(0, time.Millisecond) // after shutdown: dropped

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown future did not resolve")
	}

	loops := testutil.ToFloat64(m.metrics.HealthMonitorNumLoops)
	assert.GreaterOrEqual(t, loops, 1.0)

	// No further ticks after shutdown resolved.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, loops, testutil.ToFloat64(m.metrics.HealthMonitorNumLoops))
}
