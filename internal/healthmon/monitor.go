// Package healthmon classifies the local node as healthy, overloaded
// or unhealthy from sliding-window time-series of per-worker request
// stalls and queue stalls, damped by a hysteresis timer so flapping
// cannot oscillate the reported state.
//
// All state lives behind a serial executor: report intake from
// arbitrary goroutines only enqueues closures, and the periodic loop,
// the window evaluator and the state timer all run on that executor.
package healthmon

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/frozlab/tidelog/internal/executor"
	"github.com/frozlab/tidelog/internal/metrics"
)

// NodeState is the health classification of the local node.
type NodeState int32

const (
	NodeHealthy NodeState = iota
	NodeOverloaded
	NodeUnhealthy
)

// Serving reports whether a node in this state should accept traffic.
// Only HEALTHY qualifies; an overloaded node must shed load just like
// an unhealthy one.
func (s NodeState) Serving() bool {
	return s == NodeHealthy
}

func (s NodeState) String() string {
	switch s {
	case NodeHealthy:
		return "HEALTHY"
	case NodeOverloaded:
		return "OVERLOADED"
	case NodeUnhealthy:
		return "UNHEALTHY"
	default:
		return "UNKNOWN"
	}
}

// Window and timer tuning. numPeriods*SleepPeriod is the series span;
// periodRange bounds how far back the evaluator slides its one-period
// windows.
const (
	numBuckets  = 6
	numPeriods  = 3
	periodRange = 2

	maxLoopStall      = 50 * time.Millisecond
	timerMultiplier   = 2.0
	timerDecreaseRate = time.Second
	timerFuzzFactor   = 0.1
	maxTimerValue     = 10 * time.Second
)

// Params configures the monitor thresholds.
type Params struct {
	SleepPeriod                   time.Duration
	NumWorkers                    int
	MaxQueueStallsAvg             time.Duration
	MaxQueueStallDuration         time.Duration
	MaxOverloadedWorkerPercentage float64
	MaxStallsAvg                  time.Duration
	MaxStalledWorkerPercentage    float64
}

// StallInfo is the per-tick stall evaluation result.
type StallInfo struct {
	CriticallyStalled int
	Stalled           bool
}

// internalInfo is mutated only on the monitor executor.
type internalInfo struct {
	numWorkers          int
	workerStalls        []*TimeSeries
	workerQueueStalls   []*TimeSeries
	watchdogDelay       bool
	totalStalledWorkers int
	healthMonitorDelay  bool
}

// Monitor is the node health monitor.
type Monitor struct {
	exec    *executor.Serial
	params  Params
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	shutdown     atomic.Bool
	shutdownOnce sync.Once
	shutdownDone chan struct{}

	// Everything below is owned by the executor.
	info       internalInfo
	stateTimer *StateTimer
	stallInfo  StallInfo
	overloaded bool
	lastEntry  time.Time

	state atomic.Int32
}

// New creates a monitor bound to exec. The monitor does not own the
// executor; callers stop it after Shutdown resolves.
func New(exec *executor.Serial, params Params, m *metrics.Metrics, logger *zap.Logger) *Monitor {
	window := numPeriods * params.SleepPeriod
	info := internalInfo{
		numWorkers:        params.NumWorkers,
		workerStalls:      make([]*TimeSeries, params.NumWorkers),
		workerQueueStalls: make([]*TimeSeries, params.NumWorkers),
	}
	for i := 0; i < params.NumWorkers; i++ {
		info.workerStalls[i] = NewTimeSeries(numBuckets, window)
		info.workerQueueStalls[i] = NewTimeSeries(numBuckets, window)
	}

	return &Monitor{
		exec:         exec,
		params:       params,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
		shutdownDone: make(chan struct{}),
		info:         info,
	}
}

// StartUp primes the series and schedules the first tick.
func (m *Monitor) StartUp() {
	m.exec.Submit(func() {
		now := m.now()
		m.stateTimer = NewStateTimer(
			m.params.SleepPeriod, // cannot be unhealthy shorter than one loop
			m.params.SleepPeriod,
			maxTimerValue,
			timerMultiplier,
			timerDecreaseRate,
			timerFuzzFactor,
			now)
		m.updateVariables(now)
		m.monitorLoop()
	})
}

// NodeState returns the current classification. Safe from any goroutine.
func (m *Monitor) NodeState() NodeState {
	return NodeState(m.state.Load())
}

// Shutdown requests the loop to stop and returns a channel that closes
// once the loop has observed the request. Callers must keep the
// executor running until the channel closes.
func (m *Monitor) Shutdown() <-chan struct{} {
	m.shutdown.Store(true)
	return m.shutdownDone
}

func (m *Monitor) monitorLoop() {
	m.lastEntry = m.now()
	m.exec.SubmitDelayed(m.params.SleepPeriod, m.tick)
}

func (m *Monitor) tick() {
	m.metrics.HealthMonitorNumLoops.Inc()

	if m.shutdown.Load() {
		m.shutdownOnce.Do(func() { close(m.shutdownDone) })
		return
	}
	loopEntryDelay := m.now().Sub(m.lastEntry)
	m.info.healthMonitorDelay = loopEntryDelay-m.params.SleepPeriod > maxLoopStall
	m.processReports()
	m.monitorLoop()
}

func (m *Monitor) processReports() {
	now := m.now()
	m.updateVariables(now)
	m.calculateNegativeSignal(now)

	state := NodeHealthy
	switch {
	case m.params.SleepPeriod < m.stateTimer.Current():
		state = NodeUnhealthy
	case m.overloaded:
		state = NodeOverloaded
	}
	m.state.Store(int32(state))
	if state == NodeHealthy {
		m.metrics.HealthMonitorStateIndicator.Inc()
	}
}

func (m *Monitor) updateVariables(now time.Time) {
	for _, ts := range m.info.workerStalls {
		ts.Update(now)
	}
	for _, ts := range m.info.workerQueueStalls {
		ts.Update(now)
	}
	m.stateTimer.PositiveFeedback(now) // calc how much time has passed
}

func (m *Monitor) calculateNegativeSignal(now time.Time) {
	halfPeriod := m.params.SleepPeriod / 2
	m.stallInfo = m.isStalled(now, halfPeriod)
	m.overloaded = m.isOverloaded(now, halfPeriod)

	if m.stallInfo.Stalled {
		m.metrics.HealthMonitorStallIndicator.Inc()
	}
	if m.overloaded {
		m.metrics.HealthMonitorOverloadIndicator.Inc()
	}

	if m.info.healthMonitorDelay || m.info.watchdogDelay ||
		m.info.totalStalledWorkers > 0 || m.stallInfo.Stalled {
		m.stateTimer.NegativeFeedback()
		m.stateTimer.PositiveFeedback(now) // for timekeeping purposes
	}
	if m.stallInfo.CriticallyStalled > 0 {
		m.stateTimer.NegativeFeedback()
		m.stateTimer.PositiveFeedback(now) // for timekeeping purposes
	}
}

// isOverloaded evaluates the queue-stall predicate: a worker is
// overloaded when, for any one-period window inside the past
// periodRange loops, the summed queue stalls reach
// MaxQueueStallDuration and their average reaches MaxQueueStallsAvg.
func (m *Monitor) isOverloaded(now time.Time, halfPeriod time.Duration) bool {
	overloadedWorkers := 0
	for _, ts := range m.info.workerQueueStalls {
		for p := 2; p <= 2*periodRange; p++ {
			from := now.Add(-time.Duration(p) * halfPeriod)
			to := now.Add(-time.Duration(p-2) * halfPeriod)
			sum := ts.Sum(from, to)
			count := ts.Count(from, to)
			if count == 0 {
				continue
			}
			avg := time.Duration(float64(sum) / count)
			if sum >= m.params.MaxQueueStallDuration && avg >= m.params.MaxQueueStallsAvg {
				overloadedWorkers++
				break
			}
		}
	}
	return float64(overloadedWorkers) >=
		m.params.MaxOverloadedWorkerPercentage*float64(m.info.numWorkers)
}

// isStalled evaluates the request-stall predicate over the same sliding
// windows, most recent first. The first window whose average stall
// reaches MaxStallsAvg decides for the worker; it counts as critically
// stalled only if that window's average also reaches the sleep period.
func (m *Monitor) isStalled(now time.Time, halfPeriod time.Duration) StallInfo {
	info := StallInfo{}
	stalledWorkers := 0
	for _, ts := range m.info.workerStalls {
		for p := 2; p <= 2*periodRange; p++ {
			from := now.Add(-time.Duration(p) * halfPeriod)
			to := now.Add(-time.Duration(p-2) * halfPeriod)
			count := ts.Count(from, to)
			if count == 0 {
				continue
			}
			avg := time.Duration(float64(ts.Sum(from, to)) / count)
			if avg >= m.params.MaxStallsAvg {
				if avg >= m.params.SleepPeriod {
					info.CriticallyStalled++
				}
				stalledWorkers++
				break
			}
		}
	}
	info.Stalled = float64(stalledWorkers) >=
		m.params.MaxStalledWorkerPercentage*float64(m.info.numWorkers)
	return info
}

// ReportWatchdogHealth records whether the watchdog observed delayed
// workers. Safe from any goroutine.
func (m *Monitor) ReportWatchdogHealth(delayed bool) {
	if m.shutdown.Load() {
		return
	}
	m.submitReport(func() {
		m.info.watchdogDelay = delayed
	})
}

// ReportStalledWorkers records the number of workers the watchdog
// currently considers stalled outright.
func (m *Monitor) ReportStalledWorkers(numStalled int) {
	if m.shutdown.Load() {
		return
	}
	m.submitReport(func() {
		m.info.totalStalledWorkers = numStalled
	})
}

// ReportWorkerQueueStall records a queue stall of the given duration on
// worker idx. Out-of-range indices are silently dropped.
func (m *Monitor) ReportWorkerQueueStall(idx int, duration time.Duration) {
	if m.shutdown.Load() {
		return
	}
	tp := m.now()
	m.submitReport(func() {
		if idx >= 0 && idx < len(m.info.workerQueueStalls) {
			m.info.workerQueueStalls[idx].Add(tp, duration)
		}
	})
}

// ReportWorkerStall records a request stall of the given duration on
// worker idx. Out-of-range indices are silently dropped.
func (m *Monitor) ReportWorkerStall(idx int, duration time.Duration) {
	if m.shutdown.Load() {
		return
	}
	tp := m.now()
	m.submitReport(func() {
		if idx >= 0 && idx < len(m.info.workerStalls) {
			m.info.workerStalls[idx].Add(tp, duration)
		}
	})
}

func (m *Monitor) submitReport(fn func()) {
	if !m.exec.Submit(fn) {
		m.metrics.HealthMonitorDroppedReports.Inc()
	}
}
