// Package executor provides a serial task executor: tasks submitted
// from any goroutine run one at a time, in FIFO order, on a single
// runner goroutine. Components built on it (the health monitor, the
// epoch-store completion path) get single-threaded discipline over
// their state without locks.
package executor

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Serial is a single-goroutine FIFO executor.
type Serial struct {
	name      string
	taskQueue chan func()
	logger    *zap.Logger
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopChan  chan struct{}

	submitted uint64
	completed uint64
	rejected  uint64
}

// Config holds executor configuration.
type Config struct {
	Name      string
	QueueSize int
	Logger    *zap.Logger
}

// New creates a serial executor and starts its runner goroutine.
func New(cfg *Config) *Serial {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	e := &Serial{
		name:      cfg.Name,
		taskQueue: make(chan func(), cfg.QueueSize),
		logger:    cfg.Logger,
		stopChan:  make(chan struct{}),
	}

	e.wg.Add(1)
	go e.run()
	return e
}

func (e *Serial) run() {
	defer e.wg.Done()
	for {
		select {
		case task := <-e.taskQueue:
			task()
			atomic.AddUint64(&e.completed, 1)
		case <-e.stopChan:
			// Drain what was accepted before the stop.
			for {
				select {
				case task := <-e.taskQueue:
					task()
					atomic.AddUint64(&e.completed, 1)
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues fn. It returns false if the executor is stopped or
// the queue is full; the task is dropped in that case.
func (e *Serial) Submit(fn func()) bool {
	select {
	case <-e.stopChan:
		atomic.AddUint64(&e.rejected, 1)
		return false
	default:
	}

	select {
	case e.taskQueue <- fn:
		atomic.AddUint64(&e.submitted, 1)
		return true
	default:
		atomic.AddUint64(&e.rejected, 1)
		e.logger.Warn("executor queue full, dropping task",
			zap.String("executor", e.name))
		return false
	}
}

// SubmitDelayed schedules fn to be enqueued after d. The timer fires
// on its own goroutine; execution still happens on the runner. The
// returned timer can be used to cancel a pending submission.
func (e *Serial) SubmitDelayed(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		e.Submit(fn)
	})
}

// Stop shuts the executor down. Tasks already accepted run to
// completion; subsequent Submit calls are rejected. Stop blocks until
// the runner exits.
func (e *Serial) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
	e.wg.Wait()
}

// Stats returns cumulative submitted, completed and rejected counts.
func (e *Serial) Stats() (submitted, completed, rejected uint64) {
	return atomic.LoadUint64(&e.submitted),
		atomic.LoadUint64(&e.completed),
		atomic.LoadUint64(&e.rejected)
}
