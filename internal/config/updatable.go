package config

import (
	"sync"
)

// UpdatableZookeeper is a live cell holding the current ZookeeperConfig.
// Readers take a snapshot; writers publish a replacement and notify
// subscribers. The epoch store subscribes to rebind its client when the
// quorum changes.
type UpdatableZookeeper struct {
	mu     sync.Mutex
	cur    *ZookeeperConfig
	subs   map[int]func()
	nextID int
}

// NewUpdatableZookeeper creates a cell holding cfg.
func NewUpdatableZookeeper(cfg *ZookeeperConfig) *UpdatableZookeeper {
	return &UpdatableZookeeper{
		cur:  cfg,
		subs: make(map[int]func()),
	}
}

// Get returns the current config snapshot. May be nil if a writer
// published nil.
func (u *UpdatableZookeeper) Get() *ZookeeperConfig {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cur
}

// Store publishes cfg and notifies subscribers. Callbacks run on the
// caller's goroutine, outside the cell's lock.
func (u *UpdatableZookeeper) Store(cfg *ZookeeperConfig) {
	u.mu.Lock()
	u.cur = cfg
	callbacks := make([]func(), 0, len(u.subs))
	for _, fn := range u.subs {
		callbacks = append(callbacks, fn)
	}
	u.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Subscribe registers fn to run after every Store. The returned
// function removes the subscription.
func (u *UpdatableZookeeper) Subscribe(fn func()) (unsubscribe func()) {
	u.mu.Lock()
	defer u.mu.Unlock()
	id := u.nextID
	u.nextID++
	u.subs[id] = fn
	return func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		delete(u.subs, id)
	}
}
