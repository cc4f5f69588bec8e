package zk

import (
	"fmt"
	"strings"

	gozk "github.com/go-zookeeper/zk"
	"go.uber.org/zap"
)

// client is the production Client backed by a go-zookeeper session.
// go-zookeeper's API is synchronous; each operation is dispatched on
// its own goroutine to satisfy the non-blocking callback contract.
// Per-node ordering is provided by the ensemble, not by the client.
type client struct {
	conn   *gozk.Conn
	quorum string
	logger *zap.Logger
}

// NewClient dials the ensemble named by cfg.Quorum and returns a
// connected session. It is the production Factory.
func NewClient(cfg Config, logger *zap.Logger) (Client, error) {
	servers := strings.Split(cfg.Quorum, ",")
	for i := range servers {
		servers[i] = strings.TrimSpace(servers[i])
	}

	conn, events, err := gozk.Connect(servers, cfg.SessionTimeout,
		gozk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper quorum %q: %w", cfg.Quorum, err)
	}

	c := &client{
		conn:   conn,
		quorum: cfg.Quorum,
		logger: logger,
	}
	go c.drainEvents(events)
	return c, nil
}

// NewFactory returns a Factory closed over logger.
func NewFactory(logger *zap.Logger) Factory {
	return func(cfg Config) (Client, error) {
		return NewClient(cfg, logger)
	}
}

func (c *client) drainEvents(events <-chan gozk.Event) {
	for ev := range events {
		if ev.Type == gozk.EventSession {
			c.logger.Info("zookeeper session event",
				zap.String("state", ev.State.String()),
				zap.String("server", ev.Server))
		}
	}
}

func (c *client) GetData(path string, cb GetCallback) {
	go func() {
		value, stat, err := c.conn.Get(path)
		if err != nil {
			cb(mapError(err), nil, Stat{})
			return
		}
		cb(nil, value, Stat{Version: stat.Version})
	}()
}

func (c *client) SetData(path string, value []byte, version int32, cb SetCallback) {
	go func() {
		stat, err := c.conn.Set(path, value, version)
		if err != nil {
			cb(mapError(err), Stat{})
			return
		}
		cb(nil, Stat{Version: stat.Version})
	}()
}

func (c *client) Multi(ops []CreateOp, cb MultiCallback) {
	reqs := make([]interface{}, 0, len(ops))
	for _, op := range ops {
		reqs = append(reqs, &gozk.CreateRequest{
			Path:  op.Path,
			Data:  op.Value,
			Acl:   gozk.WorldACL(gozk.PermAll),
			Flags: 0,
		})
	}
	go func() {
		responses, err := c.conn.Multi(reqs...)
		results := make([]OpResponse, len(responses))
		for i, r := range responses {
			results[i] = OpResponse{Err: mapError(r.Error)}
		}
		cb(mapError(err), results)
	}()
}

func (c *client) State() SessionState {
	switch c.conn.State() {
	case gozk.StateExpired:
		return StateExpired
	case gozk.StateAuthFailed:
		return StateAuthFailed
	case gozk.StateConnecting:
		return StateConnecting
	case gozk.StateConnected, gozk.StateHasSession:
		return StateConnected
	case gozk.StateDisconnected:
		return StateDisconnected
	default:
		return StateUnknown
	}
}

func (c *client) Quorum() string {
	return c.quorum
}

func (c *client) Close() {
	c.conn.Close()
}

// mapError translates go-zookeeper errors into this package's sentinels
// so the rest of the repo never depends on the library directly.
func mapError(err error) error {
	switch err {
	case nil:
		return nil
	case gozk.ErrNoNode:
		return ErrNoNode
	case gozk.ErrNodeExists:
		return ErrNodeExists
	case gozk.ErrBadVersion:
		return ErrBadVersion
	case gozk.ErrBadArguments:
		return ErrBadArguments
	case gozk.ErrSessionExpired:
		return ErrSessionExpired
	case gozk.ErrNoAuth, gozk.ErrAuthFailed:
		return ErrNoAuth
	case gozk.ErrClosing:
		return ErrClosing
	case gozk.ErrConnectionClosed:
		return ErrConnectionClosed
	default:
		return err
	}
}
