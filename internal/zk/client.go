// Package zk abstracts the ZooKeeper ensemble behind a small
// callback-based client. The epoch store issues non-blocking reads,
// versioned writes and atomic multi-creates and receives completions
// asynchronously; per-node linearizability is inherited from ZooKeeper.
package zk

import (
	"errors"
	"time"

	"github.com/frozlab/tidelog/internal/status"
)

// Operation errors surfaced through completion callbacks. The
// production client maps go-zookeeper errors onto these; fakes return
// them directly.
var (
	// ErrNoNode: the node, or an ancestor required by a create, is absent.
	ErrNoNode = errors.New("zk: node does not exist")

	// ErrNodeExists: a create targeted an existing node.
	ErrNodeExists = errors.New("zk: node already exists")

	// ErrBadVersion: a versioned write observed a different version.
	ErrBadVersion = errors.New("zk: version conflict")

	// ErrBadArguments: the client rejected the operation outright.
	ErrBadArguments = errors.New("zk: bad arguments")

	// ErrInvalidState: the session is in no state to serve the call;
	// query State() for the reason.
	ErrInvalidState = errors.New("zk: invalid session state")

	// ErrRuntimeInconsistency: the ensemble detected an internal
	// inconsistency while applying the operation.
	ErrRuntimeInconsistency = errors.New("zk: runtime inconsistency")

	// ErrClosing: the client is shutting down.
	ErrClosing = errors.New("zk: client closing")

	// ErrSessionExpired: the session expired before the call completed.
	ErrSessionExpired = errors.New("zk: session expired")

	// ErrNoAuth: the session lacks permission on the node.
	ErrNoAuth = errors.New("zk: not authorized")

	// ErrConnectionClosed: the connection dropped mid-call.
	ErrConnectionClosed = errors.New("zk: connection closed")
)

// SessionState is the coarse state of a ZooKeeper session.
type SessionState int

const (
	StateUnknown SessionState = iota
	StateConnecting
	StateConnected
	StateExpired
	StateAuthFailed
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateExpired:
		return "EXPIRED"
	case StateAuthFailed:
		return "AUTH_FAILED"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Stat carries the znode metadata relevant to optimistic writes.
type Stat struct {
	Version int32
}

// CreateOp is one create inside a multi-op transaction.
type CreateOp struct {
	Path  string
	Value []byte
}

// OpResponse is the per-operation outcome of a multi-op.
type OpResponse struct {
	Err error
}

// Callback signatures. Callbacks run on a client-owned goroutine; they
// must not block on the client.
type (
	GetCallback   func(err error, value []byte, stat Stat)
	SetCallback   func(err error, stat Stat)
	MultiCallback func(err error, results []OpResponse)
)

// Client is the coordination-service session used by the epoch store.
type Client interface {
	// GetData fetches the value and stat of the node at path.
	GetData(path string, cb GetCallback)

	// SetData writes value to the node at path if and only if its
	// current version equals version.
	SetData(path string, value []byte, version int32, cb SetCallback)

	// Multi runs ops as one atomic transaction.
	Multi(ops []CreateOp, cb MultiCallback)

	// State returns the current session state. It reflects the state
	// now, not necessarily the state at the time of a prior error.
	State() SessionState

	// Quorum returns the ensemble connect string of this session.
	Quorum() string

	// Close tears the session down. Pending callbacks fire with ErrClosing.
	Close()
}

// Config is what a Factory needs to build a session.
type Config struct {
	Quorum         string
	SessionTimeout time.Duration
}

// Factory builds a client from a config. The epoch store re-invokes it
// whenever the configured quorum changes.
type Factory func(cfg Config) (Client, error)

// ErrorToStatus is the client library's own mapping of operation errors
// to result codes. Callers with more context (version conflicts,
// session-state queries) remap individual codes on top of this.
func ErrorToStatus(err error) status.Status {
	switch {
	case err == nil:
		return status.OK
	case errors.Is(err, ErrNoNode):
		return status.NotFound
	case errors.Is(err, ErrNodeExists):
		return status.Exists
	case errors.Is(err, ErrSessionExpired):
		return status.NotConn
	case errors.Is(err, ErrNoAuth):
		return status.Access
	case errors.Is(err, ErrClosing):
		return status.Shutdown
	case errors.Is(err, ErrConnectionClosed):
		return status.NotConn
	default:
		return status.Failed
	}
}
