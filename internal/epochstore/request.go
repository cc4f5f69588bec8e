package epochstore

import (
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/frozlab/tidelog/internal/status"
	"github.com/frozlab/tidelog/internal/types"
)

// Names of the znodes under a log's subtree.
const (
	znodeNameEpochMetadata = "epoch_metadata"
	znodeNameLCEDataLog    = "lce_data_log"
	znodeNameLCEMetaLog    = "lce_metadata_log"
)

// NextStep is a request's decision after observing the current znode
// value.
type NextStep int

const (
	// nextProvision: the node is absent, the engine must create the
	// log's subtree.
	nextProvision NextStep = iota

	// nextModify: the engine must write the composed value with a
	// version-conditional setData.
	nextModify

	// nextStop: the request is already satisfied; post the request's
	// internal status.
	nextStop

	// nextFailed: post the request's internal status as a failure.
	nextFailed
)

// request is the contract every epoch-store request kind implements.
// A request is exclusively owned by exactly one holder at any time:
// the caller before dispatch, the in-flight completion closure while
// an operation is pending, and the engine inside a completion handler.
type request interface {
	// LogID of the target log.
	LogID() types.LogID

	// Kind is a short label for logs and metrics.
	Kind() string

	// TraceID correlates the log lines of one request.
	TraceID() string

	// ZnodePath is the node this request reads and, for writes, updates.
	ZnodePath() string

	// OnGotValue inspects the current value (present=false when the
	// node does not exist) and decides the next step. On nextStop and
	// nextFailed the decision status is left in Err.
	OnGotValue(value []byte, present bool) NextStep

	// ComposeValue writes the new znode value into buf and returns its
	// size, or a negative value if it does not fit.
	ComposeValue(buf []byte) int

	// Err is the internal status consulted on nextStop and nextFailed.
	Err() status.Status

	// PostCompletion delivers the final status to the caller. Called at
	// most once per request, from the engine only; it is not called for
	// a SHUTDOWN completion that arrives after the store shut down.
	PostCompletion(st status.Status)
}

// baseRequest carries what all request kinds share. The shutdown
// observer is a weak signal: it keeps the flag alive, not the store.
type baseRequest struct {
	logID        types.LogID
	store        *Store
	traceID      string
	shuttingDown *atomic.Bool
	err          status.Status
}

func (b *baseRequest) init(logID types.LogID, store *Store) {
	b.logID = logID
	b.store = store
	b.traceID = uuid.NewString()
	b.shuttingDown = store.shuttingDown
}

func (b *baseRequest) LogID() types.LogID { return b.logID }
func (b *baseRequest) TraceID() string    { return b.traceID }
func (b *baseRequest) Err() status.Status { return b.err }

// logPath is the subtree root for this request's log.
func (b *baseRequest) logPath() string {
	return b.store.znodePathForLog(b.logID)
}

// logFields is the standard field set for log lines about this request.
func (b *baseRequest) logFields(st status.Status) []zap.Field {
	return []zap.Field{
		zap.String("log_id", b.logID.String()),
		zap.String("trace_id", b.traceID),
		zap.Stringer("status", st),
	}
}

// lceZnodeName picks the LCE znode matching the request's log kind.
func (b *baseRequest) lceZnodeName() string {
	if b.logID.IsMetadataLog() {
		return znodeNameLCEMetaLog
	}
	return znodeNameLCEDataLog
}
