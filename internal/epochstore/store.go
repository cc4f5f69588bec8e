// Package epochstore implements the per-log epoch metadata store on
// top of a ZooKeeper-style coordination service. Concurrent metadata
// updates are serialized with optimistic concurrency: every write is
// conditioned on the znode version observed by the read that drove it,
// and a version mismatch surfaces to the caller as a retryable AGAIN.
// The per-log znode subtree is provisioned lazily, atomically, on
// first use.
package epochstore

import (
	"errors"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/frozlab/tidelog/internal/config"
	"github.com/frozlab/tidelog/internal/executor"
	"github.com/frozlab/tidelog/internal/metrics"
	"github.com/frozlab/tidelog/internal/record"
	"github.com/frozlab/tidelog/internal/status"
	"github.com/frozlab/tidelog/internal/types"
	"github.com/frozlab/tidelog/internal/zk"
)

// ZnodeValueWriteMax bounds the size of any value the store writes.
const ZnodeValueWriteMax = 4096

// clientCell wraps the client so the handle can be swapped atomically
// while readers keep using the snapshot they took.
type clientCell struct {
	client zk.Client
}

// Store is the epoch metadata coordinator for one cluster.
type Store struct {
	cfg      config.EpochStoreConfig
	rootPath string

	logger  *zap.Logger
	metrics *metrics.Metrics

	factory     zk.Factory
	zkConfig    *config.UpdatableZookeeper
	completions *executor.Serial

	cell         atomic.Pointer[clientCell]
	shuttingDown *atomic.Bool
	unsubscribe  func()
}

// New builds a store and connects its initial client. Construction
// fails if the factory cannot produce a client for the configured
// quorum.
func New(cfg config.EpochStoreConfig, zkConfig *config.UpdatableZookeeper,
	factory zk.Factory, completions *executor.Serial,
	m *metrics.Metrics, logger *zap.Logger) (*Store, error) {

	zkCfg := zkConfig.Get()
	if zkCfg == nil {
		return nil, errors.New("zookeeper configuration is empty")
	}

	client, err := factory(zk.Config{
		Quorum:         zkCfg.Quorum,
		SessionTimeout: zkCfg.SessionTimeout,
	})
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:          cfg,
		rootPath:     cfg.PathPrefix + "/" + cfg.ClusterName + "/logs",
		logger:       logger,
		metrics:      m,
		factory:      factory,
		zkConfig:     zkConfig,
		completions:  completions,
		shuttingDown: &atomic.Bool{},
	}
	s.cell.Store(&clientCell{client: client})
	s.unsubscribe = zkConfig.Subscribe(s.onConfigUpdate)
	return s, nil
}

// RootPath is the absolute znode path all the store's state lives under.
func (s *Store) RootPath() string {
	return s.rootPath
}

// Identify names the backing service instance for logs and debugging.
func (s *Store) Identify() string {
	return "zookeeper://" + s.getClient().Quorum() + s.rootPath
}

// Shutdown stops the store: it stops watching config updates and closes
// the current client. In-flight operations on that client then complete
// with SHUTDOWN, and those completions are not posted; a completion with
// any other status is still posted. The completion executor stays
// usable; the store does not own it.
func (s *Store) Shutdown() {
	s.shuttingDown.Store(true)
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.getClient().Close()
}

// GetLastCleanEpoch reads the last clean epoch of the given log. The
// completion fires asynchronously on the store's completion executor.
func (s *Store) GetLastCleanEpoch(logID types.LogID, cf LCECompletion) error {
	if !logID.Valid() {
		return status.InvalidParam
	}
	s.runRequest(newGetLCERequest(s, logID, cf))
	return nil
}

// SetLastCleanEpoch advances the last clean epoch of the given log to
// epoch, recording tail as the epoch's tail. An invalid tail record is
// rejected synchronously, before any coordination-service traffic.
func (s *Store) SetLastCleanEpoch(logID types.LogID, epoch types.Epoch,
	tail record.TailRecord, cf LCECompletion) error {
	if !logID.Valid() {
		return status.InvalidParam
	}
	if !tail.Valid() || tail.ContainsOffsetWithinEpoch() {
		s.logger.Error("critical: attempted LCE update with an invalid tail record",
			zap.String("log_id", logID.String()),
			zap.String("epoch", epoch.String()),
			zap.Uint32("tail_flags", tail.Flags))
		return status.InvalidParam
	}
	s.runRequest(newSetLCERequest(s, logID, epoch, tail, cf))
	return nil
}

// CreateOrUpdateMetadata runs updater over the log's epoch metadata in
// an optimistic read-modify-write cycle, provisioning the log's znode
// subtree if the updater asks for it. Metadata log IDs are rejected;
// their epoch metadata lives with their data log.
func (s *Store) CreateOrUpdateMetadata(logID types.LogID, updater MetadataUpdater,
	writeNodeID types.NodeID, cf MetadataCompletion) error {
	if !logID.Valid() || logID.IsMetadataLog() {
		return status.InvalidParam
	}
	s.runRequest(newEpochMetadataRequest(s, logID, updater, writeNodeID, cf))
	return nil
}

func (s *Store) getClient() zk.Client {
	return s.cell.Load().client
}

func (s *Store) znodePathForLog(logID types.LogID) string {
	return s.rootPath + "/" + strconv.FormatUint(uint64(logID.Unflagged()), 10)
}

// runRequest starts one read-decide-write cycle. It never blocks; the
// request is owned by the get completion until the engine hands it on.
func (s *Store) runRequest(rq request) {
	s.metrics.EpochStoreRequestsTotal.WithLabelValues(rq.Kind()).Inc()
	s.logger.Debug("running epoch store request",
		zap.String("kind", rq.Kind()),
		zap.String("log_id", rq.LogID().String()),
		zap.String("trace_id", rq.TraceID()))

	client := s.getClient()
	client.GetData(rq.ZnodePath(), func(err error, value []byte, stat zk.Stat) {
		s.onGetComplete(rq, err, value, stat)
	})
}

// onGetComplete drives the decision step of the RMW cycle.
func (s *Store) onGetComplete(rq request, err error, value []byte, stat zk.Stat) {
	st := s.cfStatus(err, rq.LogID())
	if st != status.OK && st != status.NotFound {
		s.finishRequest(rq, st)
		return
	}

	present := st == status.OK
	if !present {
		value = nil
	}

	switch next := rq.OnGotValue(value, present); next {
	case nextStop, nextFailed:
		s.finishRequest(rq, rq.Err())
		return
	case nextProvision, nextModify:
		buf := make([]byte, ZnodeValueWriteMax)
		n := rq.ComposeValue(buf)
		if n < 0 || n > len(buf) {
			s.logger.Error("critical: invalid composed value size",
				zap.Int("size", n),
				zap.String("log_id", rq.LogID().String()),
				zap.String("trace_id", rq.TraceID()))
			s.finishRequest(rq, status.Internal)
			return
		}
		composed := buf[:n]

		if next == nextProvision {
			s.provisionLogZnodes(rq, composed)
			return
		}

		// The write below succeeds only if the znode version still
		// equals the one the read observed; ZooKeeper bumps the
		// version on every write, so a successful set proves the
		// read-modify-write was atomic.
		client := s.getClient()
		client.SetData(rq.ZnodePath(), composed, stat.Version, func(err error, _ zk.Stat) {
			s.postRequestCompletion(err, rq)
		})
	}
}

// provisionLogZnodes creates the log's whole subtree in one atomic
// multi-op: the subtree root, the epoch metadata node carrying the
// composed value, and the two empty LCE nodes.
func (s *Store) provisionLogZnodes(rq request, composed []byte) {
	logRoot := s.znodePathForLog(rq.LogID())

	state := newMultiOpState(rq)
	state.addCreateOp(logRoot, nil)
	state.addCreateOp(logRoot+"/"+znodeNameEpochMetadata, composed)
	state.addCreateOp(logRoot+"/"+znodeNameLCEDataLog, nil)
	state.addCreateOp(logRoot+"/"+znodeNameLCEMetaLog, nil)

	s.metrics.EpochStoreProvisionsTotal.Inc()
	s.submitProvisionMultiOp(state)
}

// submitProvisionMultiOp runs (or re-runs) a provisioning multi-op.
// Ownership of state passes to the completion closure.
func (s *Store) submitProvisionMultiOp(state *multiOpState) {
	state.runMultiOp(s.getClient(), func(err error) {
		s.onProvisionComplete(state, err)
	})
}

func (s *Store) onProvisionComplete(state *multiOpState, err error) {
	rq := state.rq
	st := s.cfStatus(err, rq.LogID())

	switch st {
	case status.OK:
		// The transaction committed, so every sub-operation must have.
		for i, res := range state.results {
			if res.Err != nil {
				s.logger.Error("critical: sub-operation failed inside a committed multi-op",
					zap.Int("op", i),
					zap.Error(res.Err),
					zap.String("log_id", rq.LogID().String()))
			}
		}
	case status.NotFound:
		// An ancestor of the root path is missing.
		if s.cfg.CreateRootZnodes {
			s.logger.Info("root znode does not exist, creating it",
				zap.String("root", s.rootPath))
			newCreateRootsState(s, state).run()
			return
		}
		s.logger.Error("root znode does not exist; it must be created by external tooling when create_root_znodes is disabled",
			zap.String("root", s.rootPath))
	}

	s.postRequestCompletion(err, rq)
}

// onConfigUpdate rebinds the client when the configured quorum changes.
// Requests in flight at swap time complete on the old client; new
// requests snapshot the new one.
func (s *Store) onConfigUpdate() {
	cfg := s.zkConfig.Get()
	if cfg == nil {
		s.logger.Error("zookeeper configuration is empty, keeping current client")
		return
	}

	cur := s.getClient()
	if cfg.Quorum == cur.Quorum() {
		return
	}

	s.logger.Info("zookeeper quorum changed, reconnecting",
		zap.String("quorum", cfg.Quorum))

	client, err := s.factory(zk.Config{
		Quorum:         cfg.Quorum,
		SessionTimeout: cfg.SessionTimeout,
	})
	if err != nil {
		s.logger.Error("zookeeper reconnect failed, keeping current client",
			zap.Error(err))
		return
	}
	s.cell.Store(&clientCell{client: client})
	s.metrics.EpochStoreClientSwapsTotal.Inc()
}

// cfStatus translates a completion error into a core status, with the
// special cases the raw client mapping cannot know about.
func (s *Store) cfStatus(err error, logID types.LogID) status.Status {
	switch {
	case err == nil:
		return status.OK
	case errors.Is(err, zk.ErrBadVersion):
		// Lost the optimistic concurrency race; the caller may retry.
		return status.Again
	case errors.Is(err, zk.ErrBadArguments):
		s.logger.Error("critical: coordination service reported bad arguments",
			zap.String("log_id", logID.String()))
		return status.Internal
	case errors.Is(err, zk.ErrRuntimeInconsistency):
		s.logger.Error("critical: runtime inconsistency reported by coordination service",
			zap.String("log_id", logID.String()))
		s.metrics.EpochStoreInternalInconsistency.Inc()
		return status.Failed
	case errors.Is(err, zk.ErrInvalidState):
		// State() reflects the session now, not necessarily at the
		// time of the error; a re-established session reads as a
		// generic failure.
		switch s.getClient().State() {
		case zk.StateExpired:
			return status.NotConn
		case zk.StateAuthFailed:
			return status.Access
		default:
			s.logger.Warn("unable to recover session state at time of error",
				zap.Stringer("current_state", s.getClient().State()))
			return status.Failed
		}
	}

	st := zk.ErrorToStatus(err)
	if st == status.Failed {
		s.logger.Error("unexpected status from coordination service",
			zap.Error(err),
			zap.String("log_id", logID.String()))
	}
	return st
}

// postRequestCompletion maps a completion error and posts it.
func (s *Store) postRequestCompletion(err error, rq request) {
	s.finishRequest(rq, s.cfStatus(err, rq.LogID()))
}

// finishRequest posts the request's completion unless both the client
// session and the store are shutting down. A SHUTDOWN status alone can
// also come from a client being torn down after a quorum change while
// the store lives on; those completions must still be posted.
func (s *Store) finishRequest(rq request, st status.Status) {
	if st == status.Shutdown && s.shuttingDown.Load() {
		return
	}
	s.metrics.EpochStoreCompletionsTotal.WithLabelValues(st.String()).Inc()
	rq.PostCompletion(st)
}

// deliver hands a completion closure to the completion executor.
func (s *Store) deliver(rq request, fn func()) {
	if !s.completions.Submit(fn) && !s.shuttingDown.Load() {
		s.logger.Error("dropping completion, executor rejected it",
			zap.String("kind", rq.Kind()),
			zap.String("log_id", rq.LogID().String()),
			zap.String("trace_id", rq.TraceID()))
	}
}
