package epochstore

import (
	"path"

	"go.uber.org/zap"

	"github.com/frozlab/tidelog/internal/status"
	"github.com/frozlab/tidelog/internal/types"
)

// createRootsState creates the ancestors of the store's root path,
// shallowest first, then re-drives the multi-op that failed because
// they were missing. The state machine owns itself: while a create is
// in flight, ownership sits with that completion closure; the terminal
// transition either re-submits the deferred multi-op or posts the
// deferred request's completion.
type createRootsState struct {
	store *Store

	// deferred is the original multi-op, retried once all ancestors exist.
	deferred *multiOpState

	// pending holds the paths still to create. It is ordered deepest
	// first, so popping from the end yields every parent before its
	// child. A path is only popped after its own completion is observed.
	pending []string
}

func newCreateRootsState(store *Store, deferred *multiOpState) *createRootsState {
	s := &createRootsState{store: store, deferred: deferred}
	for p := store.rootPath; p != "" && p != "/" && p != "."; p = path.Dir(p) {
		s.pending = append(s.pending, p)
	}
	s.checkCreationOrder()
	return s
}

// checkCreationOrder verifies the invariant the whole machine rests on:
// walking pending from the end toward the front must visit each path
// before any of its descendants.
func (s *createRootsState) checkCreationOrder() {
	for i := 0; i+1 < len(s.pending); i++ {
		if path.Dir(s.pending[i]) != s.pending[i+1] {
			s.store.logger.Error("critical: root znode creation order violated",
				zap.Strings("pending", s.pending))
			return
		}
	}
}

func (s *createRootsState) next() string {
	return s.pending[len(s.pending)-1]
}

// run schedules creation of the next pending path. The multi-op API is
// used even for this single create so the store talks to the
// coordination service through one code path.
func (s *createRootsState) run() {
	op := newMultiOpState(nil)
	op.addCreateOp(s.next(), nil)
	s.store.logger.Debug("scheduling root znode creation",
		zap.String("path", s.next()))
	s.store.metrics.EpochStoreRootCreationsTotal.Inc()
	op.runMultiOp(s.store.getClient(), s.onStep)
}

// onStep handles the completion of one ancestor's creation.
func (s *createRootsState) onStep(err error) {
	st := s.store.cfStatus(err, types.LogIDInvalid)
	if st == status.OK {
		s.store.logger.Info("created root znode",
			zap.String("path", s.next()))
	} else {
		s.store.logger.Debug("root znode creation completed",
			zap.String("path", s.next()),
			zap.Stringer("status", st))
	}

	// A path that already exists counts as created.
	if st == status.OK || st == status.Exists {
		s.pending = s.pending[:len(s.pending)-1]
		if len(s.pending) > 0 {
			s.run()
			return
		}
	}
	s.finish(err, st)
}

// finish is the terminal transition: re-drive the deferred multi-op if
// every ancestor now exists, otherwise surface the failure as the
// deferred request's completion.
func (s *createRootsState) finish(err error, st status.Status) {
	if st != status.OK && st != status.Exists {
		s.store.logger.Error("unable to create root znode",
			zap.String("path", s.next()),
			zap.Stringer("status", st),
			zap.Error(err))
		s.store.postRequestCompletion(err, s.deferred.rq)
		return
	}
	s.store.submitProvisionMultiOp(s.deferred)
}
