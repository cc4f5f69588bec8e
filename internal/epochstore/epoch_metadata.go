package epochstore

import (
	"github.com/frozlab/tidelog/internal/record"
	"github.com/frozlab/tidelog/internal/status"
	"github.com/frozlab/tidelog/internal/types"
)

// MetadataDecision is what a MetadataUpdater tells the engine to do
// with a log's epoch metadata.
type MetadataDecision int

const (
	// MetadataProvision: the log has no metadata yet; create its
	// subtree with the updater's value.
	MetadataProvision MetadataDecision = iota

	// MetadataModify: replace the stored value with the updater's value.
	MetadataModify

	// MetadataStop: the stored value already satisfies the update.
	MetadataStop

	// MetadataFailed: abandon the update with the updater's status.
	MetadataFailed
)

// MetadataUpdater decides, from the current encoded metadata (present
// reports whether the znode exists), what the engine should do next.
// For Provision and Modify the returned bytes are the value to write.
// For Failed the returned status must be one of Failed, BadMsg,
// NotFound, Empty, Exists, Disabled, TooBig, InvalidParam, Aborted or
// Stale.
type MetadataUpdater func(logID types.LogID, current []byte, present bool,
	writeNodeID types.NodeID) (MetadataDecision, []byte, status.Status)

// MetadataCompletion receives the outcome of a create-or-update
// request. meta is the decoded metadata that ended up stored, when the
// engine knows it.
type MetadataCompletion func(st status.Status, logID types.LogID, meta *record.EpochMetadata)

// epochMetadataRequest runs a caller-supplied updater through the
// optimistic read-modify-write cycle, provisioning the log's subtree
// when the updater asks for it.
type epochMetadataRequest struct {
	baseRequest
	updater     MetadataUpdater
	writeNodeID types.NodeID
	completion  MetadataCompletion
	newValue    []byte
}

func newEpochMetadataRequest(store *Store, logID types.LogID,
	updater MetadataUpdater, writeNodeID types.NodeID,
	cf MetadataCompletion) *epochMetadataRequest {
	rq := &epochMetadataRequest{
		updater:     updater,
		writeNodeID: writeNodeID,
		completion:  cf,
	}
	rq.init(logID, store)
	return rq
}

func (rq *epochMetadataRequest) Kind() string { return "create_or_update_metadata" }

func (rq *epochMetadataRequest) ZnodePath() string {
	return rq.logPath() + "/" + znodeNameEpochMetadata
}

var allowedUpdaterFailures = map[status.Status]bool{
	status.Failed:       true,
	status.BadMsg:       true,
	status.NotFound:     true,
	status.Empty:        true,
	status.Exists:       true,
	status.Disabled:     true,
	status.TooBig:       true,
	status.InvalidParam: true,
	status.Aborted:      true,
	status.Stale:        true,
}

func (rq *epochMetadataRequest) OnGotValue(value []byte, present bool) NextStep {
	decision, newValue, st := rq.updater(rq.logID, value, present, rq.writeNodeID)
	switch decision {
	case MetadataProvision:
		rq.newValue = newValue
		return nextProvision
	case MetadataModify:
		rq.newValue = newValue
		return nextModify
	case MetadataStop:
		rq.err = status.UpToDate
		return nextStop
	case MetadataFailed:
		if !allowedUpdaterFailures[st] {
			rq.store.logger.Error("metadata updater returned a status outside its contract",
				rq.logFields(st)...)
			st = status.Internal
		}
		rq.err = st
		return nextFailed
	default:
		rq.store.logger.Error("metadata updater returned an unknown decision",
			rq.logFields(status.Internal)...)
		rq.err = status.Internal
		return nextFailed
	}
}

func (rq *epochMetadataRequest) ComposeValue(buf []byte) int {
	if len(rq.newValue) == 0 || len(rq.newValue) > len(buf) {
		return -1
	}
	return copy(buf, rq.newValue)
}

func (rq *epochMetadataRequest) PostCompletion(st status.Status) {
	var meta *record.EpochMetadata
	if len(rq.newValue) > 0 && (st == status.OK || st == status.UpToDate) {
		if m, err := record.DecodeEpochMetadata(rq.newValue); err == nil {
			meta = &m
		}
	}
	rq.store.deliver(rq, func() {
		rq.completion(st, rq.logID, meta)
	})
}
