package epochstore

import (
	"github.com/frozlab/tidelog/internal/record"
	"github.com/frozlab/tidelog/internal/status"
	"github.com/frozlab/tidelog/internal/types"
)

// setLCERequest advances a log's last-clean-epoch znode. The write only
// happens when the proposed epoch strictly advances the stored one, and
// only commits if the znode version is unchanged since the read.
type setLCERequest struct {
	baseRequest
	completion LCECompletion
	proposed   record.LastCleanEpoch

	// result is what the completion reports: the proposed LCE on a
	// successful write, the stored LCE on a stale rejection.
	result record.LastCleanEpoch
}

func newSetLCERequest(store *Store, logID types.LogID, epoch types.Epoch,
	tail record.TailRecord, cf LCECompletion) *setLCERequest {
	rq := &setLCERequest{
		completion: cf,
		proposed:   record.LastCleanEpoch{Epoch: epoch, Tail: tail},
	}
	rq.init(logID, store)
	rq.result = rq.proposed
	return rq
}

func (rq *setLCERequest) Kind() string { return "set_last_clean_epoch" }

func (rq *setLCERequest) ZnodePath() string {
	return rq.logPath() + "/" + rq.lceZnodeName()
}

func (rq *setLCERequest) OnGotValue(value []byte, present bool) NextStep {
	if !present {
		// LCE znodes are created by provisioning; a set against a
		// missing node means the log was never provisioned.
		rq.err = status.NotFound
		return nextFailed
	}
	stored, err := record.DecodeLastCleanEpoch(value)
	if err != nil {
		rq.err = status.BadMsg
		return nextFailed
	}
	if rq.proposed.Epoch <= stored.Epoch {
		// Someone else already advanced past us; report what is stored.
		rq.result = stored
		rq.err = status.Stale
		return nextFailed
	}
	return nextModify
}

func (rq *setLCERequest) ComposeValue(buf []byte) int {
	enc := rq.proposed.Encode(nil)
	if len(enc) > len(buf) {
		return -1
	}
	return copy(buf, enc)
}

func (rq *setLCERequest) PostCompletion(st status.Status) {
	rq.store.deliver(rq, func() {
		rq.completion(st, rq.logID, rq.result)
	})
}
