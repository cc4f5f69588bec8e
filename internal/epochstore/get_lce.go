package epochstore

import (
	"github.com/frozlab/tidelog/internal/record"
	"github.com/frozlab/tidelog/internal/status"
	"github.com/frozlab/tidelog/internal/types"
)

// LCECompletion receives the outcome of a last-clean-epoch request.
// On OK it carries the LCE that was read or written; on Stale it
// carries the stored LCE that beat the proposed one.
type LCECompletion func(st status.Status, logID types.LogID, lce record.LastCleanEpoch)

// getLCERequest reads a log's last-clean-epoch znode. It never writes.
type getLCERequest struct {
	baseRequest
	completion LCECompletion
	result     record.LastCleanEpoch
}

func newGetLCERequest(store *Store, logID types.LogID, cf LCECompletion) *getLCERequest {
	rq := &getLCERequest{completion: cf}
	rq.init(logID, store)
	return rq
}

func (rq *getLCERequest) Kind() string { return "get_last_clean_epoch" }

func (rq *getLCERequest) ZnodePath() string {
	return rq.logPath() + "/" + rq.lceZnodeName()
}

func (rq *getLCERequest) OnGotValue(value []byte, present bool) NextStep {
	if !present {
		rq.err = status.NotFound
		return nextFailed
	}
	lce, err := record.DecodeLastCleanEpoch(value)
	if err != nil {
		rq.err = status.BadMsg
		return nextFailed
	}
	rq.result = lce
	rq.err = status.OK
	return nextStop
}

func (rq *getLCERequest) ComposeValue([]byte) int {
	// Reads never compose a value.
	return -1
}

func (rq *getLCERequest) PostCompletion(st status.Status) {
	rq.store.deliver(rq, func() {
		rq.completion(st, rq.logID, rq.result)
	})
}
