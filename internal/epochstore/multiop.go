package epochstore

import (
	"github.com/frozlab/tidelog/internal/zk"
)

// multiOpState carries one atomic multi-create across its round-trip:
// the ordered create operations, a slot for per-operation results, and
// optionally the request that drives the multi-op. While the multi-op
// is in flight, the state is owned by the completion closure.
type multiOpState struct {
	// rq is the request that drove the multi-op, if any.
	rq request

	ops     []zk.CreateOp
	results []zk.OpResponse
}

func newMultiOpState(rq request) *multiOpState {
	return &multiOpState{rq: rq}
}

// addCreateOp appends a create operation to the transaction.
func (m *multiOpState) addCreateOp(path string, value []byte) {
	m.ops = append(m.ops, zk.CreateOp{Path: path, Value: value})
}

// runMultiOp submits the transaction on client. done is invoked with
// the transaction outcome after the per-operation results have been
// captured; until then this state must not be touched by anyone else.
func (m *multiOpState) runMultiOp(client zk.Client, done func(err error)) {
	m.results = nil
	client.Multi(m.ops, func(err error, results []zk.OpResponse) {
		m.results = results
		done(err)
	})
}
