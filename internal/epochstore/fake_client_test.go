package epochstore

import (
	"path"
	"sync"

	"github.com/frozlab/tidelog/internal/zk"
)

// fakeNode is one znode in the fake tree.
type fakeNode struct {
	value   []byte
	version int32
}

// fakeClient is an in-memory versioned znode tree implementing
// zk.Client. Operation outcomes are evaluated when the completion is
// delivered, not when the call is issued, mirroring the real client.
// By default completions run synchronously on the calling goroutine;
// with deliverManually set they are queued until the test calls
// release, which lets tests interleave in-flight operations
// deterministically.
type fakeClient struct {
	mu     sync.Mutex
	nodes  map[string]*fakeNode
	quorum string
	state  zk.SessionState
	closed bool

	deliverManually bool
	pending         []func()

	// Error injection. Consumed once when set.
	nextGetErr   error
	nextSetErr   error
	nextMultiErr error

	// Telemetry for assertions. The call counters are bumped at issue
	// time; createOrder records paths when a multi-op is applied.
	gets        int
	sets        int
	multis      int
	createOrder []string
}

func newFakeClient(quorum string) *fakeClient {
	return &fakeClient{
		nodes:  make(map[string]*fakeNode),
		quorum: quorum,
		state:  zk.StateConnected,
	}
}

// put seeds a node without parent checks.
func (f *fakeClient) put(p string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[p] = &fakeNode{value: append([]byte(nil), value...)}
}

func (f *fakeClient) node(p string) (*fakeNode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[p]
	return n, ok
}

func (f *fakeClient) has(p string) bool {
	_, ok := f.node(p)
	return ok
}

// release delivers queued completions in submission order, including
// ones enqueued while draining.
func (f *fakeClient) release() {
	for {
		f.mu.Lock()
		if len(f.pending) == 0 {
			f.mu.Unlock()
			return
		}
		cb := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		cb()
	}
}

func (f *fakeClient) dispatch(cb func()) {
	f.mu.Lock()
	manual := f.deliverManually
	if manual {
		f.pending = append(f.pending, cb)
	}
	f.mu.Unlock()
	if !manual {
		cb()
	}
}

func (f *fakeClient) GetData(p string, cb zk.GetCallback) {
	f.mu.Lock()
	f.gets++
	f.mu.Unlock()

	f.dispatch(func() {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			cb(zk.ErrClosing, nil, zk.Stat{})
			return
		}
		if err := f.nextGetErr; err != nil {
			f.nextGetErr = nil
			f.mu.Unlock()
			cb(err, nil, zk.Stat{})
			return
		}
		n, ok := f.nodes[p]
		if !ok {
			f.mu.Unlock()
			cb(zk.ErrNoNode, nil, zk.Stat{})
			return
		}
		value := append([]byte(nil), n.value...)
		stat := zk.Stat{Version: n.version}
		f.mu.Unlock()
		cb(nil, value, stat)
	})
}

func (f *fakeClient) SetData(p string, value []byte, version int32, cb zk.SetCallback) {
	f.mu.Lock()
	f.sets++
	f.mu.Unlock()

	f.dispatch(func() {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			cb(zk.ErrClosing, zk.Stat{})
			return
		}
		if err := f.nextSetErr; err != nil {
			f.nextSetErr = nil
			f.mu.Unlock()
			cb(err, zk.Stat{})
			return
		}
		n, ok := f.nodes[p]
		if !ok {
			f.mu.Unlock()
			cb(zk.ErrNoNode, zk.Stat{})
			return
		}
		if n.version != version {
			f.mu.Unlock()
			cb(zk.ErrBadVersion, zk.Stat{})
			return
		}
		n.value = append([]byte(nil), value...)
		n.version++
		stat := zk.Stat{Version: n.version}
		f.mu.Unlock()
		cb(nil, stat)
	})
}

func (f *fakeClient) Multi(ops []zk.CreateOp, cb zk.MultiCallback) {
	f.mu.Lock()
	f.multis++
	f.mu.Unlock()

	f.dispatch(func() {
		f.mu.Lock()
		results := make([]zk.OpResponse, len(ops))
		if f.closed {
			f.mu.Unlock()
			cb(zk.ErrClosing, results)
			return
		}
		if err := f.nextMultiErr; err != nil {
			f.nextMultiErr = nil
			f.mu.Unlock()
			cb(err, results)
			return
		}

		// Validate the whole transaction first; nothing is applied
		// unless every create can succeed.
		var err error
		staged := make(map[string]bool, len(ops))
		for i, op := range ops {
			parent := path.Dir(op.Path)
			_, parentExists := f.nodes[parent]
			if parent != "/" && !parentExists && !staged[parent] {
				results[i] = zk.OpResponse{Err: zk.ErrNoNode}
				err = zk.ErrNoNode
				break
			}
			if _, exists := f.nodes[op.Path]; exists || staged[op.Path] {
				results[i] = zk.OpResponse{Err: zk.ErrNodeExists}
				err = zk.ErrNodeExists
				break
			}
			staged[op.Path] = true
		}
		if err == nil {
			for _, op := range ops {
				f.nodes[op.Path] = &fakeNode{value: append([]byte(nil), op.Value...)}
				f.createOrder = append(f.createOrder, op.Path)
			}
		}
		f.mu.Unlock()
		cb(err, results)
	})
}

func (f *fakeClient) State() zk.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeClient) Quorum() string {
	return f.quorum
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}
