package record

import (
	"encoding/binary"
	"fmt"

	"github.com/frozlab/tidelog/internal/types"
)

// lceFormatVersion is bumped whenever the wire layout changes.
const lceFormatVersion byte = 1

// LastCleanEpoch is the value stored in a log's LCE znode: the highest
// epoch for which recovery has completed, and the tail of that epoch.
type LastCleanEpoch struct {
	Epoch types.Epoch
	Tail  TailRecord
}

// Encode appends the wire form of l to buf and returns the result.
func (l *LastCleanEpoch) Encode(buf []byte) []byte {
	buf = append(buf, lceFormatVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(l.Epoch))
	return l.Tail.appendTo(buf)
}

// DecodeLastCleanEpoch parses an LCE znode value. An empty value is
// a freshly provisioned znode and decodes to the zero LCE.
func DecodeLastCleanEpoch(b []byte) (LastCleanEpoch, error) {
	var l LastCleanEpoch
	if len(b) == 0 {
		return l, nil
	}
	if b[0] != lceFormatVersion {
		return l, fmt.Errorf("unsupported LCE format version %d", b[0])
	}
	b = b[1:]
	if len(b) < 4 {
		return l, fmt.Errorf("LCE record truncated: %d bytes", len(b))
	}
	l.Epoch = types.Epoch(binary.LittleEndian.Uint32(b[0:4]))
	rest, err := l.Tail.decodeFrom(b[4:])
	if err != nil {
		return l, err
	}
	if len(rest) != 0 {
		return l, fmt.Errorf("LCE record has %d trailing bytes", len(rest))
	}
	return l, nil
}
