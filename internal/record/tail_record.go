// Package record implements the codecs for the values stored in the
// epoch-store znodes. The epoch store itself treats these values as
// opaque bytes; only the request kinds and their callers decode them.
package record

import (
	"encoding/binary"
	"fmt"

	"github.com/frozlab/tidelog/internal/types"
)

// TailRecord flags.
const (
	// TailFlagChecksum marks a tail whose payload carried a checksum.
	TailFlagChecksum uint32 = 1 << 0

	// TailFlagOffsetWithinEpoch marks a tail whose byte offset is
	// relative to its epoch rather than to the whole log. Such tails
	// must never be persisted with a last-clean-epoch commit.
	TailFlagOffsetWithinEpoch uint32 = 1 << 1
)

const tailRecordSize = 8 + 8 + 8 + 8 + 4

// TailRecord describes the last released record of an epoch.
type TailRecord struct {
	LogID      types.LogID
	LSN        uint64
	Timestamp  int64 // milliseconds since the epoch
	ByteOffset uint64
	Flags      uint32
}

// Valid reports whether the record refers to an actual log.
func (t *TailRecord) Valid() bool {
	return t.LogID != types.LogIDInvalid
}

// ContainsOffsetWithinEpoch reports whether the byte offset is
// epoch-relative.
func (t *TailRecord) ContainsOffsetWithinEpoch() bool {
	return t.Flags&TailFlagOffsetWithinEpoch != 0
}

func (t *TailRecord) appendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.LogID))
	buf = binary.LittleEndian.AppendUint64(buf, t.LSN)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.Timestamp))
	buf = binary.LittleEndian.AppendUint64(buf, t.ByteOffset)
	buf = binary.LittleEndian.AppendUint32(buf, t.Flags)
	return buf
}

func (t *TailRecord) decodeFrom(b []byte) ([]byte, error) {
	if len(b) < tailRecordSize {
		return nil, fmt.Errorf("tail record truncated: %d bytes", len(b))
	}
	t.LogID = types.LogID(binary.LittleEndian.Uint64(b[0:8]))
	t.LSN = binary.LittleEndian.Uint64(b[8:16])
	t.Timestamp = int64(binary.LittleEndian.Uint64(b[16:24]))
	t.ByteOffset = binary.LittleEndian.Uint64(b[24:32])
	t.Flags = binary.LittleEndian.Uint32(b[32:36])
	return b[tailRecordSize:], nil
}
