package record

import (
	"encoding/binary"
	"fmt"

	"github.com/frozlab/tidelog/internal/types"
)

const metadataFormatVersion byte = 1

// EpochMetadata is the value stored in a log's epoch_metadata znode:
// the next epoch to be assigned to a sequencer and the identity of the
// node that last wrote the record.
type EpochMetadata struct {
	Epoch types.Epoch

	// WrittenBy is the node that performed the last update, or
	// NodeIDInvalid when the writer chose not to sign the record.
	WrittenBy types.NodeID

	// Nodeset is the storage set the epoch was assigned over.
	Nodeset []types.NodeID
}

// Encode appends the wire form of m to buf and returns the result.
func (m *EpochMetadata) Encode(buf []byte) []byte {
	buf = append(buf, metadataFormatVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Epoch))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.WrittenBy))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.Nodeset)))
	for _, n := range m.Nodeset {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n))
	}
	return buf
}

// DecodeEpochMetadata parses an epoch_metadata znode value.
func DecodeEpochMetadata(b []byte) (EpochMetadata, error) {
	var m EpochMetadata
	if len(b) < 1+4+4+2 {
		return m, fmt.Errorf("epoch metadata truncated: %d bytes", len(b))
	}
	if b[0] != metadataFormatVersion {
		return m, fmt.Errorf("unsupported epoch metadata format version %d", b[0])
	}
	m.Epoch = types.Epoch(binary.LittleEndian.Uint32(b[1:5]))
	m.WrittenBy = types.NodeID(binary.LittleEndian.Uint32(b[5:9]))
	n := int(binary.LittleEndian.Uint16(b[9:11]))
	b = b[11:]
	if len(b) != 4*n {
		return m, fmt.Errorf("epoch metadata nodeset length mismatch: want %d entries, have %d bytes", n, len(b))
	}
	if n > 0 {
		m.Nodeset = make([]types.NodeID, n)
		for i := range m.Nodeset {
			m.Nodeset[i] = types.NodeID(binary.LittleEndian.Uint32(b[4*i : 4*i+4]))
		}
	}
	return m, nil
}
