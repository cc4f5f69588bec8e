package types

import "strconv"

// LogID identifies a log within the cluster. The value space is shared
// between data logs and their metadata logs: a metadata log carries the
// same numeric ID as its data log with the metadata flag bit set.
type LogID uint64

const (
	// LogIDInvalid is never a valid log.
	LogIDInvalid LogID = 0

	// metadataFlag marks the metadata log counterpart of a data log.
	metadataFlag uint64 = 1 << 62

	// LogIDMax is the highest assignable data log ID.
	LogIDMax LogID = LogID(metadataFlag - 1)
)

// Valid reports whether l is an assignable data or metadata log ID.
func (l LogID) Valid() bool {
	return l.Unflagged() != LogIDInvalid && l.Unflagged() <= LogIDMax
}

// IsMetadataLog reports whether l refers to a metadata log.
func (l LogID) IsMetadataLog() bool {
	return uint64(l)&metadataFlag != 0
}

// MetadataLogID returns the metadata log counterpart of l.
func (l LogID) MetadataLogID() LogID {
	return LogID(uint64(l) | metadataFlag)
}

// Unflagged strips the metadata flag, yielding the data log ID both
// logs share. Znode paths are always derived from the unflagged ID.
func (l LogID) Unflagged() LogID {
	return LogID(uint64(l) &^ metadataFlag)
}

func (l LogID) String() string {
	if l.IsMetadataLog() {
		return strconv.FormatUint(uint64(l.Unflagged()), 10) + "M"
	}
	return strconv.FormatUint(uint64(l), 10)
}

// Epoch is a monotonically assigned version of a log's writer
// identity and configuration.
type Epoch uint32

// EpochInvalid is the zero epoch, never assigned to a sequencer.
const EpochInvalid Epoch = 0

func (e Epoch) String() string {
	return strconv.FormatUint(uint64(e), 10)
}

// NodeID identifies a server node in the cluster. Negative means unset.
type NodeID int32

// NodeIDInvalid is the unset node ID.
const NodeIDInvalid NodeID = -1

// Valid reports whether n refers to an actual node.
func (n NodeID) Valid() bool {
	return n >= 0
}

func (n NodeID) String() string {
	return strconv.FormatInt(int64(n), 10)
}
