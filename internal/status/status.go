// Package status defines the result codes shared by the coordination
// cores. Codes travel through completion callbacks rather than as
// wrapped errors because most of them are expected, non-exceptional
// outcomes (EXISTS, UP_TO_DATE, AGAIN) that callers branch on.
package status

import (
	"google.golang.org/grpc/codes"
)

// Status is the result code of a coordination-core operation.
type Status int

const (
	// OK means the operation succeeded.
	OK Status = iota

	// NotFound means the target node (or a required ancestor) does not exist.
	NotFound

	// Exists means the target node already exists.
	Exists

	// Again means the operation lost an optimistic concurrency race and
	// can be retried by the caller.
	Again

	// UpToDate means the stored value already satisfies the requested
	// update and nothing was written.
	UpToDate

	// Stale means the proposed value does not advance the stored one.
	Stale

	// InvalidParam means the caller supplied an unusable argument.
	InvalidParam

	// Aborted means a caller-supplied updater declined to proceed.
	Aborted

	// BadMsg means a stored value failed to decode.
	BadMsg

	// Empty means a stored value was unexpectedly empty.
	Empty

	// Disabled means the target log is administratively disabled.
	Disabled

	// TooBig means a value exceeded a size bound.
	TooBig

	// Failed is a generic, non-retryable failure.
	Failed

	// Internal is an assertion-level failure inside the core itself.
	Internal

	// NotConn means the coordination-service session has expired.
	NotConn

	// Access means the coordination-service session failed authentication.
	Access

	// Shutdown means the client or the owning component is shutting down.
	Shutdown
)

var names = map[Status]string{
	OK:           "OK",
	NotFound:     "NOT_FOUND",
	Exists:       "EXISTS",
	Again:        "AGAIN",
	UpToDate:     "UP_TO_DATE",
	Stale:        "STALE",
	InvalidParam: "INVALID_PARAM",
	Aborted:      "ABORTED",
	BadMsg:       "BAD_MSG",
	Empty:        "EMPTY",
	Disabled:     "DISABLED",
	TooBig:       "TOO_BIG",
	Failed:       "FAILED",
	Internal:     "INTERNAL",
	NotConn:      "NOTCONN",
	Access:       "ACCESS",
	Shutdown:     "SHUTDOWN",
}

func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// Error implements the error interface so a Status can be returned from
// synchronous entry points that reject a request before dispatch.
func (s Status) Error() string {
	return s.String()
}

// GRPCCode maps a Status to the closest gRPC code for surfacing through
// RPC handlers.
func (s Status) GRPCCode() codes.Code {
	switch s {
	case OK, UpToDate:
		return codes.OK
	case NotFound:
		return codes.NotFound
	case Exists:
		return codes.AlreadyExists
	case Again, Stale:
		return codes.Aborted
	case InvalidParam, BadMsg, Empty, TooBig:
		return codes.InvalidArgument
	case Aborted:
		return codes.Aborted
	case Disabled:
		return codes.FailedPrecondition
	case NotConn, Shutdown:
		return codes.Unavailable
	case Access:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}
