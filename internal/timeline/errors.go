package timeline

import (
	"errors"
	"fmt"

	"github.com/lanetrace/lanetrace/internal/trace"
)

// Error represents a model invariant violation detected during a timeline
// mutation.
//
// Violations are always returned to the caller, never silently corrected: a
// timeline with a silently "fixed" overlap is worse than a rejected insert
// for a tool whose value is fidelity to ground truth.
//
// Error includes structured fields for diagnostics and recovery.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Lane identifies the affected lane, when one is involved.
	Lane trace.LaneID

	// Interval identifies the interval being operated on.
	Interval trace.IntervalRef

	// Conflict identifies the already-present interval that an insert
	// collided with (for overlap and lane-busy errors).
	Conflict trace.IntervalRef

	// Err is the underlying cause (for merge conflicts).
	Err error
}

// Code categorizes timeline errors.
type Code string

const (
	// CodeInvalidTime indicates a timestamp before the timeline's horizon.
	CodeInvalidTime Code = "INVALID_TIME"

	// CodeAlreadyClosed indicates a second close of a sealed interval.
	CodeAlreadyClosed Code = "ALREADY_CLOSED"

	// CodeTimeOrderViolation indicates an end timestamp before the start.
	CodeTimeOrderViolation Code = "TIME_ORDER_VIOLATION"

	// CodeOverlapViolation indicates an insert that intersects a sealed
	// interval in the same lane.
	CodeOverlapViolation Code = "OVERLAP_VIOLATION"

	// CodeLaneBusy indicates an open interval already occupying the lane.
	CodeLaneBusy Code = "LANE_BUSY"

	// CodeUnknownEntity indicates an entity ref not interned in this timeline.
	CodeUnknownEntity Code = "UNKNOWN_ENTITY"

	// CodeInvalidEdgeKind indicates an edge kind that is neither predefined
	// nor a custom-tagged kind.
	CodeInvalidEdgeKind Code = "INVALID_EDGE_KIND"

	// CodeUnknownInterval indicates an interval ref not registered in this
	// timeline (never known, or pruned under the strict policy).
	CodeUnknownInterval Code = "UNKNOWN_INTERVAL"

	// CodeUnresolvedOpenInterval indicates a merge source carrying an open
	// interval while allow_open_merge is off.
	CodeUnresolvedOpenInterval Code = "UNRESOLVED_OPEN_INTERVAL"

	// CodeMergeConflict wraps any of the above encountered during a merge.
	CodeMergeConflict Code = "MERGE_CONFLICT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Lane != "" && e.Conflict != "":
		return fmt.Sprintf("%s: %s (lane=%s, interval=%s, conflict=%s)", e.Code, e.Message, e.Lane, e.Interval, e.Conflict)
	case e.Lane != "":
		return fmt.Sprintf("%s: %s (lane=%s, interval=%s)", e.Code, e.Message, e.Lane, e.Interval)
	case e.Interval != "":
		return fmt.Sprintf("%s: %s (interval=%s)", e.Code, e.Message, e.Interval)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause so errors.Is/As reach through merge
// conflicts to the original violation.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the error code from err, unwrapping as needed.
// Returns the empty code for nil and for foreign errors.
func CodeOf(err error) Code {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var te *Error
		if !errors.As(err, &te) {
			return false
		}
		if te.Code == code {
			return true
		}
		err = te.Err
	}
	return false
}

// IsOverlap reports whether err is an overlap violation, possibly wrapped in
// a merge conflict.
func IsOverlap(err error) bool {
	return HasCode(err, CodeOverlapViolation)
}

// IsLaneBusy reports whether err is a lane-busy rejection, possibly wrapped
// in a merge conflict.
func IsLaneBusy(err error) bool {
	return HasCode(err, CodeLaneBusy)
}

func newOverlapError(lane trace.LaneID, interval, conflict trace.IntervalRef) *Error {
	return &Error{
		Code:     CodeOverlapViolation,
		Message:  "interval intersects a sealed interval in the same lane",
		Lane:     lane,
		Interval: interval,
		Conflict: conflict,
	}
}

func newLaneBusyError(lane trace.LaneID, interval, open trace.IntervalRef) *Error {
	return &Error{
		Code:     CodeLaneBusy,
		Message:  "lane already has an open interval",
		Lane:     lane,
		Interval: interval,
		Conflict: open,
	}
}

func newUnknownIntervalError(ref trace.IntervalRef) *Error {
	return &Error{
		Code:     CodeUnknownInterval,
		Message:  "interval is not registered in this timeline",
		Interval: ref,
	}
}

func newMergeConflictError(msg string, cause error) *Error {
	e := &Error{
		Code:    CodeMergeConflict,
		Message: msg,
		Err:     cause,
	}
	var inner *Error
	if errors.As(cause, &inner) {
		e.Lane = inner.Lane
		e.Interval = inner.Interval
		e.Conflict = inner.Conflict
	}
	return e
}
