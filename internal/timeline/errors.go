package timeline

import (
	"errors"
	"fmt"
)

// ErrSegmentNotFound is returned when no segment covers the requested time
var ErrSegmentNotFound = errors.New("no segment at requested time")

// OverlapError is returned when an upserted segment's range intersects an
// existing different segment. The timeline is left unchanged.
type OverlapError struct {
	Start         float64
	End           float64
	ExistingStart float64
	ExistingEnd   float64
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("segment [%.3f,%.3f) overlaps existing segment [%.3f,%.3f)",
		e.Start, e.End, e.ExistingStart, e.ExistingEnd)
}

// ValidationError is returned when a timeline document fails validation on
// load. A single invalid record invalidates the whole load.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid segment record %d: %s", e.Index, e.Reason)
}
