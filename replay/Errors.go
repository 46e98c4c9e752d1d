package replay

import "errors"

// ReplayError implements errors unique to a replay table.
type ReplayError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *ReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

var errEmptyTable error = errors.New("table empty")

var errInsufficientSamples = errors.New("minimum capacity not yet reached")

// IsInsufficientSamples returns whether or not an error reports that
// there are insufficient samples in the table to sample from the
// table.
//
// A table has too few samples to sample if its current capacity is
// less than its minimum capacity.
func IsInsufficientSamples(err error) bool {
	if replayErr, ok := err.(*ReplayError); ok {
		err = replayErr.Err
	}
	return err == errInsufficientSamples
}

// IsEmptyTable returns whether or not an error reports that a replay
// table is empty.
func IsEmptyTable(err error) bool {
	if replayErr, ok := err.(*ReplayError); ok {
		err = replayErr.Err
	}
	return err == errEmptyTable
}
