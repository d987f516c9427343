// Package simerr defines the error taxonomy shared by the simulation packages.
//
// Errors are wrapped with fmt.Errorf and matched with errors.Is:
//
//	if errors.Is(err, simerr.ErrConfig) { ... }
package simerr

import "errors"

var (
	// ErrConfig marks unreadable or malformed inputs (forcing files, trait
	// tables, configuration values). Fatal at initialization.
	ErrConfig = errors.New("config error")

	// ErrConsistency marks an internal bookkeeping defect, such as the
	// allometric and ODE-tracked wood masses diverging or a state vector of
	// the wrong length.
	ErrConsistency = errors.New("consistency error")

	// ErrPrecondition marks a programmer error, such as querying a
	// monotone-time component with a time earlier than its last call.
	ErrPrecondition = errors.New("precondition violation")
)
