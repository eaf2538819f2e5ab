// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package work implements the per-session dependency-aware job queue: the
// map of jobs an upstairs has submitted, the flush horizon that bounds how
// far back a job must look to find its dependencies satisfied, and the
// New -> DepWait -> InProgress -> {Done, Error} state machine each job
// moves through.
package work

import "github.com/luxfi/downstairs/internal/protocol"

// State is a job's position in its lifecycle.
type State int

const (
	New State = iota
	DepWait
	InProgress
	Done
	Error
)

func (s State) String() string {
	switch s {
	case New:
		return "New"
	case DepWait:
		return "DepWait"
	case InProgress:
		return "InProgress"
	case Done:
		return "Done"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// DownstairsWork is one job in flight: the connection that submitted it,
// the id it was submitted under, the operation itself, and its current
// state. DsID is unique only within Owner's session, never globally.
type DownstairsWork struct {
	Owner protocol.UpstairsConnection
	DsID  uint64
	Op    protocol.IOop
	State State
}

// clone returns a value copy suitable for handing to a worker outside the
// queue lock; Op is an interface value so the copy shares the underlying
// operation, which is never mutated after submission.
func (w DownstairsWork) clone() DownstairsWork {
	return w
}
