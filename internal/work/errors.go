// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package work

import "errors"

var (
	// ErrDuplicateJob is returned by Add when ds_id is already resident in
	// active. Callers must not resubmit an id that has not yet completed.
	ErrDuplicateJob = errors.New("work: job id already active")
)
