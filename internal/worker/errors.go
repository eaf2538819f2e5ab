// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package worker

import "errors"

// ErrUnknownOp is returned if a DownstairsWork carries an IOop variant this
// worker does not know how to execute; it should never happen since
// dispatch only ever constructs the four known variants.
var ErrUnknownOp = errors.New("worker: unrecognized IOop variant")
