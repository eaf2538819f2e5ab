// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package session

import "errors"

var (
	// ErrUpstairsInactive is returned by WithWork when conn is no longer
	// the exact registered owner of its upstairs_id slot: a promotion
	// already replaced it.
	ErrUpstairsInactive = errors.New("session: upstairs connection is not active")

	// ErrStaleGeneration is returned when a read-write promotion's gen is
	// strictly less than the incumbent's.
	ErrStaleGeneration = errors.New("session: stale generation")

	// ErrIdentityConflict is returned when a read-write promotion's gen
	// equals the incumbent's but the rest of the identity triple differs.
	ErrIdentityConflict = errors.New("session: generation matches but identity differs")

	// ErrTooManyOwners signals the read-write invariant (at most one
	// owner) has somehow been violated; the process should fail-stop.
	ErrTooManyOwners = errors.New("session: more than one read-write owner")
)
