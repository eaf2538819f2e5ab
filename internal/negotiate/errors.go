// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package negotiate

import "errors"

var (
	// ErrUnsupportedVersion is returned when a HereIAm greeting names a
	// protocol version other than protocol.Version.
	ErrUnsupportedVersion = errors.New("negotiate: unsupported protocol version")

	// ErrReadOnlyMismatch is returned when a greeting's read_only flag
	// disagrees with this node's configuration.
	ErrReadOnlyMismatch = errors.New("negotiate: read-only flag mismatch")

	// ErrEncryptedMismatch is returned when a greeting's encrypted flag
	// disagrees with this node's configuration.
	ErrEncryptedMismatch = errors.New("negotiate: encrypted flag mismatch")

	// ErrUnexpectedFrame is returned when a frame arrives out of order
	// for the negotiator's current step.
	ErrUnexpectedFrame = errors.New("negotiate: unexpected frame for current step")

	// ErrIdentityMismatch is returned when PromoteToActive names a
	// different upstairs_id/session_id than the greeting that opened the
	// connection.
	ErrIdentityMismatch = errors.New("negotiate: promote identity does not match greeting")

	// ErrEvicted is returned (not logged as a failure) when an eviction
	// signal arrives mid-negotiation.
	ErrEvicted = errors.New("negotiate: evicted before negotiation completed")

	// ErrTimedOut names a lapsed negotiation deadline. Run does not return
	// it, since Run imposes no deadline itself; the connection supervisor
	// reports a lapsed negotiation deadline as conn.ErrIdleTimeout.
	ErrTimedOut = errors.New("negotiate: deadline exceeded")
)
