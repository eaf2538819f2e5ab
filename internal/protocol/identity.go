// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package protocol defines the wire frames exchanged between an upstairs
// client and this downstairs node, and the identity types that travel
// inside them.
package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// UpstairsConnection identifies a single remote session. Two connections
// are equal only when upstairs_id, session_id and gen all match.
type UpstairsConnection struct {
	UpstairsID uuid.UUID `serialize:"true"`
	SessionID  uuid.UUID `serialize:"true"`
	Gen        uint64    `serialize:"true"`
}

// Equal reports whether two connections share the same identity triple.
func (c UpstairsConnection) Equal(o UpstairsConnection) bool {
	return c.UpstairsID == o.UpstairsID && c.SessionID == o.SessionID && c.Gen == o.Gen
}

func (c UpstairsConnection) String() string {
	return fmt.Sprintf("upstairs=%s session=%s gen=%d", c.UpstairsID, c.SessionID, c.Gen)
}

// Wire frames carry identity fields as raw [16]byte rather than uuid.UUID
// directly, since the codec only needs to move bytes and the frame types
// should not import the identity package's notion of equality. uuid.UUID
// is itself defined as a [16]byte array, so the conversion is a relabeling,
// not a copy.

func connFromWire(upstairsID, sessionID [16]byte, gen uint64) UpstairsConnection {
	return UpstairsConnection{
		UpstairsID: uuid.UUID(upstairsID),
		SessionID:  uuid.UUID(sessionID),
		Gen:        gen,
	}
}

func (c UpstairsConnection) wireIDs() (upstairsID, sessionID [16]byte) {
	return [16]byte(c.UpstairsID), [16]byte(c.SessionID)
}

// WireUpstairsID returns the raw bytes of UpstairsID for embedding in a
// rejection frame such as UuidMismatch.
func (c UpstairsConnection) WireUpstairsID() [16]byte {
	return [16]byte(c.UpstairsID)
}

// WireIDs returns the raw bytes of both UpstairsID and SessionID, for
// building a JobHeader on an outbound ack.
func (c UpstairsConnection) WireIDs() (upstairsID, sessionID [16]byte) {
	return c.wireIDs()
}

// ConnectionFromHereIAm extracts the caller's claimed identity from a
// step-0 greeting.
func ConnectionFromHereIAm(f HereIAm) UpstairsConnection {
	return connFromWire(f.UpstairsID, f.SessionID, f.Gen)
}

// ConnectionFromPromote extracts the identity a PromoteToActive request is
// asking to become active.
func ConnectionFromPromote(f PromoteToActive) UpstairsConnection {
	return connFromWire(f.UpstairsID, f.SessionID, f.Gen)
}

// YouAreNowActiveFor builds the acceptance frame sent back to a newly
// promoted connection.
func YouAreNowActiveFor(c UpstairsConnection) YouAreNowActive {
	upstairsID, sessionID := c.wireIDs()
	return YouAreNowActive{UpstairsID: upstairsID, SessionID: sessionID, Gen: c.Gen}
}

// YouAreNoLongerActiveFor builds the eviction notice sent to the session
// that newConn is displacing.
func YouAreNoLongerActiveFor(newConn UpstairsConnection) YouAreNoLongerActive {
	upstairsID, sessionID := newConn.wireIDs()
	return YouAreNoLongerActive{NewUpstairsID: upstairsID, NewSessionID: sessionID, NewGen: newConn.Gen}
}
