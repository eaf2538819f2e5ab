// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/luxfi/ids"

	"github.com/luxfi/downstairs/internal/protocol"
	"github.com/luxfi/downstairs/internal/region"
	"github.com/luxfi/downstairs/internal/work"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRegion() region.Region {
	return region.NewMemory(ids.GenerateTestID(), 512, 4, 2)
}

func conn(upstairs, session uuid.UUID, gen uint64) protocol.UpstairsConnection {
	return protocol.UpstairsConnection{UpstairsID: upstairs, SessionID: session, Gen: gen}
}

// scenario 4: lower gen rejected, incumbent remains active, no eviction signal.
func TestReadWriteFencingRejectsLowerGen(t *testing.T) {
	r := New(newTestRegion(), false, nil, nil)

	a := uuid.New()
	b := uuid.New()
	c1 := conn(a, uuid.New(), 2)
	entry1, err := r.Promote(c1)
	require.NoError(t, err)

	c2 := conn(b, uuid.New(), 1)
	_, err = r.Promote(c2)
	require.ErrorIs(t, err, ErrStaleGeneration)

	require.True(t, r.IsActive(c1))

	select {
	case <-entry1.Terminate():
		t.Fatal("incumbent must not receive an eviction signal")
	default:
	}
}

// scenario 5: higher gen evicts; evicted session observes eviction and its
// Work is gone; the new session's Work starts empty.
func TestReadWriteTakeoverEvictsIncumbent(t *testing.T) {
	r := New(newTestRegion(), false, nil, nil)

	a := uuid.New()
	c1 := conn(a, uuid.New(), 1)
	entry1, err := r.Promote(c1)
	require.NoError(t, err)

	require.NoError(t, entry1.Work.Add(work.DownstairsWork{Owner: c1, DsID: 1000, Op: protocol.Read{}}))

	c2 := conn(a, uuid.New(), 2)
	entry2, err := r.Promote(c2)
	require.NoError(t, err)

	select {
	case evicted := <-entry1.Terminate():
		require.Equal(t, c2, evicted)
	default:
		t.Fatal("expected eviction signal")
	}

	_, err = r.WithWork(c1)
	require.ErrorIs(t, err, ErrUpstairsInactive)

	require.Equal(t, 0, entry2.Work.Jobs())
}

func TestReadWriteSameGenDifferentIdentityConflicts(t *testing.T) {
	r := New(newTestRegion(), false, nil, nil)

	c1 := conn(uuid.New(), uuid.New(), 1)
	_, err := r.Promote(c1)
	require.NoError(t, err)

	c2 := conn(uuid.New(), uuid.New(), 1)
	_, err = r.Promote(c2)
	require.ErrorIs(t, err, ErrIdentityConflict)
}

func TestReadWriteExactRepromoteIsAccepted(t *testing.T) {
	r := New(newTestRegion(), false, nil, nil)

	c1 := conn(uuid.New(), uuid.New(), 1)
	entry1, err := r.Promote(c1)
	require.NoError(t, err)

	entry1Again, err := r.Promote(c1)
	require.NoError(t, err)
	require.Same(t, entry1, entry1Again)
}

// scenario 6: read-only coexistence of distinct identities.
func TestReadOnlyCoexistence(t *testing.T) {
	r := New(newTestRegion(), true, nil, nil)

	a := conn(uuid.New(), uuid.New(), 0)
	b := conn(uuid.New(), uuid.New(), 0)

	_, err := r.Promote(a)
	require.NoError(t, err)
	_, err = r.Promote(b)
	require.NoError(t, err)

	require.True(t, r.IsActive(a))
	require.True(t, r.IsActive(b))
	require.Len(t, r.List(), 2)
}

func TestReadOnlySameIdentityEvictsIncumbent(t *testing.T) {
	r := New(newTestRegion(), true, nil, nil)

	upstairs := uuid.New()
	c1 := conn(upstairs, uuid.New(), 0)
	entry1, err := r.Promote(c1)
	require.NoError(t, err)

	c2 := conn(upstairs, uuid.New(), 0)
	_, err = r.Promote(c2)
	require.NoError(t, err)

	select {
	case <-entry1.Terminate():
	default:
		t.Fatal("expected eviction signal on same-identity reconnect")
	}
	require.Len(t, r.List(), 1)
}

func TestClearOnlyRemovesExactOwner(t *testing.T) {
	r := New(newTestRegion(), false, nil, nil)

	a := uuid.New()
	c1 := conn(a, uuid.New(), 1)
	_, err := r.Promote(c1)
	require.NoError(t, err)

	c2 := conn(a, uuid.New(), 2)
	_, err = r.Promote(c2)
	require.NoError(t, err)

	// c1 was evicted; its own Clear call must not remove c2's entry.
	r.Clear(c1)
	require.True(t, r.IsActive(c2))
}
