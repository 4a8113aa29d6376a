////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mockEvents records every model call for inspection, and serves canned
// restore data.
type mockEvents struct {
	mux        sync.Mutex
	received   []Message
	statuses   map[string]Status
	replaced   map[string]string
	lastViewed map[string]time.Time

	conversations []ConversationRecord
	stored        map[string][]Message
}

func newMockEvents() *mockEvents {
	return &mockEvents{
		statuses:   make(map[string]Status),
		replaced:   make(map[string]string),
		lastViewed: make(map[string]time.Time),
		stored:     make(map[string][]Message),
	}
}

func (me *mockEvents) ReceiveMessage(m Message) {
	me.mux.Lock()
	defer me.mux.Unlock()
	me.received = append(me.received, m)
}

func (me *mockEvents) UpdateStatus(id string, status Status) {
	me.mux.Lock()
	defer me.mux.Unlock()
	me.statuses[id] = status
}

func (me *mockEvents) ReplaceID(oldID, newID string) {
	me.mux.Lock()
	defer me.mux.Unlock()
	me.replaced[oldID] = newID
}

func (me *mockEvents) UpdateLastViewed(peerID string, at time.Time) {
	me.mux.Lock()
	defer me.mux.Unlock()
	me.lastViewed[peerID] = at
}

func (me *mockEvents) GetConversations() []ConversationRecord {
	me.mux.Lock()
	defer me.mux.Unlock()
	return me.conversations
}

func (me *mockEvents) GetMessages(peerID string) []Message {
	me.mux.Lock()
	defer me.mux.Unlock()
	return me.stored[peerID]
}

// Tests that re-ingesting the same message is a no-op: one canonical record,
// whatever the mix of fetch and push deliveries.
func TestStore_Ingest_Idempotent(t *testing.T) {
	s := NewStore()
	m := Message{ID: "m1", PeerID: "peer1", Body: "hi",
		Timestamp: time.Now(), Status: StatusDelivered}

	require.Equal(t, Inserted, s.Ingest(m))
	require.Equal(t, Duplicate, s.Ingest(m))
	require.Equal(t, Duplicate, s.Ingest(m))
	require.Equal(t, 1, s.Len())
}

// Tests the status rules of duplicate delivery: a pending record adopts the
// incoming status, but an already-confirmed status is never overwritten by a
// re-fetch.
func TestStore_Ingest_DuplicateStatusPassthrough(t *testing.T) {
	s := NewStore()
	m := Message{ID: "m1", PeerID: "peer1", Body: "hi", Status: StatusPending}
	require.Equal(t, Inserted, s.Ingest(m))

	m.Status = StatusDelivered
	require.Equal(t, Duplicate, s.Ingest(m))
	got, ok := s.Get("m1")
	require.True(t, ok)
	require.Equal(t, StatusDelivered, got.Status)

	// Delivered never downgrades back to sent.
	m.Status = StatusSent
	require.Equal(t, Duplicate, s.Ingest(m))
	got, _ = s.Get("m1")
	require.Equal(t, StatusDelivered, got.Status)
}

// Tests that a failed record can still be upgraded by a later duplicate, since
// the message may have made it through one channel anyway.
func TestStore_Ingest_DuplicateUpgradesFailed(t *testing.T) {
	s := NewStore()
	m := Message{ID: "m1", PeerID: "peer1", Body: "hi", Status: StatusFailed}
	require.Equal(t, Inserted, s.Ingest(m))

	m.Status = StatusSent
	require.Equal(t, Duplicate, s.Ingest(m))
	got, _ := s.Get("m1")
	require.Equal(t, StatusSent, got.Status)
}

// Tests the optimistic reconciliation path: the server echo of a local send
// rebinds the existing record to the server identity in place, instead of a
// second bubble appearing.
func TestStore_Ingest_ReconcilesOptimistic(t *testing.T) {
	s := NewStore()
	sentAt := time.Now()

	local := Message{
		ID:         "temp-1",
		PeerID:     "peer1",
		Direction:  Sent,
		Body:       "on my way",
		Timestamp:  sentAt,
		Status:     StatusPending,
		Optimistic: true,
	}
	require.Equal(t, Inserted, s.Ingest(local))

	echo := Message{
		ID:        "srv-9",
		PeerID:    "peer1",
		Direction: Sent,
		Body:      "on my way",
		Timestamp: sentAt.Add(2 * time.Second),
		Status:    StatusSent,
	}
	require.Equal(t, Merged, s.Ingest(echo))
	require.Equal(t, 1, s.Len())

	_, ok := s.Get("temp-1")
	require.False(t, ok)

	got, ok := s.Get("srv-9")
	require.True(t, ok)
	require.False(t, got.Optimistic)
	require.Equal(t, StatusSent, got.Status)
	// The server-assigned timestamp is authoritative.
	require.True(t, echo.Timestamp.Equal(got.Timestamp))
}

// Tests that the echo match tolerates trailing whitespace differences but
// refuses different bodies and timestamps outside the skew window.
func TestStore_Ingest_EchoMatchBounds(t *testing.T) {
	sentAt := time.Now()
	newLocal := func(id, body string) Message {
		return Message{ID: id, PeerID: "peer1", Direction: Sent, Body: body,
			Timestamp: sentAt, Status: StatusPending, Optimistic: true}
	}

	// Whitespace-normalized bodies still match.
	s := NewStoreWithSkew(10 * time.Second)
	require.Equal(t, Inserted, s.Ingest(newLocal("temp-1", "hello ")))
	require.Equal(t, Merged, s.Ingest(Message{ID: "srv-1", PeerID: "peer1",
		Direction: Sent, Body: "hello", Timestamp: sentAt}))

	// A different body is a different message.
	s = NewStoreWithSkew(10 * time.Second)
	require.Equal(t, Inserted, s.Ingest(newLocal("temp-2", "hello")))
	require.Equal(t, Inserted, s.Ingest(Message{ID: "srv-2", PeerID: "peer1",
		Direction: Sent, Body: "goodbye", Timestamp: sentAt}))
	require.Equal(t, 2, s.Len())

	// A timestamp outside the skew window is a different message.
	s = NewStoreWithSkew(10 * time.Second)
	require.Equal(t, Inserted, s.Ingest(newLocal("temp-3", "hello")))
	require.Equal(t, Inserted, s.Ingest(Message{ID: "srv-3", PeerID: "peer1",
		Direction: Sent, Body: "hello",
		Timestamp: sentAt.Add(time.Minute)}))
	require.Equal(t, 2, s.Len())

	// A different peer never matches.
	s = NewStoreWithSkew(10 * time.Second)
	require.Equal(t, Inserted, s.Ingest(newLocal("temp-4", "hello")))
	require.Equal(t, Inserted, s.Ingest(Message{ID: "srv-4", PeerID: "peer2",
		Direction: Sent, Body: "hello", Timestamp: sentAt}))
	require.Equal(t, 2, s.Len())
}

// Tests that an echo carrying a pending status still marks the reconciled
// record as sent; confirmation by the server is itself the upgrade.
func TestStore_Ingest_EchoUpgradesPending(t *testing.T) {
	s := NewStore()
	sentAt := time.Now()
	require.Equal(t, Inserted, s.Ingest(Message{ID: "temp-1", PeerID: "peer1",
		Direction: Sent, Body: "hi", Timestamp: sentAt,
		Status: StatusPending, Optimistic: true}))

	require.Equal(t, Merged, s.Ingest(Message{ID: "srv-1", PeerID: "peer1",
		Direction: Sent, Body: "hi", Timestamp: sentAt,
		Status: StatusPending}))

	got, _ := s.Get("srv-1")
	require.Equal(t, StatusSent, got.Status)
}

// Tests conversation ordering: non-decreasing by timestamp, arrival order
// breaking ties, unknown timestamps first.
func TestStore_AllFor_Ordering(t *testing.T) {
	s := NewStore()
	base := time.Now()

	s.Ingest(Message{ID: "late", PeerID: "peer1",
		Timestamp: base.Add(time.Hour)})
	s.Ingest(Message{ID: "early", PeerID: "peer1", Timestamp: base})
	s.Ingest(Message{ID: "tie-a", PeerID: "peer1",
		Timestamp: base.Add(time.Minute)})
	s.Ingest(Message{ID: "tie-b", PeerID: "peer1",
		Timestamp: base.Add(time.Minute)})
	s.Ingest(Message{ID: "unknown", PeerID: "peer1"})
	s.Ingest(Message{ID: "other", PeerID: "peer2", Timestamp: base})

	msgs := s.AllFor("peer1")
	require.Len(t, msgs, 5)

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	require.Equal(t,
		[]string{"unknown", "early", "tie-a", "tie-b", "late"}, ids)

	// The ordering is stable across repeated reads.
	require.Equal(t, msgs, s.AllFor("peer1"))
}

// Tests that equal timestamps never jitter, whatever the insertion count.
func TestStore_AllFor_StableTies(t *testing.T) {
	s := NewStore()
	ts := time.Now()
	for i := 0; i < 20; i++ {
		s.Ingest(Message{ID: fmt.Sprintf("m%d", i), PeerID: "peer1",
			Timestamp: ts})
	}

	msgs := s.AllFor("peer1")
	for i, m := range msgs {
		require.Equal(t, fmt.Sprintf("m%d", i), m.ID)
	}
}

// Tests status updates: known ids mutate in place, late or unknown ids are
// silently ignored.
func TestStore_ApplyStatusUpdate(t *testing.T) {
	s := NewStore()
	s.Ingest(Message{ID: "m1", PeerID: "peer1", Status: StatusSent})

	require.True(t, s.ApplyStatusUpdate("m1", StatusDelivered))
	got, _ := s.Get("m1")
	require.Equal(t, StatusDelivered, got.Status)

	require.False(t, s.ApplyStatusUpdate("never-seen", StatusDelivered))
	require.Equal(t, 1, s.Len())
}

// Tests that the persistence sink sees every mutation: the insert, the
// identity rebinding of a reconciliation, and status changes.
func TestStore_SinkMirroring(t *testing.T) {
	events := newMockEvents()
	s := NewStore()
	s.SetSink(events)

	sentAt := time.Now()
	s.Ingest(Message{ID: "temp-1", PeerID: "peer1", Direction: Sent,
		Body: "hi", Timestamp: sentAt, Status: StatusPending,
		Optimistic: true})
	require.Len(t, events.received, 1)
	require.Equal(t, "temp-1", events.received[0].ID)

	s.Ingest(Message{ID: "srv-1", PeerID: "peer1", Direction: Sent,
		Body: "hi", Timestamp: sentAt, Status: StatusSent})
	require.Equal(t, "srv-1", events.replaced["temp-1"])
	require.Len(t, events.received, 2)
	require.Equal(t, "srv-1", events.received[1].ID)

	s.ApplyStatusUpdate("srv-1", StatusDelivered)
	require.Equal(t, StatusDelivered, events.statuses["srv-1"])
}

// Tests that Reset clears the session entirely.
func TestStore_Reset(t *testing.T) {
	s := NewStore()
	s.Ingest(Message{ID: "m1", PeerID: "peer1"})
	s.Ingest(Message{ID: "m2", PeerID: "peer2"})
	require.Equal(t, 2, s.Len())

	s.Reset()
	require.Equal(t, 0, s.Len())
	_, ok := s.Get("m1")
	require.False(t, ok)

	// The store is reusable after a reset.
	require.Equal(t, Inserted, s.Ingest(Message{ID: "m1", PeerID: "peer1"}))
}
