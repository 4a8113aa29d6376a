////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"sort"
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"
)

// defaultReconcileSkew is the tolerance window used when matching a server
// echo against a local optimistic record. It absorbs the clock skew between
// the client-generated and server-assigned timestamps.
const defaultReconcileSkew = 10 * time.Second

// Store is the authoritative in-memory set of canonical messages for the
// session. It owns deduplication and merge-on-arrival. It is the single
// shared mutable resource of the engine; every ingest is atomic with respect
// to every other, and all other components are pure readers over it.
type Store struct {
	byID     map[string]*Message
	arrivals []*Message
	seq      uint64
	skew     time.Duration

	// sink optionally mirrors every mutation, for persistence. Calls are
	// made in mutation order; implementations must not call back into the
	// store.
	sink EventModel

	mux sync.RWMutex
}

// NewStore creates an empty store with the default reconciliation skew.
func NewStore() *Store {
	return NewStoreWithSkew(defaultReconcileSkew)
}

// NewStoreWithSkew creates an empty store with the given reconciliation
// tolerance window.
func NewStoreWithSkew(skew time.Duration) *Store {
	return &Store{
		byID: make(map[string]*Message),
		skew: skew,
	}
}

// SetSink registers an optional persistence sink that mirrors the store.
func (s *Store) SetSink(sink EventModel) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.sink = sink
}

// Ingest merges one message into the store and reports what happened.
//
// A record with a known id is a duplicate: the only effect is a status
// passthrough onto a still-pending (or failed) record. A sent-direction
// record that is new by id but matches a live optimistic record for the same
// peer, with an equal normalized body and a timestamp inside the skew window,
// is the server-confirmed counterpart of that optimistic message: the
// existing record is rebound to the server identity in place instead of a
// second row appearing. Everything else is inserted.
//
// Ingest never fails; degraded fields (such as an unknown timestamp) are
// preferred over dropping the message.
func (s *Store) Ingest(m Message) IngestResult {
	s.mux.Lock()
	defer s.mux.Unlock()

	if existing, ok := s.byID[m.ID]; ok {
		// Status passthrough only; a re-fetch never overwrites an
		// already-confirmed status.
		if m.Status != existing.Status &&
			(existing.Status == StatusPending ||
				(existing.Status == StatusFailed &&
					m.Status != StatusPending)) {
			jww.DEBUG.Printf("[STORE] Duplicate of %s upgrades "+
				"status %s -> %s", m.ID, existing.Status, m.Status)
			existing.Status = m.Status
			if s.sink != nil {
				s.sink.UpdateStatus(existing.ID, existing.Status)
			}
		}
		return Duplicate
	}

	if m.Direction == Sent && !m.Optimistic {
		if local := s.findOptimisticMatch(m); local != nil {
			jww.INFO.Printf("[STORE] Reconciled optimistic %s with "+
				"server echo %s for peer %s", local.ID, m.ID, m.PeerID)
			oldID := local.ID
			delete(s.byID, local.ID)
			local.ID = m.ID
			local.Optimistic = false
			if m.Status != StatusPending {
				local.Status = m.Status
			} else if local.Status == StatusPending {
				local.Status = StatusSent
			}
			if !m.Timestamp.IsZero() {
				// The server-assigned timestamp is authoritative.
				local.Timestamp = m.Timestamp
			}
			s.byID[local.ID] = local
			if s.sink != nil {
				s.sink.ReplaceID(oldID, local.ID)
				s.sink.ReceiveMessage(*local)
			}
			return Merged
		}
	}

	s.seq++
	m.seq = s.seq
	m.ingestedAt = netTime.Now()
	stored := m
	s.byID[stored.ID] = &stored
	s.arrivals = append(s.arrivals, &stored)
	if s.sink != nil {
		s.sink.ReceiveMessage(stored)
	}
	jww.TRACE.Printf("[STORE] Inserted %s (peer %s, %s)",
		stored.ID, stored.PeerID, stored.Direction)
	return Inserted
}

// findOptimisticMatch returns the oldest live optimistic record that the
// incoming echo plausibly confirms. Matching by body and time window is
// approximate; two identical bodies sent back to back inside the window
// cannot be told apart without a server-side correlation id.
func (s *Store) findOptimisticMatch(m Message) *Message {
	body := normalizedBody(m.Body)
	for _, local := range s.arrivals {
		if !local.Optimistic || local.PeerID != m.PeerID {
			continue
		}
		if normalizedBody(local.Body) != body {
			continue
		}
		if !m.Timestamp.IsZero() && !local.Timestamp.IsZero() {
			delta := m.Timestamp.Sub(local.Timestamp)
			if delta < 0 {
				delta = -delta
			}
			if delta > s.skew {
				continue
			}
		}
		return local
	}
	return nil
}

// ApplyStatusUpdate mutates the status of the matching record. A late or
// unknown id is silently ignored; it reports whether a record was updated.
func (s *Store) ApplyStatusUpdate(id string, status Status) bool {
	s.mux.Lock()
	defer s.mux.Unlock()

	existing, ok := s.byID[id]
	if !ok {
		jww.DEBUG.Printf(
			"[STORE] Ignoring status update for unknown message %s", id)
		return false
	}
	if existing.Status != status {
		jww.DEBUG.Printf("[STORE] Status of %s: %s -> %s",
			id, existing.Status, status)
		existing.Status = status
		if s.sink != nil {
			s.sink.UpdateStatus(id, status)
		}
	}
	return true
}

// AllFor returns the messages of one conversation sorted by timestamp with
// arrival order breaking ties, so equal or unknown timestamps never jitter.
// Unknown timestamps sort first. The result is a copy and safe to retain.
func (s *Store) AllFor(peerID string) []Message {
	s.mux.RLock()
	out := make([]Message, 0)
	for _, m := range s.arrivals {
		if m.PeerID == peerID {
			out = append(out, *m)
		}
	}
	s.mux.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// All returns a copy of every message in arrival order.
func (s *Store) All() []Message {
	s.mux.RLock()
	defer s.mux.RUnlock()
	out := make([]Message, len(s.arrivals))
	for i, m := range s.arrivals {
		out[i] = *m
	}
	return out
}

// Get looks a message up by id.
func (s *Store) Get(id string) (Message, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Len returns the number of canonical records held.
func (s *Store) Len() int {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return len(s.arrivals)
}

// Reset clears the session. Used on logout.
func (s *Store) Reset() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.byID = make(map[string]*Message)
	s.arrivals = nil
	s.seq = 0
	jww.INFO.Printf("[STORE] Session cleared")
}
