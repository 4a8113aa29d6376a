////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import "time"

// Contact is one entry of the derived roster. Contacts have no independent
// lifecycle; they are recomputed from the canonical message set whenever it
// changes.
type Contact struct {
	// ID is the peer identity of the conversation.
	ID string

	// Name is the display name, resolved by the client through the
	// identity directory with a phone-number fallback.
	Name string

	// LastMessage is the body of the most recent message.
	LastMessage string

	// LastDirection reports who authored the most recent message.
	LastDirection Direction

	// LastMessageTime is the timestamp of the most recent message. Zero
	// when the conversation only holds messages with unknown timestamps.
	LastMessageTime time.Time

	// Unread counts received messages ingested after the conversation was
	// last viewed.
	Unread int
}

// ProjectContacts derives the roster from a message set: one entry per peer,
// summarized by the message with the maximum timestamp (ties broken by most
// recent ingestion). lastViewed supplies the per-peer last-viewed marker used
// for the unread count; a missing entry counts every received message.
//
// The projection is pure and deterministic: identical inputs always yield the
// same (unordered) contact collection. Callers sort for display.
func ProjectContacts(
	msgs []Message, lastViewed map[string]time.Time) []Contact {

	latest := make(map[string]Message)
	unread := make(map[string]int)

	for _, m := range msgs {
		cur, ok := latest[m.PeerID]
		if !ok || m.Timestamp.After(cur.Timestamp) ||
			(m.Timestamp.Equal(cur.Timestamp) && m.seq > cur.seq) {
			latest[m.PeerID] = m
		}

		if m.Direction == Received {
			viewedAt, viewed := lastViewed[m.PeerID]
			if !viewed || m.ingestedAt.After(viewedAt) {
				unread[m.PeerID]++
			}
		}
	}

	contacts := make([]Contact, 0, len(latest))
	for peer, m := range latest {
		contacts = append(contacts, Contact{
			ID:              peer,
			LastMessage:     m.Body,
			LastDirection:   m.Direction,
			LastMessageTime: m.Timestamp,
			Unread:          unread[peer],
		})
	}
	return contacts
}
