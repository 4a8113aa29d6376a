////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// tempIDPrefix marks a locally created message that has not yet been
// confirmed by the server. The prefix keeps synthetic ids from ever colliding
// with server-assigned ones.
const tempIDPrefix = "temp-"

// Message is the canonical record of a single real-world message. Exactly one
// exists per underlying message once its identity is known.
type Message struct {
	// ID is the stable identity of the message. Optimistic messages carry
	// a process-unique id prefixed with "temp-" until the server echo
	// rebinds them.
	ID string

	// PeerID identifies the conversation the message belongs to. It is
	// never the local user.
	PeerID string

	// Direction reports who authored the message.
	Direction Direction

	// Body is the normalized text content.
	Body string

	// Timestamp is the message time. The zero value means the timestamp
	// is unknown; such messages sort first and render in the terminal
	// "Unknown" bucket.
	Timestamp time.Time

	// Status is the delivery status. It is mutated in place by status
	// events and by optimistic reconciliation, never by re-fetch.
	Status Status

	// Optimistic is true while the message exists only as a local
	// placeholder.
	Optimistic bool

	// seq is the store arrival order, used as the sort tiebreaker so that
	// equal timestamps never jitter.
	seq uint64

	// ingestedAt records when the store first saw the message. The unread
	// projection compares it against the conversation's last-viewed mark.
	ingestedAt time.Time
}

// IngestedAt returns when the store first saw this message. It is the zero
// time for messages that never passed through a store.
func (m Message) IngestedAt() time.Time {
	return m.ingestedAt
}

// RawMessage is the wire shape of a message as produced by the fetch API and
// the push transport. The text field is either a bare JSON string or a
// {"body": ...} envelope; both normalize to the same canonical body.
type RawMessage struct {
	ID        string          `json:"id"`
	Contact   string          `json:"contact,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Text      json.RawMessage `json:"text,omitempty"`
	Type      string          `json:"type,omitempty"`
	Direction string          `json:"direction,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// textEnvelope is the structured form of the raw text field.
type textEnvelope struct {
	Body string `json:"body"`
}

// extractBody pulls the text content out of either raw text form.
func extractBody(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, true
	}
	var env textEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Body != "" {
		return env.Body, true
	}
	return "", false
}

// Normalize converts a raw payload of unknown but bounded shape into a
// canonical [Message]. It is a pure function.
//
// The direction is synthesized by comparing the self identity against the
// from/to fields; an explicit direction field is honored only when the self
// sentinel appears in neither. Payloads without a usable peer identity cannot
// belong to any conversation and fail with [ErrMalformedMessage], as do
// self-addressed payloads. A missing or unparsable timestamp degrades to the
// zero time rather than rejecting the message.
func Normalize(raw RawMessage, self string) (Message, error) {
	// An empty body with a known peer is kept rather than dropped;
	// losing a message is worse than rendering it empty.
	body, _ := extractBody(raw.Text)

	peer := raw.Contact
	if peer == self {
		peer = raw.To
	}
	if peer == "" {
		switch {
		case raw.From == self:
			peer = raw.To
		case raw.To == self:
			peer = raw.From
		}
	}
	if peer == "" || peer == self {
		return Message{}, ErrMalformedMessage
	}

	var dir Direction
	switch {
	case raw.From == self:
		dir = Sent
	case raw.To == self:
		dir = Received
	case raw.Direction == Sent.String():
		dir = Sent
	default:
		dir = Received
	}

	var ts time.Time
	if raw.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err == nil {
			ts = parsed
		}
	}

	status, ok := ParseStatus(raw.Status)
	if !ok {
		if dir == Sent {
			status = StatusSent
		} else {
			status = StatusDelivered
		}
	}

	id := raw.ID
	if id == "" {
		// Identity-less payloads get a deterministic derived id so a
		// redelivery of the same payload still deduplicates.
		id = deriveMessageID(peer, body, ts)
	}

	return Message{
		ID:        id,
		PeerID:    peer,
		Direction: dir,
		Body:      body,
		Timestamp: ts,
		Status:    status,
	}, nil
}

// deriveMessageID builds a stable identity for payloads the server did not
// assign one to, from the fields that define the message.
func deriveMessageID(peer, body string, ts time.Time) string {
	h := sha256.New()
	h.Write([]byte(peer))
	h.Write([]byte{0})
	h.Write([]byte(body))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(ts.UnixNano(), 10)))
	return "drv-" + hex.EncodeToString(h.Sum(nil)[:16])
}

// MakeRaw converts a canonical message back into the wire shape used by both
// outbound channels.
func (m Message) MakeRaw(self string) RawMessage {
	text, _ := json.Marshal(textEnvelope{Body: m.Body})

	from, to := m.PeerID, self
	if m.Direction == Sent {
		from, to = self, m.PeerID
	}

	var ts string
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	return RawMessage{
		ID:        m.ID,
		Contact:   m.PeerID,
		From:      from,
		To:        to,
		Timestamp: ts,
		Text:      text,
		Type:      "text",
		Direction: m.Direction.String(),
		Status:    m.Status.String(),
	}
}

// normalizedBody is the comparison form used by optimistic reconciliation.
func normalizedBody(body string) string {
	return strings.TrimSpace(body)
}
