////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import "strconv"

// Direction denotes whether a message was sent by the local user or received
// from the conversation partner. It is always derived during normalization;
// the raw wire field is only trusted when the self sentinel is absent.
type Direction uint8

const (
	// Received is the direction of a message authored by the partner.
	Received Direction = 0

	// Sent is the direction of a message authored by the local user.
	Sent Direction = 1
)

// String returns a human-readable version of [Direction], used for debugging
// and logging. This function adheres to the [fmt.Stringer] interface.
func (d Direction) String() string {
	switch d {
	case Received:
		return "received"
	case Sent:
		return "sent"
	default:
		return "Invalid Direction: " + strconv.Itoa(int(d))
	}
}

// Status represents the current delivery status of a message.
type Status uint8

const (
	// StatusPending is the status of an optimistic message before any
	// transport has confirmed it.
	StatusPending Status = 0

	// StatusSent is the status of a message once a transport accepted it.
	StatusSent Status = 1

	// StatusDelivered is the status of a message once the remote side
	// received it.
	StatusDelivered Status = 2

	// StatusFailed is the status of a message whose dispatch failed on a
	// transport channel. The message stays in the conversation; only a
	// later status update or the arrival of the server echo upgrades it.
	StatusFailed Status = 3
)

// String returns a human-readable version of [Status], used for debugging and
// logging. This function adheres to the [fmt.Stringer] interface.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusFailed:
		return "failed"
	default:
		return "Invalid Status: " + strconv.Itoa(int(s))
	}
}

// ParseStatus maps a wire status string to a [Status]. The second return is
// false when the string names no known status.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "pending":
		return StatusPending, true
	case "sent":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "failed":
		return StatusFailed, true
	default:
		return StatusPending, false
	}
}

// IngestResult reports what [Store.Ingest] did with an incoming message.
type IngestResult uint8

const (
	// Inserted means the message was new and a canonical record was added.
	Inserted IngestResult = 0

	// Merged means the message was recognized as the server echo of a
	// local optimistic record, which was rebound to the server identity.
	Merged IngestResult = 1

	// Duplicate means a canonical record with the same ID already existed
	// and at most a status passthrough occurred.
	Duplicate IngestResult = 2
)

// String returns a human-readable version of [IngestResult], used for
// debugging and logging. This function adheres to the [fmt.Stringer]
// interface.
func (ir IngestResult) String() string {
	switch ir {
	case Inserted:
		return "inserted"
	case Merged:
		return "merged"
	case Duplicate:
		return "duplicate"
	default:
		return "Invalid IngestResult: " + strconv.Itoa(int(ir))
	}
}

// TypingState is the per-conversation typing indicator state.
type TypingState uint8

const (
	// TypingIdle means no one is composing in the conversation.
	TypingIdle TypingState = 0

	// TypingRemote means the partner signalled that they are composing.
	TypingRemote TypingState = 1

	// TypingLocal means the local user is composing.
	TypingLocal TypingState = 2
)

// String returns a human-readable version of [TypingState], used for
// debugging and logging. This function adheres to the [fmt.Stringer]
// interface.
func (ts TypingState) String() string {
	switch ts {
	case TypingIdle:
		return "idle"
	case TypingRemote:
		return "remoteTyping"
	case TypingLocal:
		return "localTyping"
	default:
		return "Invalid TypingState: " + strconv.Itoa(int(ts))
	}
}
