////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import "time"

// FetchClient is the REST collaborator the engine pulls messages from and
// posts outbound messages to.
type FetchClient interface {
	// FetchMessages returns the raw payloads for one peer, or for every
	// conversation when peerID is empty.
	FetchMessages(peerID string) ([]RawMessage, error)

	// PostMessage submits an outbound message over the fetch-backed API.
	PostMessage(raw RawMessage) error
}

// EventHandler receives the asynchronous events of the push transport. The
// engine implements it; transports call it from their read loop.
type EventHandler interface {
	// NewMessage delivers a pushed raw message.
	NewMessage(raw RawMessage)

	// MessageStatus delivers a delivery-status change for a message id.
	MessageStatus(id, status string)

	// TypingStarted signals that the peer began composing.
	TypingStarted(peerID string)

	// TypingStopped signals that the peer stopped composing.
	TypingStopped(peerID string)
}

// PushTransport is the asynchronous bidirectional channel delivering
// real-time events. The engine depends on this abstract capability rather
// than a concrete socket so it can run against test doubles.
type PushTransport interface {
	// SetHandler registers the receiver of inbound events. It must be
	// called before the transport starts delivering.
	SetHandler(h EventHandler)

	// SendMessage emits an outbound message on the push channel.
	SendMessage(raw RawMessage) error

	// Typing signals that the local user is composing to the peer.
	Typing(peerID string) error

	// StopTyping signals that the local user stopped composing.
	StopTyping(peerID string) error

	// JoinChat subscribes to the room of one conversation.
	JoinChat(peerID string) error

	// LeaveChat unsubscribes from the room of one conversation.
	LeaveChat(peerID string) error
}

// IdentityResolver is the external directory used to turn peer ids into
// display names.
type IdentityResolver interface {
	// DisplayName returns the directory entry for the peer. The second
	// return is false when no entry exists; the engine then falls back to
	// formatting the raw identifier as a phone number.
	DisplayName(peerID string) (string, bool)
}

// ConversationRecord is the stored summary of one conversation, as held by
// an [EventModel].
type ConversationRecord struct {
	PeerID string
	Name   string

	// LastViewed is when the conversation was last opened. Nil if never
	// viewed.
	LastViewed *time.Time
}

// EventModel is an optional persistence layer mirroring the canonical store,
// in the manner of a database-backed message model. The write methods are
// best-effort: implementations log failures and never propagate them into
// the engine. The read methods serve session restore.
type EventModel interface {
	// ReceiveMessage stores a new or updated canonical message.
	ReceiveMessage(m Message)

	// UpdateStatus records a delivery-status change.
	UpdateStatus(id string, status Status)

	// ReplaceID rebinds a stored optimistic message to its
	// server-assigned identity.
	ReplaceID(oldID, newID string)

	// UpdateLastViewed records when the conversation was last opened.
	UpdateLastViewed(peerID string, at time.Time)

	// GetConversations returns every conversation held by the model.
	GetConversations() []ConversationRecord

	// GetMessages returns the stored messages of one conversation in
	// conversation order.
	GetMessages(peerID string) []Message
}
