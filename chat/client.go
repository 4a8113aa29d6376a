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

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"
)

// Params configures a [Client]. Self is required; everything else has a
// usable zero value.
type Params struct {
	// Self is the local user identity. Normalization compares it against
	// the from/to fields of every payload; it is never a valid peer.
	Self string

	// ReconcileSkew overrides the optimistic-match tolerance window.
	ReconcileSkew time.Duration

	// Typing overrides the typing state machine timer periods.
	Typing TypingConfig

	// Location is the viewer's time zone for date bucketing. Defaults to
	// [time.Local].
	Location *time.Location

	// Resolver is the optional identity directory.
	Resolver IdentityResolver

	// Events is the optional persistence sink mirroring the store.
	Events EventModel
}

// Client is the conversational messaging engine. It owns the reconciliation
// store, reacts to fetch responses and push events, and exposes the derived
// conversation and roster views to the UI layer.
//
// All mutation happens in reaction to discrete events and is atomic with
// respect to other reactions; the store lock is the serialization point.
type Client struct {
	self     string
	loc      *time.Location
	store    *Store
	fetch    FetchClient
	push     PushTransport
	resolver IdentityResolver
	events   EventModel
	typing   *typingTracker

	active     string
	lastViewed map[string]time.Time

	mux sync.Mutex
}

// NewClient builds the engine around its two transport collaborators. The
// push transport's handler is registered by [Client.Start].
func NewClient(params Params, fetch FetchClient, push PushTransport) (
	*Client, error) {
	if params.Self == "" {
		return nil, errors.New("chat client requires a self identity")
	}
	if fetch == nil || push == nil {
		return nil, errors.New(
			"chat client requires both transport collaborators")
	}

	loc := params.Location
	if loc == nil {
		loc = time.Local
	}

	var store *Store
	if params.ReconcileSkew > 0 {
		store = NewStoreWithSkew(params.ReconcileSkew)
	} else {
		store = NewStore()
	}
	store.SetSink(params.Events)

	return &Client{
		self:       params.Self,
		loc:        loc,
		store:      store,
		fetch:      fetch,
		push:       push,
		resolver:   params.Resolver,
		events:     params.Events,
		typing:     newTypingTracker(push, params.Typing),
		lastViewed: make(map[string]time.Time),
	}, nil
}

// Store exposes the reconciliation store for projections and tests.
func (c *Client) Store() *Store {
	return c.store
}

// Start registers the engine as the push event handler, restores the
// persisted session, and runs the initial full fetch. A failed fetch is
// non-fatal: the error is returned for the caller's information and the
// engine keeps running on push events alone.
func (c *Client) Start() error {
	c.push.SetHandler(c)
	c.restoreSession()
	return c.SyncAll()
}

// restoreSession reloads the persisted canonical set before the network is
// consulted, so the session picks up where it left off. The fetch that
// follows deduplicates against the restored records. Previously viewed
// conversations restore as read.
func (c *Client) restoreSession() {
	if c.events == nil {
		return
	}
	for _, convo := range c.events.GetConversations() {
		msgs := c.events.GetMessages(convo.PeerID)
		for _, m := range msgs {
			c.store.Ingest(m)
		}
		if convo.LastViewed != nil {
			c.MarkViewed(convo.PeerID, netTime.Now())
		}
		jww.INFO.Printf("[CHAT] Restored %d messages for %s",
			len(msgs), convo.PeerID)
	}
}

// Stop tears down typing timers and leaves the active room. The store keeps
// the session; use [Client.Reset] to clear it.
func (c *Client) Stop() {
	c.typing.resetAll()

	c.mux.Lock()
	active := c.active
	c.active = ""
	c.mux.Unlock()

	if active != "" {
		if err := c.push.LeaveChat(active); err != nil {
			jww.WARN.Printf("[CHAT] Failed to leave %s: %+v", active, err)
		}
	}
}

// SyncAll fetches every conversation and ingests the results.
func (c *Client) SyncAll() error {
	return c.Sync("")
}

// Sync fetches one conversation (or all, for an empty peer) and ingests the
// results. Duplicates are absorbed by the store, so overlapping syncs and
// push deliveries of the same messages are harmless.
func (c *Client) Sync(peerID string) error {
	raws, err := c.fetch.FetchMessages(peerID)
	if err != nil {
		return errors.Wrapf(err, "fetch for %q failed", peerID)
	}
	c.ingestRaws(raws)
	return nil
}

// ingestRaws normalizes and ingests a batch. Malformed payloads are dropped
// and logged; they never abort the batch.
func (c *Client) ingestRaws(raws []RawMessage) {
	for _, raw := range raws {
		m, err := Normalize(raw, c.self)
		if err != nil {
			jww.WARN.Printf(
				"[CHAT] Dropping malformed payload %q: %+v", raw.ID, err)
			continue
		}
		c.store.Ingest(m)
	}
}

// NewMessage implements [EventHandler] for pushed messages. They flow through
// the same normalize-and-ingest path as fetch results, so duplicate delivery
// across the two channels collapses to one canonical record.
func (c *Client) NewMessage(raw RawMessage) {
	c.ingestRaws([]RawMessage{raw})
}

// MessageStatus implements [EventHandler]. Unknown status strings and
// unknown ids are ignored; late updates must not fail.
func (c *Client) MessageStatus(id, status string) {
	st, ok := ParseStatus(status)
	if !ok {
		jww.DEBUG.Printf(
			"[CHAT] Ignoring unknown status %q for %s", status, id)
		return
	}
	c.store.ApplyStatusUpdate(id, st)
}

// TypingStarted implements [EventHandler].
func (c *Client) TypingStarted(peerID string) {
	c.typing.remoteStarted(peerID)
}

// TypingStopped implements [EventHandler].
func (c *Client) TypingStopped(peerID string) {
	c.typing.remoteStopped(peerID)
}

// ConversationView returns the date-bucketed view of one conversation, as of
// now in the viewer's time zone.
func (c *Client) ConversationView(peerID string) []DayBucket {
	return BuildConversation(c.store.AllFor(peerID), netTime.Now(), c.loc)
}

// Contacts returns the roster derived from the store, most recent
// conversation first, with display names resolved.
func (c *Client) Contacts() []Contact {
	c.mux.Lock()
	lastViewed := make(map[string]time.Time, len(c.lastViewed))
	for k, v := range c.lastViewed {
		lastViewed[k] = v
	}
	c.mux.Unlock()

	contacts := ProjectContacts(c.store.All(), lastViewed)
	for i := range contacts {
		contacts[i].Name = c.DisplayName(contacts[i].ID)
	}
	sort.Slice(contacts, func(i, j int) bool {
		if !contacts[i].LastMessageTime.Equal(contacts[j].LastMessageTime) {
			return contacts[i].LastMessageTime.After(
				contacts[j].LastMessageTime)
		}
		return contacts[i].ID < contacts[j].ID
	})
	return contacts
}

// DisplayName resolves a peer id through the directory, falling back to
// formatting the raw identifier as a phone number.
func (c *Client) DisplayName(peerID string) string {
	if c.resolver != nil {
		if name, ok := c.resolver.DisplayName(peerID); ok {
			return name
		}
	}
	return "+" + peerID
}

// TypingState reports the typing indicator of one conversation.
func (c *Client) TypingState(peerID string) TypingState {
	return c.typing.state(peerID)
}

// Keystroke registers local composing activity for a conversation, driving
// the outbound typing signals.
func (c *Client) Keystroke(peerID string) {
	c.typing.keystroke(peerID)
}

// MarkViewed records that the conversation was viewed at the given time,
// resetting its unread count.
func (c *Client) MarkViewed(peerID string, at time.Time) {
	c.mux.Lock()
	c.lastViewed[peerID] = at
	c.mux.Unlock()

	if c.events != nil {
		c.events.UpdateLastViewed(peerID, at)
	}
}

// SetActiveConversation switches the focused conversation. The conversation
// being left gets its local typing signal stopped and its remote indicator
// discarded, and its room is left. In-flight fetches are never cancelled; a
// late response for a conversation no longer active still ingests, because
// the store is global and peer-indexed.
func (c *Client) SetActiveConversation(peerID string) {
	c.mux.Lock()
	prev := c.active
	c.active = peerID
	c.mux.Unlock()

	if prev != "" && prev != peerID {
		c.typing.reset(prev)
		if err := c.push.LeaveChat(prev); err != nil {
			jww.WARN.Printf("[CHAT] Failed to leave %s: %+v", prev, err)
		}
	}
	if peerID != "" && peerID != prev {
		if err := c.push.JoinChat(peerID); err != nil {
			jww.WARN.Printf("[CHAT] Failed to join %s: %+v", peerID, err)
		}
		go func() {
			if err := c.Sync(peerID); err != nil {
				jww.WARN.Printf("[CHAT] %+v", err)
			}
		}()
	}
}

// ActiveConversation returns the currently focused peer, or empty.
func (c *Client) ActiveConversation() string {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.active
}

// Reset clears the session on logout: store, typing state, and view marks.
func (c *Client) Reset() {
	c.typing.resetAll()
	c.store.Reset()

	c.mux.Lock()
	c.active = ""
	c.lastViewed = make(map[string]time.Time)
	c.mux.Unlock()
}
