////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"strings"

	"github.com/google/uuid"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"
)

// Send creates an optimistic local message and returns it synchronously, so
// the sender sees their own message without waiting on the network. The
// message is then dispatched asynchronously over both channels, push and the
// fetch-backed API, best-effort.
//
// An empty body after trimming is the only synchronous rejection. A failed
// channel never rolls back the optimistic insert: the message stays visible
// as failed until a status update or the server echo upgrades it.
func (c *Client) Send(peerID, body string) (Message, error) {
	if strings.TrimSpace(body) == "" {
		return Message{}, ErrEmptyMessage
	}

	msg := Message{
		ID:         tempIDPrefix + uuid.NewString(),
		PeerID:     peerID,
		Direction:  Sent,
		Body:       body,
		Timestamp:  netTime.Now(),
		Status:     StatusPending,
		Optimistic: true,
	}

	c.store.Ingest(msg)
	jww.INFO.Printf("[SEND] Queued %s to %s", msg.ID, peerID)

	go c.dispatch(msg)
	return msg, nil
}

// dispatch pushes the message over both channels. Channel failures are
// logged and downgrade the status to failed; the echo path in
// [Store.Ingest] upgrades it again if the message made it through anyway.
func (c *Client) dispatch(msg Message) {
	raw := msg.MakeRaw(c.self)
	failed := false

	if err := c.push.SendMessage(raw); err != nil {
		jww.ERROR.Printf(
			"[SEND] Push channel failed for %s: %+v", msg.ID, err)
		failed = true
	}
	if err := c.fetch.PostMessage(raw); err != nil {
		jww.ERROR.Printf(
			"[SEND] API channel failed for %s: %+v", msg.ID, err)
		failed = true
	}

	if failed {
		// No-op if the echo already rebound the id.
		c.store.ApplyStatusUpdate(msg.ID, StatusFailed)
	}
}
