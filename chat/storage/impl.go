////////////////////////////////////////////////////////////////////////////////
// Copyright © 2023 Privategrity Corporation                                   /
//                                                                             /
// All rights reserved.                                                        /
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"

	"gitlab.com/elixxir/messenger/chat"
)

const (
	// Can be provided to SqlLite to create a temporary, in-memory DB.
	temporaryDbPath = "file:%s?mode=memory&cache=shared"

	// Determines maximum runtime of DB queries.
	dbTimeout = 3 * time.Second
)

// newContext builds a context for database operations.
func newContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}

// buildMessage converts a canonical chat message into its storage row.
//
// NOTE: Id is not set inside this function because we want to use the
// autoincrement key by default. If you are trying to overwrite an existing
// message, then you need to set it manually yourself.
func buildMessage(m chat.Message) *Message {
	return &Message{
		MessageId:  m.ID,
		PeerId:     m.PeerID,
		Direction:  uint8(m.Direction),
		Status:     uint8(m.Status),
		Body:       m.Body,
		Timestamp:  m.Timestamp,
		Optimistic: m.Optimistic,
	}
}

// ReceiveMessage stores a new or updated canonical message. Failures are
// logged and swallowed; persistence must never abort an ingest.
func (i *impl) ReceiveMessage(m chat.Message) {
	parentErr := "[SQL] failed to ReceiveMessage: %+v"
	jww.TRACE.Printf("[SQL] ReceiveMessage(%s)", m.ID)

	uuid, update, err := i.receiveWrapper(m)
	if err != nil {
		jww.ERROR.Printf(parentErr, err)
		return
	}

	if i.messageSavedCB != nil {
		jww.TRACE.Printf("[SQL] Calling MessageSavedCB(%d, %s, %t)",
			uuid, m.PeerID, update)
		go i.messageSavedCB(uuid, m.PeerID, update)
	}
}

// UpdateStatus records a delivery-status change for a stored message. A
// message id that was never stored is a silent no-op.
func (i *impl) UpdateStatus(id string, status chat.Status) {
	parentErr := "[SQL] failed to UpdateStatus: %+v"
	jww.TRACE.Printf("[SQL] UpdateStatus(%s, %s)", id, status)

	currentMessage, err := i.getMessage(id)
	if err != nil {
		if strings.Contains(err.Error(), gorm.ErrRecordNotFound.Error()) {
			return
		}
		jww.ERROR.Printf(parentErr, err)
		return
	}

	currentMessage.Status = uint8(status)
	uuid, err := i.upsertMessage(currentMessage)
	if err != nil {
		jww.ERROR.Printf(parentErr, err)
		return
	}

	if i.messageSavedCB != nil {
		go i.messageSavedCB(uuid, currentMessage.PeerId, true)
	}
}

// ReplaceID rebinds a stored optimistic message to its server-assigned
// identity and clears the optimistic mark.
func (i *impl) ReplaceID(oldID, newID string) {
	parentErr := "[SQL] failed to ReplaceID: %+v"
	jww.TRACE.Printf("[SQL] ReplaceID(%s -> %s)", oldID, newID)

	ctx, cancel := newContext()
	err := i.db.WithContext(ctx).Model(&Message{}).
		Where("message_id = ?", oldID).
		Updates(map[string]interface{}{
			"message_id": newID,
			"optimistic": false,
		}).Error
	cancel()
	if err != nil {
		jww.ERROR.Printf(parentErr, err)
	}
}

// UpdateLastViewed records when the conversation was last opened. A peer
// with no stored conversation gets one.
func (i *impl) UpdateLastViewed(peerID string, at time.Time) {
	parentErr := "[SQL] failed to UpdateLastViewed: %+v"
	jww.TRACE.Printf("[SQL] UpdateLastViewed(%s, %s)", peerID, at)

	convo, err := i.getConversation(peerID)
	if err != nil {
		if !strings.Contains(err.Error(), gorm.ErrRecordNotFound.Error()) {
			jww.ERROR.Printf(parentErr, err)
			return
		}
		convo = &Conversation{PeerId: peerID}
	}

	convo.LastViewed = &at
	if err = i.upsertConversation(convo); err != nil {
		jww.ERROR.Printf(parentErr, err)
	}
}

// GetConversation returns the stored conversation for one peer, or nil.
func (i *impl) GetConversation(peerID string) *Conversation {
	parentErr := "Failed to GetConversation: %+v"
	resultConvo, err := i.getConversation(peerID)
	if err != nil {
		jww.ERROR.Printf(parentErr, err)
		return nil
	}
	return resultConvo
}

// GetConversations returns every stored conversation summary.
func (i *impl) GetConversations() []chat.ConversationRecord {
	parentErr := "Failed to GetConversations: %+v"

	var results []Conversation
	ctx, cancel := newContext()
	err := i.db.WithContext(ctx).Find(&results).Error
	cancel()
	if err != nil {
		jww.ERROR.Printf(parentErr, err)
		return nil
	}

	records := make([]chat.ConversationRecord, len(results))
	for n, convo := range results {
		records[n] = chat.ConversationRecord{
			PeerID:     convo.PeerId,
			Name:       convo.Name,
			LastViewed: convo.LastViewed,
		}
	}
	return records
}

// GetMessages returns the stored messages of one conversation in timestamp
// order, for session restore.
func (i *impl) GetMessages(peerID string) []chat.Message {
	parentErr := "Failed to GetMessages: %+v"

	var results []Message
	ctx, cancel := newContext()
	err := i.db.WithContext(ctx).Where("peer_id = ?", peerID).
		Order("timestamp asc, id asc").Find(&results).Error
	cancel()
	if err != nil {
		jww.ERROR.Printf(parentErr, err)
		return nil
	}

	msgs := make([]chat.Message, len(results))
	for n, row := range results {
		msgs[n] = chat.Message{
			ID:         row.MessageId,
			PeerID:     row.PeerId,
			Direction:  chat.Direction(row.Direction),
			Body:       row.Body,
			Timestamp:  row.Timestamp,
			Status:     chat.Status(row.Status),
			Optimistic: row.Optimistic,
		}
	}
	return msgs
}

// receiveWrapper is a higher-level wrapper of upsertMessage. It reports the
// row uuid and whether an existing row was edited.
func (i *impl) receiveWrapper(m chat.Message) (uint64, bool, error) {
	// Determine whether a Conversation needs to be created
	result, err := i.getConversation(m.PeerID)
	if err != nil {
		if !strings.Contains(err.Error(), gorm.ErrRecordNotFound.Error()) {
			return 0, false, err
		}
		// If there is no extant Conversation, create one.
		jww.DEBUG.Printf("[SQL] Joining conversation with %s", m.PeerID)
		err = i.upsertConversation(&Conversation{PeerId: m.PeerID})
		if err != nil {
			return 0, false, err
		}
	} else {
		jww.DEBUG.Printf(
			"[SQL] Conversation with %s already joined", result.PeerId)
	}

	msgToInsert := buildMessage(m)
	update := false
	existing, err := i.getMessage(m.ID)
	if err == nil {
		// Overwrite the existing row in place.
		msgToInsert.Id = existing.Id
		update = true
	}

	uuid, err := i.upsertMessage(msgToInsert)
	if err != nil {
		return 0, false, err
	}
	return uuid, update, nil
}

// upsertMessage is a helper function that will update an existing record
// if Message.Id is specified. Otherwise, it will perform an insert.
func (i *impl) upsertMessage(msg *Message) (uint64, error) {
	ctx, cancel := newContext()
	err := i.db.WithContext(ctx).Save(msg).Error
	cancel()
	if err != nil {
		return 0, errors.Errorf("failed to upsertMessage: %+v", err)
	}

	jww.DEBUG.Printf("[SQL] Successfully stored message %d", msg.Id)
	return uint64(msg.Id), nil
}

// getMessage is a helper that returns the Message with the given message id.
func (i *impl) getMessage(messageID string) (*Message, error) {
	result := &Message{}
	ctx, cancel := newContext()
	err := i.db.WithContext(ctx).
		Where("message_id = ?", messageID).Take(result).Error
	cancel()
	if err != nil {
		return nil, errors.Errorf("failed to getMessage: %+v", err)
	}
	return result, nil
}

// getConversation is a helper that returns the Conversation with the given
// peer id.
func (i *impl) getConversation(peerID string) (*Conversation, error) {
	result := &Conversation{PeerId: peerID}
	ctx, cancel := newContext()
	err := i.db.WithContext(ctx).Take(result).Error
	cancel()
	if err != nil {
		return nil, errors.Errorf("failed to getConversation: %+v", err)
	}
	return result, nil
}

// upsertConversation is used for updating or creating a Conversation.
func (i *impl) upsertConversation(convo *Conversation) error {
	jww.DEBUG.Printf("[SQL] Attempting to upsertConversation: %+v", convo)

	ctx, cancel := newContext()
	err := i.db.WithContext(ctx).Save(convo).Error
	cancel()
	if err != nil {
		return errors.Errorf("[SQL] failed to upsertConversation: %+v", err)
	}
	return nil
}
