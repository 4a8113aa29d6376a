////////////////////////////////////////////////////////////////////////////////
// Copyright © 2023 Privategrity Corporation                                   /
//                                                                             /
// All rights reserved.                                                        /
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"time"
)

// Message defines the database representation of a single Message.
//
// A Message belongs to one Conversation.
type Message struct {
	Id         int64     `gorm:"primaryKey;autoIncrement:true"`
	MessageId  string    `gorm:"uniqueIndex;not null"`
	PeerId     string    `gorm:"index;not null"`
	Direction  uint8     `gorm:"not null"`
	Status     uint8     `gorm:"not null"`
	Body       string    `gorm:"not null"`
	Timestamp  time.Time `gorm:"index"`
	Optimistic bool      `gorm:"not null"`
}

// TableName overrides the table name used by Message.
func (Message) TableName() string {
	return "chat_messages"
}

// Conversation defines the database representation of a single message
// exchange with one peer.
// A Conversation has many Message objects.
type Conversation struct {
	PeerId string `gorm:"primaryKey;not null;autoIncrement:false"`
	Name   string `gorm:""`

	// LastViewed is when the conversation was last opened. Nil if never
	// viewed.
	LastViewed *time.Time `gorm:""`

	// Have to spell out this relationship because irregular PK name
	Messages []Message `gorm:"foreignKey:PeerId;references:PeerId;constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name used by Conversation.
func (Conversation) TableName() string {
	return "chat_conversations"
}
