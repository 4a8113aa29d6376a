////////////////////////////////////////////////////////////////////////////////
// Copyright © 2023 Privategrity Corporation                                   /
//                                                                             /
// All rights reserved.                                                        /
////////////////////////////////////////////////////////////////////////////////

// Handles low level database control and interfaces

package storage

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gitlab.com/elixxir/messenger/chat"
)

// MessageSavedCallback is called any time a message is stored or updated.
//
// update is true if the Message already existed and was edited.
type MessageSavedCallback func(uuid uint64, peerID string, update bool)

// impl implements the chat.EventModel interface with an underlying DB.
// NOTE: This model is NOT thread safe - it is the responsibility of the
// caller to ensure that its methods are called sequentially.
type impl struct {
	db             *gorm.DB // Stored database connection
	messageSavedCB MessageSavedCallback
}

// NewEventModel initializes a [chat.EventModel] backed by sqlite. An empty
// dbFilePath selects a temporary in-memory database.
func NewEventModel(dbFilePath string, msgCb MessageSavedCallback) (
	chat.EventModel, error) {
	useTemporary := len(dbFilePath) == 0
	model, err := newImpl(dbFilePath, msgCb, useTemporary)
	return chat.EventModel(model), err
}

// If useTemporary is set to true, this will use an in-RAM database.
func newImpl(dbFilePath string, msgCb MessageSavedCallback,
	useTemporary bool) (*impl, error) {

	if useTemporary {
		dbFilePath = fmt.Sprintf(temporaryDbPath, "messenger")
		jww.WARN.Printf("No database file path specified! " +
			"Using temporary in-memory database")
	}

	// Create the database connection
	db, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{
		Logger: logger.New(jww.TRACE, logger.Config{LogLevel: logger.Info}),
	})
	if err != nil {
		return nil, errors.Errorf(
			"Unable to initialize database backend: %+v", err)
	}

	// Enable foreign keys because they are disabled in SQLite by default
	if err = db.Exec("PRAGMA foreign_keys = ON", nil).Error; err != nil {
		return nil, err
	}

	// Enable Write Ahead Logging to enable multiple DB connections
	if err = db.Exec("PRAGMA journal_mode = WAL;", nil).Error; err != nil {
		return nil, err
	}

	// Get and configure the internal database ConnPool
	sqlDb, err := db.DB()
	if err != nil {
		return nil, errors.Errorf(
			"Unable to configure database connection pool: %+v", err)
	}
	sqlDb.SetMaxIdleConns(5)
	sqlDb.SetMaxOpenConns(10)
	sqlDb.SetConnMaxIdleTime(5 * time.Minute)
	sqlDb.SetConnMaxLifetime(10 * time.Minute)

	// Initialize the database schema
	// WARNING: Order is important. Do not change without database testing
	err = db.AutoMigrate(&Conversation{}, &Message{})
	if err != nil {
		return nil, err
	}

	// Build the interface
	di := &impl{
		db:             db,
		messageSavedCB: msgCb,
	}

	jww.INFO.Println("Database backend initialized successfully!")
	return di, nil
}
