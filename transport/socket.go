////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/messenger/chat"
)

const (
	// Inbound event names.
	evNewMessage    = "newMessage"
	evMessageStatus = "messageStatus"
	evTypingStarted = "typingStarted"
	evTypingStopped = "typingStopped"

	// Outbound event names.
	evSendMessage = "sendMessage"
	evTyping      = "typing"
	evStopTyping  = "stopTyping"
	evJoinChat    = "joinChat"
	evLeaveChat   = "leaveChat"

	writeTimeout = 10 * time.Second
	pongTimeout  = 90 * time.Second
	pingPeriod   = 30 * time.Second
)

// frame is the JSON envelope of every event on the socket.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// statusUpdate is the payload of a messageStatus event.
type statusUpdate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Socket implements [chat.PushTransport] over a websocket carrying JSON
// event frames. A single reader goroutine dispatches inbound events to the
// registered handler; writes are serialized by a mutex.
type Socket struct {
	conn *websocket.Conn

	handler    chat.EventHandler
	handlerMux sync.RWMutex

	writeMux sync.Mutex
	done     chan struct{}
	once     sync.Once
}

// DialSocket connects the push socket and starts its read loop. Events that
// arrive before a handler is registered are dropped.
func DialSocket(socketURL string) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.Dial(socketURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "could not dial socket %s", socketURL)
	}

	s := &Socket{
		conn: conn,
		done: make(chan struct{}),
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	go s.readLoop()
	go s.pingLoop()

	jww.INFO.Printf("[WS] Connected to %s", socketURL)
	return s, nil
}

// SetHandler registers the receiver of inbound events.
func (s *Socket) SetHandler(h chat.EventHandler) {
	s.handlerMux.Lock()
	defer s.handlerMux.Unlock()
	s.handler = h
}

func (s *Socket) getHandler() chat.EventHandler {
	s.handlerMux.RLock()
	defer s.handlerMux.RUnlock()
	return s.handler
}

// readLoop pumps inbound frames until the socket dies.
func (s *Socket) readLoop() {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				jww.ERROR.Printf("[WS] Read loop ended: %+v", err)
			}
			s.Close()
			return
		}

		var f frame
		if err = json.Unmarshal(payload, &f); err != nil {
			jww.WARN.Printf("[WS] Dropping unparsable frame: %+v", err)
			continue
		}
		s.dispatch(f)
	}
}

// dispatch routes one inbound frame to the handler.
func (s *Socket) dispatch(f frame) {
	h := s.getHandler()
	if h == nil {
		jww.WARN.Printf("[WS] No handler registered; dropping %q", f.Event)
		return
	}

	switch f.Event {
	case evNewMessage:
		var raw chat.RawMessage
		if err := json.Unmarshal(f.Data, &raw); err != nil {
			jww.WARN.Printf("[WS] Bad %s payload: %+v", f.Event, err)
			return
		}
		h.NewMessage(raw)
	case evMessageStatus:
		var upd statusUpdate
		if err := json.Unmarshal(f.Data, &upd); err != nil {
			jww.WARN.Printf("[WS] Bad %s payload: %+v", f.Event, err)
			return
		}
		h.MessageStatus(upd.ID, upd.Status)
	case evTypingStarted:
		var peerID string
		if err := json.Unmarshal(f.Data, &peerID); err != nil {
			jww.WARN.Printf("[WS] Bad %s payload: %+v", f.Event, err)
			return
		}
		h.TypingStarted(peerID)
	case evTypingStopped:
		var peerID string
		if err := json.Unmarshal(f.Data, &peerID); err != nil {
			jww.WARN.Printf("[WS] Bad %s payload: %+v", f.Event, err)
			return
		}
		h.TypingStopped(peerID)
	default:
		jww.TRACE.Printf("[WS] Ignoring unknown event %q", f.Event)
	}
}

// pingLoop keeps the connection alive until Close.
func (s *Socket) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMux.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(writeTimeout))
			s.writeMux.Unlock()
			if err != nil {
				jww.WARN.Printf("[WS] Ping failed: %+v", err)
			}
		}
	}
}

// emit writes one outbound event frame.
func (s *Socket) emit(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "could not encode %s payload", event)
	}
	buf, err := json.Marshal(frame{Event: event, Data: payload})
	if err != nil {
		return errors.Wrapf(err, "could not encode %s frame", event)
	}

	s.writeMux.Lock()
	defer s.writeMux.Unlock()

	select {
	case <-s.done:
		return errors.Errorf("cannot emit %s: socket is closed", event)
	default:
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err = s.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
		return errors.Wrapf(err, "could not emit %s", event)
	}
	return nil
}

// SendMessage emits an outbound message on the push channel.
func (s *Socket) SendMessage(raw chat.RawMessage) error {
	return s.emit(evSendMessage, raw)
}

// Typing signals that the local user is composing to the peer.
func (s *Socket) Typing(peerID string) error {
	return s.emit(evTyping, peerID)
}

// StopTyping signals that the local user stopped composing.
func (s *Socket) StopTyping(peerID string) error {
	return s.emit(evStopTyping, peerID)
}

// JoinChat subscribes to the room of one conversation.
func (s *Socket) JoinChat(peerID string) error {
	return s.emit(evJoinChat, peerID)
}

// LeaveChat unsubscribes from the room of one conversation.
func (s *Socket) LeaveChat(peerID string) error {
	return s.emit(evLeaveChat, peerID)
}

// Close shuts the socket down. Safe to call more than once.
func (s *Socket) Close() {
	s.once.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil {
			jww.WARN.Printf("[WS] Close failed: %+v", err)
		}
	})
}
