////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"
)

const (
	// defaultRemoteTimeout bounds how long a remote typing indicator may
	// stay lit without an explicit stop event. A crashed or disconnected
	// peer must not leave the indicator stuck.
	defaultRemoteTimeout = 6 * time.Second

	// defaultTypingDebounce is the minimum gap between outbound typing
	// signals while the user keeps composing.
	defaultTypingDebounce = 2 * time.Second

	// defaultTypingQuiet is the keystroke-free period after which an
	// outbound stop signal is sent automatically.
	defaultTypingQuiet = 3 * time.Second
)

// TypingConfig carries the timer periods of the typing state machine. Zero
// fields take the defaults.
type TypingConfig struct {
	RemoteTimeout time.Duration
	Debounce      time.Duration
	Quiet         time.Duration
}

func (tc TypingConfig) withDefaults() TypingConfig {
	if tc.RemoteTimeout == 0 {
		tc.RemoteTimeout = defaultRemoteTimeout
	}
	if tc.Debounce == 0 {
		tc.Debounce = defaultTypingDebounce
	}
	if tc.Quiet == 0 {
		tc.Quiet = defaultTypingQuiet
	}
	return tc
}

// typingEmitter is the slice of the push transport the typing tracker needs
// for its outbound signals.
type typingEmitter interface {
	Typing(peerID string) error
	StopTyping(peerID string) error
}

// typingConv is the transient per-conversation typing state. It is never
// merged into the message model.
type typingConv struct {
	remote      bool
	remoteTimer *time.Timer

	local      bool
	lastSignal time.Time
	quietTimer *time.Timer
}

// typingTracker runs one [typingConv] state machine per conversation, driven
// by local keystrokes and remote events. Its timers are the engine's only
// background timers; each is scoped to one conversation and cancelled when
// that conversation's view is torn down.
type typingTracker struct {
	conv    map[string]*typingConv
	emitter typingEmitter
	cfg     TypingConfig

	mux sync.Mutex
}

func newTypingTracker(emitter typingEmitter, cfg TypingConfig) *typingTracker {
	return &typingTracker{
		conv:    make(map[string]*typingConv),
		emitter: emitter,
		cfg:     cfg.withDefaults(),
	}
}

func (tt *typingTracker) get(peerID string) *typingConv {
	c, ok := tt.conv[peerID]
	if !ok {
		c = &typingConv{}
		tt.conv[peerID] = c
	}
	return c
}

// remoteStarted handles a received typing-started event. The indicator arms a
// silence timeout so it cannot stay lit forever.
func (tt *typingTracker) remoteStarted(peerID string) {
	tt.mux.Lock()
	defer tt.mux.Unlock()

	c := tt.get(peerID)
	c.remote = true
	if c.remoteTimer != nil {
		c.remoteTimer.Stop()
	}
	c.remoteTimer = time.AfterFunc(tt.cfg.RemoteTimeout, func() {
		tt.remoteExpired(peerID)
	})
}

// remoteStopped handles a received typing-stopped event. Unknown peers are a
// no-op; late events must not fail.
func (tt *typingTracker) remoteStopped(peerID string) {
	tt.mux.Lock()
	defer tt.mux.Unlock()

	c, ok := tt.conv[peerID]
	if !ok {
		return
	}
	c.remote = false
	if c.remoteTimer != nil {
		c.remoteTimer.Stop()
		c.remoteTimer = nil
	}
}

// remoteExpired clears a remote indicator whose stop event never arrived.
func (tt *typingTracker) remoteExpired(peerID string) {
	tt.mux.Lock()
	defer tt.mux.Unlock()

	c, ok := tt.conv[peerID]
	if !ok || !c.remote {
		return
	}
	jww.DEBUG.Printf("[TYPING] Remote indicator for %s timed out", peerID)
	c.remote = false
	c.remoteTimer = nil
}

// keystroke registers local composing activity. An outbound typing signal is
// emitted at most once per debounce window, and the quiet timer that will
// emit the matching stop signal is rewound.
func (tt *typingTracker) keystroke(peerID string) {
	tt.mux.Lock()
	defer tt.mux.Unlock()

	c := tt.get(peerID)
	now := netTime.Now()
	if !c.local || now.Sub(c.lastSignal) >= tt.cfg.Debounce {
		c.local = true
		c.lastSignal = now
		if err := tt.emitter.Typing(peerID); err != nil {
			jww.WARN.Printf(
				"[TYPING] Failed to signal typing to %s: %+v",
				peerID, err)
		}
	}

	if c.quietTimer != nil {
		c.quietTimer.Stop()
	}
	c.quietTimer = time.AfterFunc(tt.cfg.Quiet, func() {
		tt.localQuiet(peerID)
	})
}

// localQuiet fires when the quiet period elapses with no further keystrokes.
func (tt *typingTracker) localQuiet(peerID string) {
	tt.mux.Lock()
	defer tt.mux.Unlock()

	c, ok := tt.conv[peerID]
	if !ok || !c.local {
		return
	}
	c.local = false
	c.quietTimer = nil
	if err := tt.emitter.StopTyping(peerID); err != nil {
		jww.WARN.Printf(
			"[TYPING] Failed to signal stop typing to %s: %+v",
			peerID, err)
	}
}

// reset tears down the state of a conversation being left: the local side
// emits a stop signal if it was composing, the remote side is discarded
// rather than carried over, and both timers are cancelled so they cannot
// fire against a stale context.
func (tt *typingTracker) reset(peerID string) {
	tt.mux.Lock()
	defer tt.mux.Unlock()

	c, ok := tt.conv[peerID]
	if !ok {
		return
	}
	if c.remoteTimer != nil {
		c.remoteTimer.Stop()
	}
	if c.quietTimer != nil {
		c.quietTimer.Stop()
	}
	if c.local {
		if err := tt.emitter.StopTyping(peerID); err != nil {
			jww.WARN.Printf(
				"[TYPING] Failed to signal stop typing to %s: %+v",
				peerID, err)
		}
	}
	delete(tt.conv, peerID)
}

// resetAll tears down every conversation. Used on client stop.
func (tt *typingTracker) resetAll() {
	tt.mux.Lock()
	peers := make([]string, 0, len(tt.conv))
	for peerID := range tt.conv {
		peers = append(peers, peerID)
	}
	tt.mux.Unlock()

	for _, peerID := range peers {
		tt.reset(peerID)
	}
}

// state reports the indicator for one conversation. A remote indicator wins
// over local composing.
func (tt *typingTracker) state(peerID string) TypingState {
	tt.mux.Lock()
	defer tt.mux.Unlock()

	c, ok := tt.conv[peerID]
	switch {
	case !ok:
		return TypingIdle
	case c.remote:
		return TypingRemote
	case c.local:
		return TypingLocal
	default:
		return TypingIdle
	}
}
