package broadcast

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wisdom-muso/laso/internal/domain"
	"github.com/wisdom-muso/laso/internal/metrics"
)

// State is a session's lifecycle position. Transitions only move forward:
// CONNECTING -> AUTHORIZED -> SUBSCRIBED -> CLOSING -> CLOSED.
type State int32

const (
	StateConnecting State = iota
	StateAuthorized
	StateSubscribed
	StateClosing
	StateClosed
)

var stateNames = map[State]string{
	StateConnecting: "CONNECTING",
	StateAuthorized: "AUTHORIZED",
	StateSubscribed: "SUBSCRIBED",
	StateClosing:    "CLOSING",
	StateClosed:     "CLOSED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Session is one subscriber connection. It owns its topic subscriptions; the
// dispatcher's registry holds only non-owning back-references that never
// outlive the session. All registry entries are released before the state
// reaches CLOSED.
type Session struct {
	ID uuid.UUID

	dispatcher *Dispatcher
	conn       *websocket.Conn
	writer     *clientWriter

	mu     sync.Mutex
	state  State
	caller domain.Caller

	gaugeOnce sync.Once
}

// Authorize resolves the caller's identity and moves the session to
// AUTHORIZED. A caller without an established identity closes the session
// with ErrUnauthorized.
func (s *Session) Authorize(caller domain.Caller) error {
	s.mu.Lock()
	if s.state != StateConnecting {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot authorize session in state %s: %w", state, domain.ErrSessionClosed)
	}
	if caller.ID == uuid.Nil {
		s.mu.Unlock()
		s.Close("unauthorized")
		return domain.ErrUnauthorized
	}
	s.caller = caller
	s.state = StateAuthorized
	s.mu.Unlock()
	return nil
}

// Subscribe checks the capability policy and registers the session for the
// topic. A Forbidden topic fails only that subscription; the session and its
// other topics are unaffected.
func (s *Session) Subscribe(topic domain.Topic) error {
	s.mu.Lock()
	if s.state != StateAuthorized && s.state != StateSubscribed {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot subscribe in state %s: %w", state, domain.ErrSessionClosed)
	}
	caller := s.caller
	s.mu.Unlock()

	if !domain.Allowed(caller, topic) {
		return domain.ErrForbidden
	}

	if err := s.dispatcher.subscribe(topic, s); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateAuthorized {
		s.state = StateSubscribed
	}
	s.mu.Unlock()
	return nil
}

// Unsubscribe removes one topic subscription. Idempotent.
func (s *Session) Unsubscribe(topic domain.Topic) {
	s.dispatcher.unsubscribe(topic, s)
}

// Caller returns the authorized identity (zero value before Authorize).
func (s *Session) Caller() domain.Caller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caller
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send enqueues a message for this session only (subscription acks, initial
// snapshots). Returns false when the queue is full.
func (s *Session) Send(msg []byte) bool {
	return s.writer.trySend(msg)
}

// Close tears the session down from any state: the dispatcher removes it from
// every subscribed topic, pending sends are cancelled, and only then does the
// state become CLOSED. Safe to call multiple times and concurrently with an
// in-flight publish.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	if s.state >= StateClosing {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	s.mu.Unlock()

	s.dispatcher.detach(s)
	s.finishClose(reason)
}

// evict is the dispatcher-side teardown for slow consumers. The actor has
// already removed the registry entries, so only the transport remains; the
// writer stop happens off the actor goroutine.
func (s *Session) evict(reason string) {
	s.mu.Lock()
	if s.state >= StateClosing {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	s.mu.Unlock()

	go s.finishClose(reason)
}

func (s *Session) finishClose(reason string) {
	s.writer.stopGraceful(reason)

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.gaugeOnce.Do(func() { metrics.WebSocketActiveConnections.Dec() })
	slog.Debug("Session closed", "session_id", s.ID.String(), "reason", reason)
}
