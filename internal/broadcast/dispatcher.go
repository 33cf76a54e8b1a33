package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/wisdom-muso/laso/internal/domain"
	"github.com/wisdom-muso/laso/internal/metrics"
)

const (
	commandTimeout     = 5 * time.Second
	stopTimeout        = 10 * time.Second
	commandChannelSize = 256
)

// dispatcherCmd is the command interface for the Dispatcher actor.
type dispatcherCmd interface{ isDispatcherCmd() }

type baseDispatcherCmd struct{}

func (baseDispatcherCmd) isDispatcherCmd() {}

type subscribeCmd struct {
	baseDispatcherCmd
	topic        domain.Topic
	session      *Session
	errorChannel chan error
}

type unsubscribeCmd struct {
	baseDispatcherCmd
	topic   domain.Topic
	session *Session
}

type detachCmd struct {
	baseDispatcherCmd
	session    *Session
	ackChannel chan struct{}
}

type publishCmd struct {
	baseDispatcherCmd
	topic domain.Topic
	event domain.Event
}

type targetCountCmd struct {
	baseDispatcherCmd
	topic        domain.Topic
	replyChannel chan int
}

type stopCmd struct {
	baseDispatcherCmd
}

// Options tunes subscriber queues and keep-alive behavior.
type Options struct {
	// QueueSize bounds each subscriber's outbound queue; an overflowing
	// subscriber is dropped rather than stalling the publish loop.
	QueueSize    int
	PingInterval time.Duration
	IdleTimeout  time.Duration
}

// Dispatcher owns the topic registry and fans published events out to every
// session currently subscribed to a topic. One instance per server, injected
// where needed; constructed with NewDispatcher and torn down with Stop.
type Dispatcher struct {
	cmdCh   chan dispatcherCmd
	clock   clockwork.Clock
	opts    Options
	done    chan struct{}
	topics  map[domain.Topic]map[*Session]struct{}
	members map[*Session]map[domain.Topic]struct{}
}

// NewDispatcher creates the dispatcher actor and starts its goroutine.
func NewDispatcher(clock clockwork.Clock, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	d := &Dispatcher{
		cmdCh:   make(chan dispatcherCmd, commandChannelSize),
		clock:   clock,
		opts:    opts,
		done:    make(chan struct{}),
		topics:  make(map[domain.Topic]map[*Session]struct{}),
		members: make(map[*Session]map[domain.Topic]struct{}),
	}
	go d.run()
	return d
}

// NewSession wraps an upgraded connection in a CONNECTING session with its
// own write goroutine.
func (d *Dispatcher) NewSession(conn *websocket.Conn) *Session {
	s := &Session{
		ID:         uuid.New(),
		dispatcher: d,
		conn:       conn,
		writer:     newClientWriter(conn, d.clock, d.opts.QueueSize, d.opts.PingInterval, d.opts.IdleTimeout),
	}
	metrics.WebSocketActiveConnections.Inc()
	return s
}

// Publish delivers an event to every session currently subscribed to the
// topic. Fire-and-forget: it returns once the command is enqueued, and a slow
// subscriber is evicted rather than blocking delivery to the rest.
func (d *Dispatcher) Publish(topic domain.Topic, event domain.Event) {
	d.cmdCh <- publishCmd{topic: topic, event: event}
}

// TargetCount returns the number of sessions subscribed to a topic.
// Returns -1 if the command times out.
func (d *Dispatcher) TargetCount(topic domain.Topic) int {
	replyCh := make(chan int, 1)
	d.cmdCh <- targetCountCmd{topic: topic, replyChannel: replyCh}

	timer := d.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("TargetCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the dispatcher, closing all subscriber sessions.
// Blocks until the actor goroutine has exited or timeout is reached.
func (d *Dispatcher) Stop() {
	select {
	case d.cmdCh <- stopCmd{}:
	case <-d.done:
		return
	}

	timeout := d.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-d.done:
		slog.Info("Dispatcher stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Dispatcher stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (d *Dispatcher) subscribe(topic domain.Topic, session *Session) error {
	errCh := make(chan error, 1)
	d.cmdCh <- subscribeCmd{topic: topic, session: session, errorChannel: errCh}

	// Use timeout to prevent blocking forever if the actor is stuck
	timer := d.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("subscribe command timed out after %v", commandTimeout)
	}
}

func (d *Dispatcher) unsubscribe(topic domain.Topic, session *Session) {
	d.cmdCh <- unsubscribeCmd{topic: topic, session: session}
}

// detach removes a closing session from every topic it is subscribed to.
// Blocks until the actor has processed the removal, so no publish after
// detach returns can target the session.
func (d *Dispatcher) detach(session *Session) {
	ackCh := make(chan struct{})
	d.cmdCh <- detachCmd{session: session, ackChannel: ackCh}

	timer := d.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case <-ackCh:
	case <-timer.Chan():
		slog.Warn("detach command timed out", "session_id", session.ID.String())
	}
}

func (d *Dispatcher) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher panic recovered", "panic", r)
			d.handleStop()
		}
	}()

	depthTicker := d.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()
	defer close(d.done)

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(d.cmdCh)
			metrics.DispatcherCommandChannelDepth.Set(float64(depth))

			if depth > commandChannelSize*4/5 {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(d.cmdCh))
			}

		case cmd := <-d.cmdCh:
			switch c := cmd.(type) {
			case subscribeCmd:
				d.handleSubscribe(c)
			case unsubscribeCmd:
				d.handleUnsubscribe(c.topic, c.session)
			case detachCmd:
				d.removeSession(c.session)
				close(c.ackChannel)
			case publishCmd:
				d.handlePublish(c)
			case targetCountCmd:
				c.replyChannel <- len(d.topics[c.topic])
			case stopCmd:
				d.handleStop()
				return
			default:
				slog.Warn("Dispatcher received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (d *Dispatcher) handleSubscribe(c subscribeCmd) {
	sessions, exists := d.topics[c.topic]
	if !exists {
		sessions = make(map[*Session]struct{})
		d.topics[c.topic] = sessions
	}

	if _, already := sessions[c.session]; !already {
		sessions[c.session] = struct{}{}

		topics, exists := d.members[c.session]
		if !exists {
			topics = make(map[domain.Topic]struct{})
			d.members[c.session] = topics
		}
		topics[c.topic] = struct{}{}

		metrics.DispatcherActiveTopics.Set(float64(len(d.topics)))
		metrics.DispatcherSubscriptions.Inc()
	}

	slog.Debug("Session subscribed", "session_id", c.session.ID.String(), "topic", string(c.topic), "subscribers", len(sessions))
	c.errorChannel <- nil
}

func (d *Dispatcher) handleUnsubscribe(topic domain.Topic, session *Session) {
	sessions, exists := d.topics[topic]
	if !exists {
		return
	}
	if _, subscribed := sessions[session]; !subscribed {
		return
	}

	delete(sessions, session)
	if len(sessions) == 0 {
		delete(d.topics, topic)
	}

	if topics, exists := d.members[session]; exists {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(d.members, session)
		}
	}

	metrics.DispatcherActiveTopics.Set(float64(len(d.topics)))
	metrics.DispatcherSubscriptions.Dec()
	slog.Debug("Session unsubscribed", "session_id", session.ID.String(), "topic", string(topic))
}

// removeSession releases every registry entry held for the session.
// Idempotent; called for explicit closes, transport failures, and evictions.
func (d *Dispatcher) removeSession(session *Session) {
	topics, exists := d.members[session]
	if !exists {
		return
	}
	for topic := range topics {
		sessions := d.topics[topic]
		delete(sessions, session)
		if len(sessions) == 0 {
			delete(d.topics, topic)
		}
		metrics.DispatcherSubscriptions.Dec()
	}
	delete(d.members, session)
	metrics.DispatcherActiveTopics.Set(float64(len(d.topics)))
}

func (d *Dispatcher) handlePublish(c publishCmd) {
	metrics.DispatcherPublishedTotal.WithLabelValues(string(c.event.Type)).Inc()

	sessions, exists := d.topics[c.topic]
	if !exists {
		return
	}

	data, err := json.Marshal(c.event)
	if err != nil {
		slog.Error("Failed to marshal broadcast event", "error", err)
		return
	}

	var slow []*Session
	for session := range sessions {
		if !session.writer.trySend(data) {
			slow = append(slow, session)
		}
	}

	for _, session := range slow {
		slog.Warn("Disconnecting slow subscriber", "session_id", session.ID.String(), "topic", string(c.topic))
		metrics.DispatcherSlowClientsEvicted.Inc()
		d.removeSession(session)
		session.evict("outbound queue overflow")
	}
}

func (d *Dispatcher) handleStop() {
	total := len(d.members)
	slog.Info("Dispatcher shutting down", "topics", len(d.topics), "sessions", total)

	for session := range d.members {
		d.removeSession(session)
		session.evict("server shutting down")
	}

	metrics.DispatcherActiveTopics.Set(0)
	slog.Info("Dispatcher shutdown complete", "disconnected_sessions", total)
}
