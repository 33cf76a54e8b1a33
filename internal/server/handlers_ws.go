package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/wisdom-muso/laso/internal/broadcast"
	"github.com/wisdom-muso/laso/internal/domain"
	"github.com/wisdom-muso/laso/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin enforcement happens at the reverse proxy
	},
}

// controlMessage is what a connected client sends to manage subscriptions.
type controlMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// controlReply acknowledges or rejects a control message.
type controlReply struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()

	caller, err := s.resolveCaller(ctx, c)
	if err != nil {
		metrics.WebSocketRejectedConnections.WithLabelValues("unauthorized").Inc()
		return writeError(c, err)
	}

	ip := c.RealIP()
	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.WebSocketRejectedConnections.WithLabelValues(string(reason)).Inc()
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "connection limit reached"})
	}
	defer s.limits.Release(ip)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	session := s.dispatcher.NewSession(conn)
	if err := session.Authorize(caller); err != nil {
		session.Close("unauthorized")
		return nil
	}

	// Initial subscriptions from the query string, then control messages.
	for _, raw := range splitTopics(c.QueryParam("topics")) {
		s.subscribeSession(ctx, session, raw)
	}

	s.readPump(ctx, session, conn)

	session.Close("client_disconnect")
	return nil
}

func splitTopics(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	topics := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			topics = append(topics, trimmed)
		}
	}
	return topics
}

// subscribeSession handles one subscribe request: policy check, registration,
// acknowledgment, and the latest-reading snapshot for patient topics.
func (s *Server) subscribeSession(ctx context.Context, session *broadcast.Session, raw string) {
	topic, ok := domain.ParseTopic(raw)
	if !ok {
		s.sendReply(session, controlReply{Type: "error", Topic: raw, Error: "unknown topic"})
		return
	}

	if err := session.Subscribe(topic); err != nil {
		switch {
		case errors.Is(err, domain.ErrForbidden):
			s.sendReply(session, controlReply{Type: "error", Topic: raw, Error: "forbidden"})
		case errors.Is(err, domain.ErrSessionClosed):
		default:
			s.sendReply(session, controlReply{Type: "error", Topic: raw, Error: "subscription failed"})
		}
		return
	}

	s.sendReply(session, controlReply{Type: "subscribed", Topic: raw})
	s.primeSnapshot(ctx, session, topic)
}

// primeSnapshot pushes the patient's cached latest reading so a fresh
// subscriber is not blank until the next observation arrives.
func (s *Server) primeSnapshot(ctx context.Context, session *broadcast.Session, topic domain.Topic) {
	if s.cache == nil {
		return
	}
	patientID, ok := topic.PatientID()
	if !ok {
		return
	}

	reading, err := s.cache.GetLatest(ctx, patientID)
	if err != nil {
		slog.Warn("Failed to load latest-reading snapshot",
			"patient_id", patientID.String(), "error", err)
		return
	}
	if reading == nil {
		return
	}

	encoded, err := json.Marshal(domain.ReadingUpdateEvent(reading))
	if err != nil {
		return
	}
	session.Send(encoded)
}

func (s *Server) sendReply(session *broadcast.Session, reply controlReply) {
	encoded, err := json.Marshal(reply)
	if err != nil {
		return
	}
	session.Send(encoded)
}

// readPump consumes control messages until the client disconnects.
func (s *Server) readPump(ctx context.Context, session *broadcast.Session, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendReply(session, controlReply{Type: "error", Error: "malformed control message"})
			continue
		}

		switch msg.Action {
		case "subscribe":
			s.subscribeSession(ctx, session, msg.Topic)
		case "unsubscribe":
			topic, ok := domain.ParseTopic(msg.Topic)
			if !ok {
				s.sendReply(session, controlReply{Type: "error", Topic: msg.Topic, Error: "unknown topic"})
				continue
			}
			session.Unsubscribe(topic)
			s.sendReply(session, controlReply{Type: "unsubscribed", Topic: msg.Topic})
		default:
			s.sendReply(session, controlReply{Type: "error", Error: "unknown action"})
		}
	}
}
