package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/warboard/go/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Conn is the part of *websocket.Conn a session relies on
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetPingHandler(h func(appData string) error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

type sessionEventKind int

const (
	eventLiveness sessionEventKind = iota
	eventMessage
	eventClosed
)

type sessionEvent struct {
	kind sessionEventKind
	err  error
}

// Session streams the overlay state of one war to one client.
//
// A session sends one snapshot as soon as it starts, then re-polls on every
// refresh tick and pushes only when the derived state changed. A heartbeat
// tick pings the client and ends the session once no pong or ping has been
// seen for longer than the liveness timeout. Timer ticks, client messages and
// refresh requests are all handled by the goroutine running Run, which is
// the only writer of lastSent and lastLiveness.
type Session struct {
	ID          string
	WarID       string
	ConnectedAt time.Time

	conn    Conn
	poller  *Poller
	clock   clockwork.Clock
	config  ConnectionConfig
	metrics MetricsCollector
	logger  zerolog.Logger

	events    chan sessionEvent
	refreshCh chan struct{}
	done      chan struct{}

	lastSent     *models.OverlayState
	lastLiveness time.Time
}

// NewSession creates a session for warID over conn. It does nothing until Run.
func NewSession(warID string, conn Conn, poller *Poller, clock clockwork.Clock, config ConnectionConfig, metrics MetricsCollector) *Session {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	id := uuid.New().String()
	return &Session{
		ID:          id,
		WarID:       warID,
		ConnectedAt: clock.Now(),
		conn:        conn,
		poller:      poller,
		clock:       clock,
		config:      config,
		metrics:     metrics,
		logger:      log.With().Str("session_id", id).Str("war_id", warID).Logger(),
		events:      make(chan sessionEvent),
		refreshCh:   make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Run streams until the client goes away, stops answering, or ctx ends.
// The returned error says why the session ended; the connection is always
// closed on return and no timer outlives the call.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.conn.Close()

	if err := s.start(ctx); err != nil {
		return err
	}

	refresh := s.clock.NewTicker(s.config.RefreshInterval)
	defer refresh.Stop()
	heartbeat := s.clock.NewTicker(s.config.HeartbeatInterval)
	defer heartbeat.Stop()

	// Liveness is judged by the heartbeat, not by read deadlines
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("clear read deadline: %w", err)
	}
	s.conn.SetReadLimit(s.config.MaxMessageSize)
	s.conn.SetPongHandler(func(string) error {
		s.post(sessionEvent{kind: eventLiveness})
		return nil
	})
	s.conn.SetPingHandler(func(data string) error {
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.config.WriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		s.post(sessionEvent{kind: eventLiveness})
		return nil
	})
	go s.readPump()

	for {
		select {
		case <-ctx.Done():
			s.sendClose(websocket.CloseGoingAway, "server shutting down")
			return ctx.Err()
		case <-refresh.Chan():
			if err := s.refresh(ctx); err != nil {
				return err
			}
		case <-heartbeat.Chan():
			if err := s.heartbeat(); err != nil {
				return err
			}
		case <-s.refreshCh:
			if err := s.refresh(ctx); err != nil {
				return err
			}
		case ev := <-s.events:
			if err := s.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// RequestRefresh asks the session to poll outside its regular cadence. It
// never blocks; requests made while one is pending are merged.
func (s *Session) RequestRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// start sends the first snapshot unconditionally, even when unavailable.
func (s *Session) start(ctx context.Context) error {
	state := s.poller.Poll(ctx, s.WarID)
	if err := s.push(state); err != nil {
		return err
	}
	s.lastSent = state
	s.lastLiveness = s.clock.Now()
	s.logger.Info().Bool("available", state != nil).Msg("overlay session streaming")
	return nil
}

// refresh runs one poll/compare/push cycle.
func (s *Session) refresh(ctx context.Context) error {
	state := s.poller.Poll(ctx, s.WarID)
	if err := ctx.Err(); err != nil {
		return err
	}

	changed := !state.Equal(s.lastSent)
	s.lastSent = state
	if !changed {
		return nil
	}
	return s.push(state)
}

func (s *Session) heartbeat() error {
	if idle := s.clock.Since(s.lastLiveness); idle > s.config.LivenessTimeout {
		s.logger.Info().Dur("idle", idle).Msg("client stopped answering pings")
		s.sendClose(websocket.CloseGoingAway, "liveness timeout")
		return ErrLivenessTimeout
	}
	if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout)); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}
	return nil
}

func (s *Session) handle(ctx context.Context, ev sessionEvent) error {
	switch ev.kind {
	case eventLiveness:
		s.lastLiveness = s.clock.Now()
		return nil
	case eventMessage:
		return s.refresh(ctx)
	default:
		return ev.err
	}
}

func (s *Session) push(state *models.OverlayState) error {
	data, kind, err := encodePayload(state)
	if err != nil {
		return fmt.Errorf("encode overlay state: %w", err)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s payload: %w", kind, err)
	}
	s.metrics.PayloadSent(kind)
	s.logger.Debug().Str("kind", kind).Msg("pushed overlay payload")
	return nil
}

func (s *Session) sendClose(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.config.WriteTimeout)); err != nil {
		s.logger.Debug().Err(err).Msg("failed to send close frame")
	}
}

// readPump forwards client traffic to Run. Any application message counts
// as a refresh request.
func (s *Session) readPump() {
	for {
		_, _, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				err = fmt.Errorf("%w: %v", ErrClientClosed, closeErr)
			} else {
				err = fmt.Errorf("read: %w", err)
			}
			s.post(sessionEvent{kind: eventClosed, err: err})
			return
		}
		s.post(sessionEvent{kind: eventMessage})
	}
}

// post hands an event to Run, dropping it once the session has ended.
func (s *Session) post(ev sessionEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func closeReason(err error) string {
	switch {
	case err == nil:
		return "closed"
	case errors.Is(err, ErrLivenessTimeout):
		return "liveness_timeout"
	case errors.Is(err, ErrClientClosed):
		return "client_closed"
	case errors.Is(err, context.Canceled):
		return "shutdown"
	default:
		return "connection_error"
	}
}
