package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConnectionManager upgrades overlay connections and keeps a registry of
// live sessions by war ID. Sessions never share display state through it.
type ConnectionManager struct {
	// Session pools organized by war ID
	warSessions map[string]map[*Session]struct{}
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config  ConnectionConfig
	poller  *Poller
	clock   clockwork.Clock
	metrics MetricsCollector

	// Cancelled on shutdown; every session runs under it
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConnectionStats summarizes the registry
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveWars       int            `json:"active_wars"`
	WarConnections   map[string]int `json:"war_connections"`
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, poller *Poller, clock clockwork.Clock, metrics MetricsCollector) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		warSessions: make(map[string]map[*Session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		poller:  poller,
		clock:   clock,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Serve upgrades the request and streams warID to the client until the
// session ends. It runs the session on the calling goroutine.
func (cm *ConnectionManager) Serve(w http.ResponseWriter, r *http.Request, warID string) error {
	// Shutdown cancels under the same lock, so no Add can race its Wait
	cm.mu.Lock()
	if err := cm.ctx.Err(); err != nil {
		cm.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return err
	}
	cm.wg.Add(1)
	cm.mu.Unlock()
	defer cm.wg.Done()

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	session := NewSession(warID, conn, cm.poller, cm.clock, cm.config, cm.metrics)
	cm.registerSession(session)
	defer cm.unregisterSession(session)

	cm.metrics.SessionOpened()
	err = session.Run(cm.ctx)
	reason := closeReason(err)
	cm.metrics.SessionClosed(reason)

	var event *zerolog.Event
	if reason == "connection_error" {
		event = log.Warn().Err(err)
	} else {
		event = log.Info()
	}
	event.
		Str("session_id", session.ID).
		Str("war_id", warID).
		Str("reason", reason).
		Dur("duration", cm.clock.Since(session.ConnectedAt)).
		Msg("overlay session closed")

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClientClosed) || errors.Is(err, ErrLivenessTimeout) {
		return nil
	}
	return err
}

// registerSession adds a session to the registry
func (cm *ConnectionManager) registerSession(s *Session) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.warSessions[s.WarID] == nil {
		cm.warSessions[s.WarID] = make(map[*Session]struct{})
	}
	cm.warSessions[s.WarID][s] = struct{}{}

	log.Debug().
		Str("session_id", s.ID).
		Str("war_id", s.WarID).
		Int("war_sessions", len(cm.warSessions[s.WarID])).
		Msg("session registered")
}

// unregisterSession removes a session from the registry
func (cm *ConnectionManager) unregisterSession(s *Session) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	sessions, ok := cm.warSessions[s.WarID]
	if !ok {
		return
	}
	delete(sessions, s)
	if len(sessions) == 0 {
		delete(cm.warSessions, s.WarID)
	}
}

// Nudge asks every session streaming warID to refresh now. It returns the
// number of sessions nudged.
func (cm *ConnectionManager) Nudge(warID string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	sessions := cm.warSessions[warID]
	for s := range sessions {
		s.RequestRefresh()
	}
	return len(sessions)
}

// GetConnectionStats returns statistics about active sessions
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveWars:     len(cm.warSessions),
		WarConnections: make(map[string]int, len(cm.warSessions)),
	}
	for warID, sessions := range cm.warSessions {
		stats.TotalConnections += len(sessions)
		stats.WarConnections[warID] = len(sessions)
	}
	return stats
}

// Shutdown ends every session and waits for them to finish
func (cm *ConnectionManager) Shutdown(ctx context.Context) error {
	cm.mu.Lock()
	cm.cancel()
	cm.mu.Unlock()

	done := make(chan struct{})
	go func() {
		cm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all overlay sessions closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for overlay sessions: %w", ctx.Err())
	}
}
