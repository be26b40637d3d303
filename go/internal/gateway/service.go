package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/warboard/go/internal/store"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Service is the overlay gateway: live WebSocket sessions plus the
// query-once endpoints, all reading through one store accessor
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	pageHandler       *OverlayPageHandler
	updateConsumer    *UpdateConsumer
}

// Option customizes a Service
type Option func(*serviceOptions)

type serviceOptions struct {
	clock   clockwork.Clock
	metrics MetricsCollector
	nc      *nats.Conn
}

// WithClock drives session timers from clock
func WithClock(clock clockwork.Clock) Option {
	return func(o *serviceOptions) { o.clock = clock }
}

// WithMetrics records gateway metrics to m
func WithMetrics(m MetricsCollector) Option {
	return func(o *serviceOptions) { o.metrics = m }
}

// WithNATS enables the update consumer on nc
func WithNATS(nc *nats.Conn) Option {
	return func(o *serviceOptions) { o.nc = nc }
}

// NewService creates a new overlay gateway service
func NewService(config Config, accessor store.Accessor, opts ...Option) *Service {
	o := serviceOptions{
		clock:   clockwork.NewRealClock(),
		metrics: &NoOpMetricsCollector{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	poller := NewPoller(accessor, config.ConnectionConfig.FetchTimeout, o.metrics)
	connectionManager := NewConnectionManager(config.ConnectionConfig, poller, o.clock, o.metrics)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(poller, config.APIRateLimit, config.APIRateBurst),
		pageHandler:       NewOverlayPageHandler(poller),
	}
	if o.nc != nil && config.UpdateSubject != "" {
		s.updateConsumer = NewUpdateConsumer(o.nc, config.UpdateSubject, connectionManager)
	}
	return s
}

// Start runs background consumers until ctx is cancelled, then stops the
// service
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting overlay gateway service")

	if s.updateConsumer != nil {
		go func() {
			if err := s.updateConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("update consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("overlay gateway service shutting down")
	return s.Stop()
}

// Stop closes every live session, waiting up to ten seconds
func (s *Service) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.connectionManager.Shutdown(ctx)
}

// RegisterRoutes registers the gateway HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	s.pageHandler.RegisterRoutes(mux)
	log.Info().Msg("overlay gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
