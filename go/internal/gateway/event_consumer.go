package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds connection settings for the update subject and the
// key-value store backend
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// ConnectNATS dials NATS with logging handlers attached
func ConnectNATS(config NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("warboard-gateway"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Nudger is implemented by ConnectionManager
type Nudger interface {
	Nudge(warID string) int
}

// UpdateConsumer listens for war update announcements and asks the sessions
// streaming that war to refresh right away. Polling stays authoritative;
// this only cuts latency.
type UpdateConsumer struct {
	nc      *nats.Conn
	subject string
	nudger  Nudger
}

// NewUpdateConsumer creates a consumer for subject on nc
func NewUpdateConsumer(nc *nats.Conn, subject string, nudger Nudger) *UpdateConsumer {
	return &UpdateConsumer{
		nc:      nc,
		subject: subject,
		nudger:  nudger,
	}
}

// Start subscribes and blocks until ctx is cancelled
func (uc *UpdateConsumer) Start(ctx context.Context) error {
	sub, err := uc.nc.Subscribe(uc.subject, uc.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", uc.subject, err)
	}
	log.Info().Str("subject", uc.subject).Msg("listening for war updates")

	<-ctx.Done()

	if err := sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Str("subject", uc.subject).Msg("failed to unsubscribe")
	}
	log.Info().Msg("update consumer shutting down")
	return nil
}

// handleMessage expects the message body to be a war ID
func (uc *UpdateConsumer) handleMessage(msg *nats.Msg) {
	warID := strings.TrimSpace(string(msg.Data))
	if warID == "" {
		log.Warn().Str("subject", msg.Subject).Msg("ignoring war update without war id")
		return
	}

	n := uc.nudger.Nudge(warID)
	log.Debug().
		Str("war_id", warID).
		Int("sessions", n).
		Msg("war update received")
}
