package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/mcdev12/warboard/go/internal/models"
	"github.com/mcdev12/warboard/go/internal/overlay"
	"github.com/mcdev12/warboard/go/internal/store"
	"github.com/rs/zerolog/log"
)

// Poller fetches a war record and derives its overlay state. It keeps no
// state between polls; change detection belongs to the caller.
type Poller struct {
	accessor store.Accessor
	metrics  MetricsCollector
}

// NewPoller creates a poller whose fetches are bounded by fetchTimeout
func NewPoller(accessor store.Accessor, fetchTimeout time.Duration, metrics MetricsCollector) *Poller {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &Poller{
		accessor: store.WithTimeout(accessor, fetchTimeout),
		metrics:  metrics,
	}
}

// Poll returns the current overlay state for warID, or nil when the war is
// unavailable for any reason.
func (p *Poller) Poll(ctx context.Context, warID string) *models.OverlayState {
	start := time.Now()
	war, err := p.accessor.Fetch(ctx, warID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Debug().Str("war_id", warID).Msg("war not found")
		case errors.Is(err, store.ErrMalformedRecord):
			log.Warn().Err(err).Str("war_id", warID).Msg("skipping malformed war record")
		default:
			log.Warn().Err(err).Str("war_id", warID).Msg("failed to fetch war")
		}
		p.metrics.PollCompleted(false, time.Since(start))
		return nil
	}

	state := overlay.Derive(war)
	p.metrics.PollCompleted(state != nil, time.Since(start))
	return state
}
