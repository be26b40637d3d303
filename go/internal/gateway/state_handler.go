package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/warboard/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// OverlayServiceGetOverlayProcedure is the Connect/gRPC procedure for one-shot
// overlay queries.
const OverlayServiceGetOverlayProcedure = "/warboard.overlay.v1.OverlayService/GetOverlay"

var errRateLimited = errors.New("too many requests")

// StateHandler answers one-shot overlay queries. An unavailable war is a
// normal answer (null), not an error.
type StateHandler struct {
	poller  *Poller
	limiter *rate.Limiter
}

// NewStateHandler creates a new state handler. A zero limit disables rate
// limiting.
func NewStateHandler(poller *Poller, limit float64, burst int) *StateHandler {
	l := rate.Inf
	if limit > 0 {
		l = rate.Limit(limit)
	}
	return &StateHandler{
		poller:  poller,
		limiter: rate.NewLimiter(l, burst),
	}
}

// HandleGetOverlayState handles GET /api/{warID}
func (h *StateHandler) HandleGetOverlayState(w http.ResponseWriter, r *http.Request) {
	warID := r.PathValue("warID")
	if warID == "" {
		http.Error(w, "war id is required", http.StatusBadRequest)
		return
	}
	if !h.limiter.Allow() {
		http.Error(w, errRateLimited.Error(), http.StatusTooManyRequests)
		return
	}

	state := h.poller.Poll(r.Context(), warID)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Str("war_id", warID).Msg("failed to encode overlay state response")
	}
}

// GetOverlay is the RPC form of HandleGetOverlayState
func (h *StateHandler) GetOverlay(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Value], error) {
	warID := req.Msg.GetValue()
	if warID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("war id is required"))
	}

	value, err := stateValue(h.poller.Poll(ctx, warID))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(value), nil
}

func (h *StateHandler) rateLimitInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if !h.limiter.Allow() {
				return nil, connect.NewError(connect.CodeResourceExhausted, errRateLimited)
			}
			return next(ctx, req)
		}
	}
}

// RegisterStateRoutes registers the query-once HTTP and RPC routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/{warID}", h.HandleGetOverlayState)
	mux.Handle(OverlayServiceGetOverlayProcedure, connect.NewUnaryHandler(
		OverlayServiceGetOverlayProcedure,
		h.GetOverlay,
		connect.WithInterceptors(h.rateLimitInterceptor()),
	))
}

// stateValue converts a snapshot to a protobuf Value: a struct with the JSON
// field names, or null when unavailable.
func stateValue(state *models.OverlayState) (*structpb.Value, error) {
	if state == nil {
		return structpb.NewNullValue(), nil
	}

	var lastDiff any
	if state.LastDiff != nil {
		lastDiff = *state.LastDiff
	}
	s, err := structpb.NewStruct(map[string]any{
		"team_tag":        state.TeamTag,
		"opponent_tag":    state.OpponentTag,
		"home_score":      state.HomeScore,
		"opponent_score":  state.OpponentScore,
		"total_diff":      state.TotalDiff,
		"last_diff":       lastDiff,
		"races_remaining": state.RacesRemaining,
	})
	if err != nil {
		return nil, err
	}
	return structpb.NewStructValue(s), nil
}
