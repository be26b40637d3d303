package gateway

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/mcdev12/warboard/go/internal/models"
	"github.com/rs/zerolog/log"
)

//go:embed templates/overlay.html.tmpl
var templateFS embed.FS

var overlayTemplate = template.Must(
	template.New("overlay.html.tmpl").
		Funcs(template.FuncMap{"signed": signedDiff, "diffClass": diffClass}).
		ParseFS(templateFS, "templates/overlay.html.tmpl"),
)

// OverlayPageHandler serves the broadcast overlay page for a war
type OverlayPageHandler struct {
	poller *Poller
}

// NewOverlayPageHandler creates a new overlay page handler
func NewOverlayPageHandler(poller *Poller) *OverlayPageHandler {
	return &OverlayPageHandler{poller: poller}
}

type overlayPageData struct {
	WarID string
	State *models.OverlayState
}

// HandleOverlayPage handles GET /overlay/{warID}
func (h *OverlayPageHandler) HandleOverlayPage(w http.ResponseWriter, r *http.Request) {
	warID := r.PathValue("warID")
	state := h.poller.Poll(r.Context(), warID)
	if state == nil {
		http.Error(w, "Data not found", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := overlayTemplate.Execute(&buf, overlayPageData{WarID: warID, State: state}); err != nil {
		log.Error().Err(err).Str("war_id", warID).Msg("failed to render overlay page")
		http.Error(w, "failed to render overlay", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		log.Debug().Err(err).Msg("failed to write overlay page")
	}
}

// RegisterRoutes registers the overlay page route
func (h *OverlayPageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /overlay/{warID}", h.HandleOverlayPage)
}

func signedDiff(d int) string {
	if d > 0 {
		return fmt.Sprintf("+%d", d)
	}
	return fmt.Sprintf("%d", d)
}

func diffClass(d int) string {
	switch {
	case d > 0:
		return "plus"
	case d < 0:
		return "minus"
	default:
		return ""
	}
}
