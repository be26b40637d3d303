package gateway

import (
	"encoding/json"

	"github.com/mcdev12/warboard/go/internal/models"
)

// Payload kinds pushed to overlay clients
const (
	PayloadState       = "state"
	PayloadUnavailable = "unavailable"
)

// UnavailableMessage is pushed instead of a state when the war has no data.
type UnavailableMessage struct {
	Error string `json:"error"`
}

var unavailablePayload = mustMarshal(UnavailableMessage{Error: PayloadUnavailable})

// encodePayload renders the wire message for a snapshot. A nil state becomes
// the unavailable sentinel.
func encodePayload(state *models.OverlayState) ([]byte, string, error) {
	if state == nil {
		return unavailablePayload, PayloadUnavailable, nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, "", err
	}
	return data, PayloadState, nil
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
