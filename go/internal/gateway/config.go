package gateway

import (
	"net/http"
	"time"
)

// Config holds configuration for the overlay gateway service
type Config struct {
	ConnectionConfig ConnectionConfig

	// APIRateLimit is the sustained rate (requests/sec) allowed on the
	// query-once endpoints. Zero disables limiting.
	APIRateLimit float64
	APIRateBurst int

	// UpdateSubject is the NATS subject announcing changed wars. Empty
	// disables the update consumer.
	UpdateSubject string
}

// ConnectionConfig holds configuration for overlay WebSocket sessions
type ConnectionConfig struct {
	RefreshInterval   time.Duration
	HeartbeatInterval time.Duration
	LivenessTimeout   time.Duration
	FetchTimeout      time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	ReadBufferSize    int
	WriteBufferSize   int
	CheckOrigin       func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		RefreshInterval:   time.Second,
		HeartbeatInterval: 30 * time.Second,
		LivenessTimeout:   75 * time.Second,
		FetchTimeout:      2 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    1024,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin: func(r *http.Request) bool {
			// Overlays are loaded by broadcast software from arbitrary origins
			return true
		},
	}
}

// DefaultConfig returns default configuration for the overlay gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		APIRateLimit:     50,
		APIRateBurst:     100,
		UpdateSubject:    "warboard.wars.updated",
	}
}
