package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mcoot/escaperoom/internal/metrics"
)

// HandlerConfig tunes websocket connections
type HandlerConfig struct {
	// IntentRate is the sustained intents per second a connection may send.
	// Zero disables the limit.
	IntentRate  float64
	IntentBurst int

	// IntentTimeout bounds the work done for one intent
	IntentTimeout time.Duration
}

// DefaultHandlerConfig returns the connection defaults
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		IntentRate:    30,
		IntentBurst:   60,
		IntentTimeout: 10 * time.Second,
	}
}

// Handler upgrades requests to websocket sessions
type Handler struct {
	services Services
	hubs     *HubManager
	config   HandlerConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler
func NewHandler(services Services, hubs *HubManager, config HandlerConfig, logger *slog.Logger) *Handler {
	return &Handler{
		services: services,
		hubs:     hubs,
		config:   config,
		logger:   logger.With(slog.String("component", "websocket")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The browser client is served from another origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /ws. Clients of the first protocol version connect
// with ?legacy=1.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	legacy := r.URL.Query().Get("legacy") == "1"
	var limiter *rate.Limiter
	if h.config.IntentRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.config.IntentRate), h.config.IntentBurst)
	}

	logger := h.logger.With(slog.String("remote", r.RemoteAddr))
	client := NewClient(conn, legacy, limiter, logger)
	session := NewSession(h.services, h.hubs, client, logger)

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()
	logger.Debug("websocket connected", slog.Bool("legacy", legacy))

	go client.WritePump()

	client.ReadPump(func(env Envelope) {
		ctx, cancel := context.WithTimeout(context.Background(), h.config.IntentTimeout)
		defer cancel()
		session.Handle(ctx, env)
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.IntentTimeout)
	defer cancel()
	session.Close(ctx)
	client.Close()
	logger.Debug("websocket disconnected")
}
