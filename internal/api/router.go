package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/mcoot/escaperoom/internal/api/handler"
	apimiddleware "github.com/mcoot/escaperoom/internal/api/middleware"
	"github.com/mcoot/escaperoom/internal/middleware"
	"github.com/mcoot/escaperoom/internal/realtime"
	"github.com/mcoot/escaperoom/internal/services/chat"
	"github.com/mcoot/escaperoom/internal/services/room"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger         *slog.Logger
	RoomController *room.Controller
	ChatService    *chat.Service
	HubManager     *realtime.HubManager
	Sockets        http.Handler
	StorageType    string

	// RateLimiter guards the JSON API; nil disables limiting
	RateLimiter *middleware.RateLimiter
	// AllowedOrigin is the browser origin allowed to call the API; "*" for any
	AllowedOrigin string
}

// NewRateLimiter builds the per-client limiter for the JSON API, or nil
// when perSecond is zero
func NewRateLimiter(perSecond float64, burst int) *middleware.RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	return middleware.NewRateLimiter(rate.Limit(perSecond), burst, rateLimiterTTL)
}

// NewRouter creates a new router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(apimiddleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Metrics())

	roomHandler := handler.NewRoomHandler(cfg.RoomController, cfg.ChatService, cfg.Logger)
	healthHandler := handler.NewHealthHandler(cfg.StorageType, cfg.HubManager)

	// The first browser client calls the API without a version prefix
	for _, prefix := range []string{"/api/v1", "/api"} {
		api := r.PathPrefix(prefix).Subrouter()
		api.Use(middleware.CORS(cfg.AllowedOrigin))
		if cfg.RateLimiter != nil {
			api.Use(apimiddleware.RateLimit(cfg.RateLimiter))
		}

		api.HandleFunc("/rooms", roomHandler.Create).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/rooms/{code}", roomHandler.Get).Methods(http.MethodGet, http.MethodOptions)
		api.HandleFunc("/rooms/{code}/messages", roomHandler.Messages).Methods(http.MethodGet, http.MethodOptions)
		api.HandleFunc("/health", healthHandler.Get).Methods(http.MethodGet)
	}

	if cfg.Sockets != nil {
		r.Handle("/ws", cfg.Sockets).Methods(http.MethodGet)
	}
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
