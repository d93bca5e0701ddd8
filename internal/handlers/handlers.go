// Package handlers exposes the coordinator, settings and favorites over
// HTTP and pushes coordinator events over WebSocket.
package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/autofilter/autofilter/internal/bridge"
	"github.com/autofilter/autofilter/internal/chain"
	"github.com/autofilter/autofilter/internal/config"
	"github.com/autofilter/autofilter/internal/coordinator"
	"github.com/autofilter/autofilter/internal/events"
	"github.com/autofilter/autofilter/internal/favorites"
	"github.com/autofilter/autofilter/internal/observability"
	"github.com/autofilter/autofilter/internal/settings"
)

type Coordinator interface {
	TryOpen(ctx context.Context, tokenID string, ch chain.Chain) coordinator.OpenResult
	Stats() coordinator.Stats
	OpenedTokens() []coordinator.OpenedToken
	CheckCooldown(k coordinator.Key) bool
	OpenTabCount() int
}

type SettingsStore interface {
	Current() settings.Settings
	Update(fn func(*settings.Settings)) (settings.Settings, error)
	Reset() (settings.Settings, error)
}

type Favorites interface {
	UserID() string
	Add(ctx context.Context, filter string) (favorites.Record, error)
	List(ctx context.Context) ([]favorites.Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Open(ctx context.Context, id uuid.UUID) (favorites.Record, string, error)
}

// Browser is what the health route inspects.
type Browser interface {
	ListTabs(ctx context.Context) ([]bridge.Tab, error)
}

type Handlers struct {
	Coordinator Coordinator
	Settings    SettingsStore
	Favorites   Favorites
	Events      *events.Hub
	Browser     Browser
	Config      *config.RuntimeConfig
	Version     string
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /help", h.HandleHelp)
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("POST /tokens/open", h.HandleOpenToken)
	mux.HandleFunc("GET /tokens", h.HandleOpenedTokens)
	mux.HandleFunc("GET /tokens/cooldown", h.HandleCheckCooldown)
	mux.HandleFunc("GET /stats", h.HandleStats)
	mux.HandleFunc("GET /tabs/count", h.HandleTabCount)

	mux.HandleFunc("GET /events", h.HandleEvents)
	if h.Events != nil {
		mux.HandleFunc("GET /events/sse", h.Events.HandleSSE)
	}

	mux.HandleFunc("GET /settings", h.HandleGetSettings)
	mux.HandleFunc("PUT /settings", h.HandlePutSettings)
	mux.HandleFunc("POST /settings/reset", h.HandleResetSettings)

	mux.HandleFunc("GET /favorites", h.HandleListFavorites)
	mux.HandleFunc("POST /favorites", h.HandleAddFavorite)
	mux.HandleFunc("DELETE /favorites/{id}", h.HandleDeleteFavorite)
	mux.HandleFunc("POST /favorites/{id}/open", h.HandleOpenFavorite)

	mux.HandleFunc("POST /filters/url", h.HandleFilterURL)
}

// Handler builds the full middleware chain around the routes.
func (h *Handlers) Handler() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return LoggingMiddleware(RequestIDMiddleware(CorsMiddleware(RateLimitMiddleware(AuthMiddleware(h.Config, mux)))))
}
