// Package httpapi exposes the REST endpoints and mounts the WebSocket gateway.
package httpapi

import (
	"context"
	"net/http"

	"github.com/and161185/orderhub/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps collects what NewRouter wires together.
type Deps struct {
	Log     *zap.Logger
	Auth    service.AuthService
	Orders  service.OrderCreator
	WS      http.Handler // mounted at /ws
	Metrics http.Handler // mounted at /metrics; nil to disable
	Health  Pinger       // nil: always healthy
}

// NewRouter builds the chi router with logging and panic recovery on every route.
func NewRouter(d Deps) http.Handler {
	h := &handlers{log: d.Log, auth: d.Auth, orders: d.Orders, health: d.Health}

	r := chi.NewRouter()
	r.Use(Recover(d.Log), Logging(d.Log))

	r.Get("/healthz", h.healthz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Post("/signup", h.signup)
	r.Post("/token", h.token)
	r.Post("/token/refresh", h.refresh)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(d.Auth, d.Log))
		r.Post("/logout", h.logout)
		r.Post("/orders", h.createOrder)
	})

	if d.WS != nil {
		r.Method(http.MethodGet, "/ws", d.WS)
	}
	return r
}
