// Package api exposes the engine's HTTP surface: the automation webhook,
// health, and reconciliation history.
package api

import (
	"net/http"
	"time"

	"github.com/tradesuite/rolesync/internal/config"
	"github.com/tradesuite/rolesync/internal/directory"
	"github.com/tradesuite/rolesync/internal/entitlement"
	"github.com/tradesuite/rolesync/internal/history"
)

// Router handles HTTP routing.
type Router struct {
	mux         *http.ServeMux
	config      *config.Config
	coordinator *entitlement.Coordinator
	directory   directory.Directory
	history     *history.Store
	version     string
	started     time.Time
}

// NewRouter creates the router. history may be nil when persistence is
// disabled.
func NewRouter(cfg *config.Config, coordinator *entitlement.Coordinator, dir directory.Directory, store *history.Store, version string) http.Handler {
	r := &Router{
		mux:         http.NewServeMux(),
		config:      cfg,
		coordinator: coordinator,
		directory:   dir,
		history:     store,
		version:     version,
		started:     time.Now(),
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.mux.HandleFunc("/health", r.handleHealth)
	r.mux.HandleFunc("/api/health", r.handleHealth)
	r.mux.HandleFunc("/api/version", r.handleVersion)
	r.mux.HandleFunc("/webhook", requireToken(r.config.WebhookTokenHash, r.handleWebhook))
	r.mux.HandleFunc("/api/reconciliations", requireToken(r.config.WebhookTokenHash, r.handleReconciliations))
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
