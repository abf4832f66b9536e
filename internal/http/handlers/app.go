package handlers

import (
	"encoding/json"
	"net/http"

	"portraits/internal/infra"
	"portraits/internal/middleware"
	"portraits/internal/orchestrator"
)

// App bundles handler dependencies.
type App struct {
	Service *orchestrator.Service
	Logger  infra.Logger
}

func NewApp(service *orchestrator.Service, logger infra.Logger) *App {
	return &App{Service: service, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

// currentUserID resolves the caller identity injected by the (out of scope)
// auth layer, falling back to a guest identity derived from the client IP.
func (a *App) currentUserID(r *http.Request) string {
	if uid := r.Header.Get("X-User-ID"); uid != "" {
		return uid
	}
	return "guest:" + middleware.ClientIP(r)
}

// verifiedOrderID resolves the caller's paid order reference. Like X-User-ID
// it is injected by the auth layer after payment verification; the header is
// stripped from inbound traffic at the edge, so its presence is the trusted
// signal for the privileged quota.
func (a *App) verifiedOrderID(r *http.Request) string {
	return r.Header.Get("X-Order-ID")
}
