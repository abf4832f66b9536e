package handlers

import (
	"net/http"

	"portraits/internal/domain"
)

// StylesList returns the selectable style catalog.
func (a *App) StylesList(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"styles": domain.Styles()})
}
