package rest

import (
	"context"
	"net/http"

	"github.com/italolelis/transloader/internal/engine"
)

// Pinger is implemented by ledger backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports the reachability of the ledger backend and the
// download engine.
type HealthHandler struct {
	ledger Pinger
	engine engine.Client
}

func NewHealthHandler(ledger Pinger, ec engine.Client) *HealthHandler {
	return &HealthHandler{ledger: ledger, engine: ec}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ledgerStatus := "healthy"
	if h.ledger == nil || h.ledger.Ping(ctx) != nil {
		ledgerStatus = "unhealthy"
	}

	engineStatus := "healthy"
	if _, err := h.engine.Version(ctx); err != nil {
		engineStatus = "unhealthy"
	}

	overall := "ok"
	if ledgerStatus != "healthy" || engineStatus != "healthy" {
		overall = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": overall,
		"redis":  ledgerStatus,
		"engine": engineStatus,
	})
}
