// Package health expone /healthz.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/fitlink/internal/http/dto"
	"github.com/dropDatabas3/fitlink/internal/http/helpers"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
)

// Pinger es cualquier dependencia que se pueda chequear (store, cache).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Controller maneja el health check.
type Controller struct {
	version string
	checks  map[string]Pinger
	timeout time.Duration
}

func NewController(version string, checks map[string]Pinger) *Controller {
	return &Controller{version: version, checks: checks, timeout: 2 * time.Second}
}

// Healthz maneja GET /healthz. Responde 503 si alguna dependencia falla.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("HealthController.Healthz"))

	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	resp := dto.HealthResponse{Status: "ok", Version: c.version}
	if len(c.checks) > 0 {
		resp.Components = make(map[string]string, len(c.checks))
	}
	for name, p := range c.checks {
		if err := p.Ping(ctx); err != nil {
			log.Warn("health check failed", logger.Component(name), logger.Err(err))
			resp.Components[name] = "down"
			resp.Status = "unavailable"
			continue
		}
		resp.Components[name] = "up"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	helpers.WriteJSON(w, status, resp)
}
