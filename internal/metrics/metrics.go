// Package metrics define las métricas Prometheus del dominio (syncs, refresh de
// tokens, logins). Vive en un paquete propio para que services y http las usen
// sin ciclos de import.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SyncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fitlink_sync_runs_total",
		Help: "Syncs ejecutados por proveedor y resultado",
	}, []string{"provider", "result"}) // result: ok|failed|rejected

	SyncUnits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fitlink_sync_units_total",
		Help: "Unidades (días o actividades) procesadas por sync",
	}, []string{"provider", "outcome"}) // outcome: created|updated|error

	SyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fitlink_sync_duration_seconds",
		Help:    "Duración de un sync completo",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"provider"})

	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fitlink_token_refreshes_total",
		Help: "Refresh de tokens OAuth2 por resultado",
	}, []string{"provider", "result"})

	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fitlink_logins_total",
		Help: "Intentos de login con usuario/contraseña por resultado",
	}, []string{"provider", "outcome"}) // outcome: authenticated|mfa_required|failed

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	HTTPInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Requests en vuelo",
	})
)

func all() []prometheus.Collector {
	return []prometheus.Collector{
		SyncRuns, SyncUnits, SyncDuration, TokenRefreshes, Logins,
		HTTPRequests, HTTPDuration, HTTPInflight,
	}
}

// Register registra las métricas en reg (o el default si es nil). Registrar
// dos veces no es error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range all() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// ObserveSync registra el resultado agregado de un sync.
func ObserveSync(provider, result string, created, updated, failed int, d time.Duration) {
	SyncRuns.WithLabelValues(provider, result).Inc()
	SyncDuration.WithLabelValues(provider).Observe(d.Seconds())
	if created > 0 {
		SyncUnits.WithLabelValues(provider, "created").Add(float64(created))
	}
	if updated > 0 {
		SyncUnits.WithLabelValues(provider, "updated").Add(float64(updated))
	}
	if failed > 0 {
		SyncUnits.WithLabelValues(provider, "error").Add(float64(failed))
	}
}

func ObserveRefresh(provider string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	TokenRefreshes.WithLabelValues(provider, result).Inc()
}

func ObserveLogin(provider, outcome string) {
	Logins.WithLabelValues(provider, outcome).Inc()
}

// ObserveHTTP registra un request terminado. route es el patrón de chi, no
// el path crudo, para no explotar la cardinalidad.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
