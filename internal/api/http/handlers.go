// Package http serves the public feed over HTTP: the alert documents the
// publisher writes to disk, plus health and prometheus endpoints.
package http

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"pmwatch/internal/config"
	"pmwatch/internal/domain"
	"pmwatch/internal/feed"
	"pmwatch/pkg/httputil"
)

// HealthCheck probes one external dependency.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

type API struct {
	log    zerolog.Logger
	feed   config.FeedConfig
	checks []HealthCheck
}

func NewAPI(log zerolog.Logger, feedCfg config.FeedConfig, checks []HealthCheck) *API {
	return &API{log: log, feed: feedCfg, checks: checks}
}

func (a *API) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readiness probes external dependencies (redis, clickhouse) when wired.
func (a *API) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	for _, c := range a.checks {
		if err := c.Probe(ctx); err != nil {
			a.log.Warn().Err(err).Str("dependency", c.Name).Msg("readiness probe failed")
			_ = httputil.Error(w, r, http.StatusServiceUnavailable, "dependencies_unhealthy", "dependency check failed", map[string]any{
				"dependency": c.Name,
				"error":      err.Error(),
			})
			return
		}
	}

	_ = httputil.JSON(w, http.StatusOK, map[string]string{"dependencies": "healthy"}, nil)
}

// AlertsDocument serves the raw feed file the publisher last wrote. The file
// is the source of truth; the handler never holds alerts in memory.
func (a *API) AlertsDocument(w http.ResponseWriter, r *http.Request) {
	a.serveFile(w, r, a.feed.Out, "application/json; charset=utf-8")
}

// AlertsJSONL serves the line-delimited mirror, oldest first.
func (a *API) AlertsJSONL(w http.ResponseWriter, r *http.Request) {
	a.serveFile(w, r, a.feed.OutJSONL, "application/x-ndjson")
}

// Alerts returns the feed in the enveloped API form.
func (a *API) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts := feed.Load(a.feed.Out, a.log)
	if alerts == nil {
		alerts = []domain.PublishedAlert{}
	}
	_ = httputil.JSON(w, http.StatusOK, alerts, map[string]string{
		"Cache-Control": "public, max-age=15",
	})
}

func (a *API) serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) {
	if _, err := os.Stat(path); err != nil {
		_ = httputil.Error(w, r, http.StatusNotFound, "not_found", "feed not generated yet", nil)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=15")
	http.ServeFile(w, r, path)
}
