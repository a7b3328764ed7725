// Package metrics exposes prometheus counters for the poll loop and gate.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	PollsTotal      prometheus.Counter
	PollErrors      prometheus.Counter
	TradesSeen      prometheus.Counter
	TradesScored    prometheus.Counter
	TradeAlerts     prometheus.Counter
	Candidates      *prometheus.CounterVec
	AlertsPublished *prometheus.CounterVec
	AlertsSkipped   *prometheus.CounterVec
	ArchiveErrors   prometheus.Counter
	FeedAlerts      prometheus.Gauge
	PollDuration    prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		PollsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "pmwatch_polls_total",
			Help: "Completed poll cycles.",
		}),
		PollErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "pmwatch_poll_errors_total",
			Help: "Poll cycles that failed to fetch trades.",
		}),
		TradesSeen: f.NewCounter(prometheus.CounterOpts{
			Name: "pmwatch_trades_seen_total",
			Help: "Trades received from the data API, before dedupe.",
		}),
		TradesScored: f.NewCounter(prometheus.CounterOpts{
			Name: "pmwatch_trades_scored_total",
			Help: "New trades passed through the scorer.",
		}),
		TradeAlerts: f.NewCounter(prometheus.CounterOpts{
			Name: "pmwatch_trade_alerts_total",
			Help: "Per-trade alerts that cleared score and cooldown.",
		}),
		Candidates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pmwatch_signal_candidates_total",
			Help: "Market-level signal candidates by type, before the gate.",
		}, []string{"type"}),
		AlertsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pmwatch_alerts_published_total",
			Help: "Market-level alerts accepted by the gate, by type.",
		}, []string{"type"}),
		AlertsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pmwatch_alerts_skipped_total",
			Help: "Candidates rejected by the gate, by reason.",
		}, []string{"reason"}),
		ArchiveErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "pmwatch_archive_errors_total",
			Help: "Failed archive appends and sink enqueues.",
		}),
		FeedAlerts: f.NewGauge(prometheus.GaugeOpts{
			Name: "pmwatch_feed_alerts",
			Help: "Alerts currently retained in the public feed.",
		}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pmwatch_poll_duration_seconds",
			Help:    "Wall time of one poll cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
