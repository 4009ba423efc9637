package http

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_directory_searches_total",
			Help: "Number of station searches handled, by outcome",
		},
		[]string{"outcome"},
	)

	clickReportsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_directory_click_reports_total",
			Help: "Number of click reports forwarded to the directory",
		},
	)

	favoriteTogglesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_directory_favorite_toggles_total",
			Help: "Number of favorite toggles, by resulting state",
		},
		[]string{"state"},
	)

	playbackActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "radio_directory_playback_active",
			Help: "Whether an audio session is currently active (0 or 1)",
		},
	)
)

func init() {
	prometheus.MustRegister(searchesTotal)
	prometheus.MustRegister(clickReportsTotal)
	prometheus.MustRegister(favoriteTogglesTotal)
	prometheus.MustRegister(playbackActive)
}
