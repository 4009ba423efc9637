package directory

import (
	"github.com/prometheus/client_golang/prometheus"
)

var upstreamFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "radio_directory_upstream_failures_total",
		Help: "Number of directory searches that failed on all attempted mirrors",
	},
)

func init() {
	prometheus.MustRegister(upstreamFailuresTotal)
}
