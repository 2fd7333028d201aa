package loader

import "github.com/prometheus/client_golang/prometheus"

var loadSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "gend",
		Subsystem: "model",
		Name:      "load_seconds",
		Help:      "Duration of the one-time model load, by outcome",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(loadSeconds)
}
