package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	tierResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gend",
			Subsystem: "cache",
			Name:      "tier_resolutions_total",
			Help:      "Resolution attempts per tier and outcome (hit, miss, error)",
		},
		[]string{"tier", "outcome"},
	)

	downloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gend",
			Subsystem: "cache",
			Name:      "download_bytes_total",
			Help:      "Bytes downloaded into the local tier, by source",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(tierResolutions, downloadBytes)
}
