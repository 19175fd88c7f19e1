package match

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchDuration observes the time spent answering a match request.
	MatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "donor_match_seconds",
		Help:    "Time spent matching a request against the donor pool.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	candidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "donor_match_candidates_total",
		Help: "Candidate donors considered, grouped by filter outcome.",
	}, []string{"outcome"})
)
