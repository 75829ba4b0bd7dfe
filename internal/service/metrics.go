package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GamesDeployed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rps_games_deployed_total",
		Help: "Game instances deployed",
	})
	MovesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_moves_recorded_total",
			Help: "Encrypted moves stored, by who made them",
		},
		[]string{"source"},
	)
	DecryptionRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rps_decryption_requests_total",
		Help: "Decryption requests handed to the oracle",
	})
	DecryptionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rps_decryption_latency_seconds",
		Help:    "Time from decryption request to applied oracle result",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	OracleCallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_oracle_callbacks_total",
			Help: "Oracle fulfilments received over HTTP, by outcome",
		},
		[]string{"outcome"},
	)
	RoundResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_round_results_total",
			Help: "Resolved rounds by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(GamesDeployed)
	prometheus.MustRegister(MovesRecorded)
	prometheus.MustRegister(DecryptionRequests)
	prometheus.MustRegister(DecryptionLatency)
	prometheus.MustRegister(OracleCallbacks)
	prometheus.MustRegister(RoundResults)
}
