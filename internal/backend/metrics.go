package backend

import "github.com/prometheus/client_golang/prometheus"

var txOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "erx_backend_transactions_total",
	Help: "Backend transactions by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(txOutcomes)
}
