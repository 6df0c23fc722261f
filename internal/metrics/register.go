package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

// Register registers all podcastqa collectors with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		MustRegisterAll(prometheus.DefaultRegisterer)
	})
}

// MustRegisterAll registers every collector with reg.
func MustRegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(httpRequestDuration, httpRequestsTotal)
	reg.MustRegister(embeddingCollectors()...)
	reg.MustRegister(ragCollectors()...)
}
