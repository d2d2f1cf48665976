package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	once sync.Once

	scheduledSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "luybot",
			Name:      "scheduled_sends_total",
			Help:      "Scheduled sends by trigger kind.",
		},
		[]string{"kind"},
	)

	rosterSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "luybot",
			Name:      "roster_syncs_total",
			Help:      "Google Sheets roster syncs by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(scheduledSends, rosterSyncs)
	})
}

// IncScheduledSend increments the counter for a trigger kind
// (delivery, motivation, weekly_review).
func IncScheduledSend(kind string) {
	scheduledSends.WithLabelValues(kind).Inc()
}

// IncRosterSync increments the sync counter with result "ok" or "error".
func IncRosterSync(result string) {
	rosterSyncs.WithLabelValues(result).Inc()
}

// Server serves the Prometheus scrape endpoint.
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

func NewServer(port int, logger *zerolog.Logger) *Server {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "metrics").Logger()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: base,
	}
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("metrics endpoint listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
