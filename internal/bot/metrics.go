package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics структура для метрик Prometheus
type Metrics struct {
	MessagesProcessed    prometheus.Counter
	ErrorsTotal          prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
	LessonsOpened        *prometheus.CounterVec
	DaysCompleted        *prometheus.CounterVec
	ProgramsCompleted    prometheus.Counter
}

// NewMetrics создает новые метрики
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_messages_processed_total",
			Help: "Total number of processed updates",
		}),

		ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_errors_total",
			Help: "Total number of panics recovered in the update loop",
		}),

		UpdateProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "telegram_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),

		LessonsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "telegram_bot_lessons_opened_total",
			Help: "Total number of lesson opens",
		}, []string{"day"}),

		DaysCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "telegram_bot_days_completed_total",
			Help: "Total number of day completions",
		}, []string{"day"}),

		ProgramsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_programs_completed_total",
			Help: "Total number of users who finished the course",
		}),
	}
}
