package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mender_steps_total",
		Help: "Executed workflow steps by action kind and final status",
	}, []string{"kind", "status"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mender_step_duration_seconds",
		Help:    "Step execution duration including healing",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"kind"})

	healingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mender_healing_sessions_total",
		Help: "Healing sessions by tier and outcome",
	}, []string{"tier", "status"})

	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mender_executions_total",
		Help: "Workflow executions by final status",
	}, []string{"status"})

	apiRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mender_api_request_duration_seconds",
		Help:    "API request duration by route pattern and status code",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "code"})

	batchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mender_batch_executions_in_flight",
		Help: "Batch executions currently holding a permit",
	})
)

// ObserveStep учитывает завершённый шаг.
func ObserveStep(kind, status string, d time.Duration) {
	stepsTotal.WithLabelValues(kind, status).Inc()
	stepDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveHealing учитывает завершённую сессию лечения.
// Пустой tier означает, что ни один уровень не дал шагов.
func ObserveHealing(tier, status string) {
	if tier == "" {
		tier = "none"
	}
	healingTotal.WithLabelValues(tier, status).Inc()
}

// ObserveExecution учитывает завершённое выполнение workflow.
func ObserveExecution(status string) {
	executionsTotal.WithLabelValues(status).Inc()
}

// ObserveAPIRequest учитывает запрос к API. route — шаблон маршрута,
// а не путь, чтобы ID не раздували число серий.
func ObserveAPIRequest(route string, code int, d time.Duration) {
	apiRequests.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}

// BatchSlotAcquired и BatchSlotReleased отслеживают занятые слоты батча.
func BatchSlotAcquired() { batchInFlight.Inc() }

func BatchSlotReleased() { batchInFlight.Dec() }
