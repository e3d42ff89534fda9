package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ValidationTotal количество проверенных определений задания
	ValidationTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskengine_validation_total",
		Help: "Total number of task definitions validated",
	})

	// ValidationRejected количество отклоненных определений
	ValidationRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskengine_validation_rejected_total",
		Help: "Number of task definitions rejected by validation",
	})

	// ValidationErrors ошибки проверки по имени
	ValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskengine_validation_errors_total",
		Help: "Task validation errors by name",
	}, []string{"error"})

	// FixesAccepted отсчеты, переданные вычислителю
	FixesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskengine_fixes_accepted_total",
		Help: "Aircraft fixes accepted for task updates",
	})

	// FixesRejected отброшенные отсчеты по причине
	FixesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskengine_fixes_rejected_total",
		Help: "Aircraft fixes rejected by reason",
	}, []string{"reason"})
)

// ObserveValidation учитывает результат проверки задания
func ObserveValidation(errs []string, rejected bool) {
	ValidationTotal.Inc()
	if rejected {
		ValidationRejected.Inc()
	}
	for _, e := range errs {
		ValidationErrors.WithLabelValues(e).Inc()
	}
}
