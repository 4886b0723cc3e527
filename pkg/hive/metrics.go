package hive

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics counts facade operations per backend. A nil *metrics is valid and
// records nothing, which is the default when no registerer is configured.
type metrics struct {
	opsTotal    *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	statesTotal *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	return &metrics{
		opsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hive_operations_total",
				Help: "Facade operations by backend, operation, and result code",
			},
			[]string{"backend", "op", "result"},
		),
		opDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hive_operation_duration_seconds",
				Help:    "Duration of facade operations that reached a driver",
				Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 60},
			},
			[]string{"backend", "op"},
		),
		statesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hive_state_transitions_total",
				Help: "Client state machine transitions by backend and target state",
			},
			[]string{"backend", "state"},
		),
	}
}

// observe records one completed operation. start is zero for operations
// rejected before reaching the driver.
func (m *metrics) observe(backend BackendType, op string, start time.Time, err error) {
	if m == nil {
		return
	}

	m.opsTotal.WithLabelValues(backend.String(), op, resultLabel(err)).Inc()

	if !start.IsZero() {
		m.opDuration.WithLabelValues(backend.String(), op).Observe(time.Since(start).Seconds())
	}
}

func (m *metrics) transition(backend BackendType, to State) {
	if m == nil {
		return
	}

	m.statesTotal.WithLabelValues(backend.String(), to.String()).Inc()
}

// resultLabel keeps label cardinality bounded: general codes by name,
// everything else by facility.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}

	var he *Error
	if !errors.As(err, &he) {
		return "error"
	}

	if he.Facility == FacilityGeneral {
		if msg, ok := generalMessages[he.Code]; ok {
			return msg
		}
	}

	if he.Facility == FacilityHTTP {
		return "http_" + strconv.Itoa(int(he.Code)/100) + "xx"
	}

	return he.Facility.String()
}
