// metrics — прикладные метрики сервиса авторизации.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций.
const (
	ResultOK           = "ok"
	ResultInvalid      = "invalid_argument"
	ResultUnauthorized = "unauthenticated"
	ResultError        = "error"
)

// Auth — счётчики операций, латентность хэширования и число вычищенных сессий.
// Nil-значение безопасно: все методы ничего не делают.
type Auth struct {
	operations *prometheus.CounterVec
	hash       *prometheus.HistogramVec
	swept      prometheus.Counter
}

// New создаёт и регистрирует метрики в reg.
func New(reg prometheus.Registerer) (*Auth, error) {
	m := &Auth{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Auth operations by name and result.",
		}, []string{"operation", "result"}),
		hash: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auth_hash_duration_seconds",
			Help:    "Duration of bcrypt hash/compare of refresh secrets.",
			Buckets: []float64{.01, .025, .05, .1, .2, .3, .5, 1, 2},
		}, []string{"op"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_swept_total",
			Help: "Expired sessions removed by the janitor.",
		}),
	}

	for _, c := range []prometheus.Collector{m.operations, m.hash, m.swept} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Operation учитывает завершённую операцию.
func (m *Auth) Operation(name, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, result).Inc()
}

// ObserveHash подходит как hasher.Observer.
func (m *Auth) ObserveHash(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.hash.WithLabelValues(op).Observe(d.Seconds())
}

// Swept учитывает удалённые janitor-ом сессии.
func (m *Auth) Swept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}
