package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/go-goal-tracker/internal/transport/http/middleware"
)

// NewOpsMux добавляет к api служебные эндпоинты: /livez, /healthz и /metrics.
// ready сообщает готовность принимать трафик (например, после проверки хранилищ).
func NewOpsMux(api http.Handler, ready func() bool) http.Handler {
	ops := http.NewServeMux()
	ops.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	ops.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})
	ops.Handle("/metrics", promhttp.Handler())

	// Без Logging: оркестратор опрашивает эти эндпоинты каждые несколько секунд.
	wrapped := middleware.Chain(ops, middleware.Recover(), middleware.RequestID())

	mux := http.NewServeMux()
	mux.Handle("/livez", wrapped)
	mux.Handle("/healthz", wrapped)
	mux.Handle("/metrics", wrapped)
	mux.Handle("/", api)

	return mux
}
