package middleware

import (
	"log/slog"
	"net/http"
	"time"

	logctx "github.com/pribylovaa/go-goal-tracker/internal/pkg/log"
)

// Logging кладёт в контекст логгер с request_id и пишет одну запись на запрос.
// 5xx логируются как Error, 4xx как Warn.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logctx.Into(r.Context(), l)
			if rid := RequestIDFrom(ctx); rid != "" {
				ctx = logctx.With(ctx, slog.String("request_id", rid))
			}
			r = r.WithContext(ctx)

			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			if sw.status == 0 {
				sw.status = http.StatusOK
			}

			lvl := slog.LevelInfo
			switch {
			case sw.status >= http.StatusInternalServerError:
				lvl = slog.LevelError
			case sw.status >= http.StatusBadRequest:
				lvl = slog.LevelWarn
			}

			logctx.From(ctx).LogAttrs(ctx, lvl, "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Duration("dur", time.Since(start)),
				slog.Int("bytes", sw.count),
			)
		})
	}
}
