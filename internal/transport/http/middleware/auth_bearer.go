package middleware

import (
	"context"
	"net/http"
	"strings"
)

// AuthBearer кладёт токен из "Authorization: Bearer <token>" в контекст.
// Проверку токена выполняет сервис; здесь только извлечение.
func AuthBearer() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "bearer "

			auth := r.Header.Get("Authorization")
			if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
				if token := strings.TrimSpace(auth[len(prefix):]); token != "" {
					r = r.WithContext(context.WithValue(r.Context(), ctxBearer, token))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
