package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	apierrors "github.com/pribylovaa/go-goal-tracker/internal/transport/http/errors"
)

// maxRequestIDLen — длиннее клиентский id не принимаем и генерируем свой.
const maxRequestIDLen = 128

// RequestID обеспечивает наличие X-Request-Id: берёт клиентский или
// генерирует 32 hex-символа. id попадает в ответ, в заголовок запроса
// (его читает errors.WriteError) и в контекст.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(apierrors.HeaderRequestID)
			if id == "" || len(id) > maxRequestIDLen {
				id = genID()
				r.Header.Set(apierrors.HeaderRequestID, id)
			}
			w.Header().Set(apierrors.HeaderRequestID, id)

			ctx := context.WithValue(r.Context(), ctxRequestID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func genID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
