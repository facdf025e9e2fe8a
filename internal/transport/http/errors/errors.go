// errors переводит ошибки сервисного слоя в HTTP-ответы.
//
// Клиент получает стабильный code, безопасное message и request_id.
// Причина отказа в аутентификации наружу не раскрывается: любой 401
// несёт одно и то же сообщение.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/go-goal-tracker/internal/service"
)

// Нестандартный код "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// HeaderRequestID — заголовок корреляции запроса.
const HeaderRequestID = "X-Request-Id"

// ErrBadRequest — тело запроса не разобрано (битый JSON, лишние поля, пустое тело).
var ErrBadRequest = stderrors.New("malformed request body")

// APIError — единый формат ошибки для клиента.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект ответа.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP возвращает HTTP-статус и тело для ошибки.
//
// Порядок важен: истечение/отмена контекста проверяются раньше вида ошибки,
// так как сервис оборачивает их в ErrUnexpected.
// err == nil считается ошибкой вызова и даёт 500.
func ToHTTP(err error) (int, ErrorResponse) {
	switch {
	case err == nil:
		return internal()
	case stderrors.Is(err, context.DeadlineExceeded):
		return respond(http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded")
	case stderrors.Is(err, context.Canceled):
		return respond(StatusClientClosedRequest, "canceled", "canceled")
	case stderrors.Is(err, ErrBadRequest):
		return respond(http.StatusBadRequest, "invalid_argument", "malformed request body")
	}

	switch service.KindOf(err) {
	case service.ErrValidation:
		msg := "invalid argument"
		var se *service.Error
		if stderrors.As(err, &se) && se.Field != "" {
			msg += ": " + se.Field
		}
		return respond(http.StatusBadRequest, "invalid_argument", msg)
	case service.ErrUnauthorized:
		return respond(http.StatusUnauthorized, "unauthenticated", "invalid or expired credentials")
	default:
		return internal()
	}
}

// WriteError пишет ответ об ошибке и добавляет request_id из заголовка запроса.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get(HeaderRequestID); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func respond(status int, code, msg string) (int, ErrorResponse) {
	return status, ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

func internal() (int, ErrorResponse) {
	return respond(http.StatusInternalServerError, "internal", "internal error")
}
