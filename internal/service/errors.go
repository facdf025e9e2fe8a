package service

import "errors"

// Виды ошибок сервиса. Транспорт различает их через errors.Is,
// текст ошибки в классификации не участвует.
var (
	// ErrValidation — отсутствует или некорректен обязательный вход.
	// Транспорт: 400 invalid_argument.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized — любая неудачная проверка учётных данных: токен,
	// сессия, хэш, assertion. Причина наружу не раскрывается.
	// Транспорт: 401 unauthenticated.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnexpected — сбой хранилища или зависимости, не связанный с самими
	// учётными данными. Транспорт: 500 internal.
	ErrUnexpected = errors.New("unexpected error")
)

// Error — ошибка сервиса с тегом вида.
type Error struct {
	Kind  error
	Op    string
	Field string // для ErrValidation
	Err   error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap отдаёт и вид, и причину: errors.Is работает с обоими.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// KindOf возвращает вид ошибки. Ошибки без тега считаются ErrUnexpected.
func KindOf(err error) error {
	if err == nil {
		return nil
	}

	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	return ErrUnexpected
}

func validationError(op, field string) error {
	return &Error{Kind: ErrValidation, Op: op, Field: field}
}

func unauthorized(op string, err error) error {
	return &Error{Kind: ErrUnauthorized, Op: op, Err: err}
}

func unexpected(op string, err error) error {
	return &Error{Kind: ErrUnexpected, Op: op, Err: err}
}

// Причины отказа. Попадают только в логи и цепочку ошибок, клиенту
// транспорт отдаёт одно и то же сообщение.
var (
	errTokenRejected   = errors.New("token rejected")
	errSessionGone     = errors.New("session not found")
	errSessionMismatch = errors.New("session does not belong to token subject")
	errSecretMismatch  = errors.New("refresh secret mismatch")
	errUserGone        = errors.New("user not found")
	errRotated         = errors.New("session already rotated")
	errNoEmail         = errors.New("identity has no verified email")
)
