// redact маскирует чувствительные данные перед записью в лог:
// e-mail, токены и внешние идентификаторы пользователя.
package redact

import "strings"

// Email оставляет первые две руны локальной части и домен.
// Строка без ровно одного '@' маскируется целиком.
//
//	"foobar@example.com" -> "fo***@example.com"
//	"ab@ex.com"          -> "***@ex.com"
//	"no-at"              -> "***"
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := []rune(s[:i]), s[i+1:]

	if len(local) <= 2 {
		return "***@" + domain
	}

	return string(local[:2]) + "***@" + domain
}

// Token заменяет токен заглушкой. Пустой токен отмечается отдельно,
// чтобы в логах отличать «не передан» от «передан».
func Token(raw string) string {
	if raw == "" {
		return "[EMPTY_TOKEN]"
	}

	return "[REDACTED_TOKEN]"
}

// Subject оставляет последние четыре символа внешнего идентификатора.
func Subject(sub string) string {
	r := []rune(sub)
	if len(r) <= 4 {
		return "***"
	}

	return "***" + string(r[len(r)-4:])
}
