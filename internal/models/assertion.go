package models

// Assertion — входящий пакет внешнего провайдера идентичности (Sign in with Apple).
//
// User приходит только при первой авторизации у провайдера и не подписан,
// поэтому из него берётся лишь отображаемое имя.
type Assertion struct {
	IdentityToken     string
	AuthorizationCode string
	User              *AssertionUser
}

// AssertionUser — данные пользователя, переданные клиентом вместе с assertion.
type AssertionUser struct {
	Email string
	Name  string
}

// Identity — проверенная внешняя идентичность.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
}
