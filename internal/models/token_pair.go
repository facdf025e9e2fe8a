package models

// TokenPair — пара токенов, выдаваемая при входе и ротации.
//
// Описание:
//   - AccessToken — короткоживущий JWT для доступа к API;
//   - RefreshToken — долгоживущий JWT, одноразовый: каждая ротация делает его недействительным;
//   - ExpiresIn — время жизни access-токена в секундах.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// AuthResult — результат входа или ротации.
type AuthResult struct {
	User   *User
	Tokens *TokenPair
}
