package handlers

import "github.com/pribylovaa/go-goal-tracker/internal/models"

type signInRequest struct {
	IdentityToken     string           `json:"identityToken"`
	AuthorizationCode string           `json:"authorizationCode"`
	User              *assertionUserIn `json:"user,omitempty"`
	DeviceID          string           `json:"deviceId,omitempty"`
}

type assertionUserIn struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (in signInRequest) toAssertion() models.Assertion {
	a := models.Assertion{
		IdentityToken:     in.IdentityToken,
		AuthorizationCode: in.AuthorizationCode,
	}
	if in.User != nil {
		a.User = &models.AssertionUser{Email: in.User.Email, Name: in.User.Name}
	}

	return a
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userOut struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

type tokensOut struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type authResponse struct {
	User   userOut   `json:"user"`
	Tokens tokensOut `json:"tokens"`
}

func authFromModel(res *models.AuthResult) authResponse {
	return authResponse{
		User: userOut{
			ID:          res.User.ID.String(),
			Email:       res.User.Email,
			DisplayName: res.User.DisplayName,
		},
		Tokens: tokensOut{
			AccessToken:  res.Tokens.AccessToken,
			RefreshToken: res.Tokens.RefreshToken,
			ExpiresIn:    res.Tokens.ExpiresIn,
		},
	}
}

type logoutResponse struct {
	Success bool `json:"success"`
}

type logoutAllResponse struct {
	DevicesLoggedOut int64 `json:"devicesLoggedOut"`
}

type meResponse struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	SessionID string `json:"sessionId"`
	ExpiresAt int64  `json:"expiresAt"`
}
