package domain

import "time"

// User is the profile returned by the backend on login/register and cached
// client side next to the tokens.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Session is the authenticated identity of a client. A non-empty AccessToken
// always comes with a non-empty RefreshToken.
type Session struct {
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResult is the login/register reply: profile plus a fresh token pair.
type AuthResult struct {
	User
	TokenPair
}

// IssuedToken is a signed token together with its expiry, as minted by the backend.
type IssuedToken struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// RefreshToken is the backend's record of an issued refresh token. Tokens
// are single use: RevokedAt is set when the token is exchanged.
type RefreshToken struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Account is the backend's stored user, including the password hash.
type Account struct {
	User
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal is the identity carried by a validated access token.
type Principal struct {
	UserID   int64
	Username string
}
