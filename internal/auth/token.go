package auth

import (
	"context"
	"time"
)

// expirySkew treats a token as expired slightly before the platform does so a
// request started with it does not race the deadline.
const expirySkew = 30 * time.Second

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be used at now.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Add(expirySkew).Before(t.ExpiresAt)
}

// Bearer returns the Authorization header value for the token.
func (t Token) Bearer() string {
	return "Bearer " + t.AccessToken
}

// Source hands out a currently valid bearer token.
type Source interface {
	Token(ctx context.Context) (Token, error)
}

// Exchanger performs a fresh credential exchange with the identity provider.
type Exchanger interface {
	Exchange(ctx context.Context) (Token, error)
}
