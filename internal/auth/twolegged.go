package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const tokenPath = "/authentication/v2/token"

// ErrAuthFailure is returned when the credential exchange is rejected or fails.
var ErrAuthFailure = errors.New("authentication failed")

// DefaultScopes grants bucket and data access plus full automation code access.
var DefaultScopes = []string{
	"bucket:read",
	"bucket:create",
	"data:read",
	"data:write",
	"data:create",
	"code:all",
}

// TwoLegged exchanges fixed client credentials for an application token.
// Every call hits the token endpoint; caching is left to Cache.
type TwoLegged struct {
	httpClient *http.Client
	config     clientcredentials.Config
	logger     zerolog.Logger
}

func NewTwoLegged(httpClient *http.Client, baseURL, clientID, clientSecret string, scopes []string, logger zerolog.Logger) *TwoLegged {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &TwoLegged{
		httpClient: httpClient,
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     strings.TrimRight(baseURL, "/") + tokenPath,
			Scopes:       scopes,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

func (c *TwoLegged) Exchange(ctx context.Context) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.config.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			c.logger.Error().Int("status", re.Response.StatusCode).Msg("token request rejected")
			return Token{}, errors.Wrapf(ErrAuthFailure, "status %d: %s", re.Response.StatusCode, strings.TrimSpace(string(re.Body)))
		}
		c.logger.Error().Err(err).Msg("token request failed")
		return Token{}, errors.Wrapf(ErrAuthFailure, "token request: %v", err)
	}

	expiresAt, err := expiry(tok)
	if err != nil {
		return Token{}, err
	}
	c.logger.Debug().Time("expires_at", expiresAt).Msg("obtained access token")

	return Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   expiresAt,
	}, nil
}

// expiry prefers expires_in and falls back to the exp claim of the token.
func expiry(tok *oauth2.Token) (time.Time, error) {
	if !tok.Expiry.IsZero() {
		return tok.Expiry, nil
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err != nil {
		return time.Time{}, errors.Wrapf(ErrAuthFailure, "token has no expiry: %v", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.Wrap(ErrAuthFailure, "token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}
