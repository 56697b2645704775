package graph

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
)

// DefaultScope requests every application permission granted to the app
// registration.
const DefaultScope = "https://graph.microsoft.com/.default"

// AppCredentials identifies a confidential client (daemon) registration.
type AppCredentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scopes       []string // defaults to DefaultScope

	// TokenURL overrides the Azure AD endpoint derived from TenantID.
	// Tests point it at a local server.
	TokenURL string
}

// AccessToken is a bearer credential and the time it stops being valid.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// ClientCredentials acquires app-only tokens with the OAuth2 client
// credentials grant. Tokens are reused until shortly before expiry;
// failures are not cached, so the next call tries again.
type ClientCredentials struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

// NewClientCredentials builds a token provider for the given app. ctx is
// bound to the underlying token source and must outlive it; httpClient
// (optional) carries the token requests.
func NewClientCredentials(
	ctx context.Context,
	creds AppCredentials,
	httpClient *http.Client,
	logger *slog.Logger,
) *ClientCredentials {
	if logger == nil {
		logger = slog.Default()
	}

	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}

	tokenURL := creds.TokenURL
	if tokenURL == "" {
		tokenURL = microsoft.AzureADEndpoint(creds.TenantID).TokenURL
	}

	cfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	return &ClientCredentials{src: cfg.TokenSource(ctx), logger: logger}
}

// Acquire returns a valid access token, fetching a new one when the
// cached token is missing or about to expire.
func (c *ClientCredentials) Acquire() (AccessToken, error) {
	t, err := c.src.Token()
	if err != nil {
		c.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return AccessToken{}, fmt.Errorf("%w: %w", ErrAuth, err)
	}

	c.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return AccessToken{Value: t.AccessToken, ExpiresAt: t.Expiry}, nil
}

// Token implements TokenSource.
func (c *ClientCredentials) Token() (string, error) {
	t, err := c.Acquire()
	if err != nil {
		return "", err
	}

	return t.Value, nil
}
