package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-restbind/core"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/google"
)

type ClientCredentialsConfig struct {
	ClientID       string
	ClientSecret   string
	TokenURL       string
	Scopes         []string
	EndpointParams map[string][]string
	// Client overrides the HTTP client used against the token endpoint.
	Client *http.Client
}

// ClientCredentialsFetcher obtains bearer tokens with the OAuth2 client
// credentials grant. Each Fetch requests a new token; the session cache owns
// reuse and renewal.
type ClientCredentialsFetcher struct {
	config clientcredentials.Config
	client *http.Client
}

func NewClientCredentialsFetcher(cfg ClientCredentialsConfig) (*ClientCredentialsFetcher, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, fmt.Errorf("auth: oauth2 client credentials client_id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("auth: oauth2 client credentials client_secret is required")
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		return nil, fmt.Errorf("auth: oauth2 client credentials token_url is required")
	}
	return &ClientCredentialsFetcher{
		config: clientcredentials.Config{
			ClientID:       clientID,
			ClientSecret:   strings.TrimSpace(cfg.ClientSecret),
			TokenURL:       tokenURL,
			Scopes:         normalizeValues(cfg.Scopes),
			EndpointParams: cfg.EndpointParams,
		},
		client: cfg.Client,
	}, nil
}

func (f *ClientCredentialsFetcher) Fetch(ctx context.Context) (core.FetchedCredential, error) {
	if f == nil {
		return core.FetchedCredential{}, fmt.Errorf("auth: oauth2 client credentials fetcher is nil")
	}
	if f.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	}
	token, err := f.config.Token(ctx)
	if err != nil {
		return core.FetchedCredential{}, tokenEndpointError(err, "oauth2_client_credentials")
	}
	return fromOAuth2Token(token), nil
}

// GoogleFetcher obtains access tokens from a Google credentials JSON
// document (service account or authorized user).
type GoogleFetcher struct {
	source oauth2.TokenSource
}

func NewGoogleFetcher(ctx context.Context, credentialsJSON []byte, scopes ...string) (*GoogleFetcher, error) {
	if len(credentialsJSON) == 0 {
		return nil, fmt.Errorf("auth: google credentials json is required")
	}
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, normalizeValues(scopes)...)
	if err != nil {
		return nil, fmt.Errorf("auth: parse google credentials: %w", err)
	}
	return &GoogleFetcher{source: creds.TokenSource}, nil
}

// NewTokenSourceFetcher adapts any oauth2.TokenSource.
func NewTokenSourceFetcher(source oauth2.TokenSource) *GoogleFetcher {
	return &GoogleFetcher{source: source}
}

func (f *GoogleFetcher) Fetch(context.Context) (core.FetchedCredential, error) {
	if f == nil || f.source == nil {
		return core.FetchedCredential{}, fmt.Errorf("auth: token source is not configured")
	}
	token, err := f.source.Token()
	if err != nil {
		return core.FetchedCredential{}, tokenEndpointError(err, "google")
	}
	return fromOAuth2Token(token), nil
}

func fromOAuth2Token(token *oauth2.Token) core.FetchedCredential {
	if token == nil {
		return core.FetchedCredential{}
	}
	attributes := map[string]string{}
	if tokenType := strings.TrimSpace(token.TokenType); tokenType != "" {
		attributes["token_type"] = tokenType
	}
	fetched := core.FetchedCredential{
		Credential: core.Credential{
			Token:      token.AccessToken,
			Attributes: attributes,
		},
		ExpiresAt: token.Expiry.UTC(),
	}
	if token.Expiry.IsZero() {
		fetched.ExpiresAt = token.Expiry
		if exp, ok := JWTExpiry(token.AccessToken); ok {
			fetched.ExpiresAt = exp
		}
	}
	return fetched
}

var (
	_ core.CredentialFetcher = (*ClientCredentialsFetcher)(nil)
	_ core.CredentialFetcher = (*GoogleFetcher)(nil)
)
