package cloudservers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-restbind/auth"
	"github.com/goliatone/go-restbind/core"
)

type authRequest struct {
	Credentials struct {
		Username string `json:"username"`
		Key      string `json:"key"`
	} `json:"credentials"`
}

type authResponse struct {
	Auth struct {
		Token struct {
			ID      string `json:"id"`
			Expires string `json:"expires"`
		} `json:"token"`
		ServiceCatalog map[string][]struct {
			PublicURL string `json:"publicURL"`
			Region    string `json:"region"`
		} `json:"serviceCatalog"`
	} `json:"auth"`
}

// NewAuthFetcher logs in with username and API key. The session credential
// carries the token and the public URL of the configured catalog service.
func NewAuthFetcher(cfg Config) *auth.LoginFetcher {
	return &auth.LoginFetcher{
		Client: cfg.HTTPClient,
		Request: func(ctx context.Context) (*http.Request, error) {
			if strings.TrimSpace(cfg.Username) == "" || strings.TrimSpace(cfg.APIKey) == "" {
				return nil, fmt.Errorf("cloudservers: username and api key are required")
			}
			var payload authRequest
			payload.Credentials.Username = strings.TrimSpace(cfg.Username)
			payload.Credentials.Key = strings.TrimSpace(cfg.APIKey)
			body, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.AuthURL, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", core.ContentTypeJSON)
			req.Header.Set("Accept", core.ContentTypeJSON)
			return req, nil
		},
		Decode: func(resp auth.LoginResponse) (core.FetchedCredential, error) {
			return decodeAuthResponse(resp.Body, cfg.ServiceName)
		},
		Message: func(resp auth.LoginResponse) string {
			return parseFaultMessage(resp.Body).Text
		},
	}
}

func decodeAuthResponse(body []byte, serviceName string) (core.FetchedCredential, error) {
	var decoded authResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return core.FetchedCredential{}, fmt.Errorf("cloudservers: decode auth response: %w", err)
	}
	fetched := core.FetchedCredential{
		Credential: core.Credential{Token: strings.TrimSpace(decoded.Auth.Token.ID)},
	}
	if expires := strings.TrimSpace(decoded.Auth.Token.Expires); expires != "" {
		parsed, err := time.Parse(time.RFC3339, expires)
		if err != nil {
			return core.FetchedCredential{}, fmt.Errorf("cloudservers: parse token expiry %q: %w", expires, err)
		}
		fetched.ExpiresAt = parsed.UTC()
	}
	endpoints := decoded.Auth.ServiceCatalog[serviceName]
	if len(endpoints) > 0 {
		fetched.Credential.Endpoint = strings.TrimSpace(endpoints[0].PublicURL)
		if region := strings.TrimSpace(endpoints[0].Region); region != "" {
			fetched.Credential.Attributes = map[string]string{"region": region}
		}
	}
	return fetched, nil
}
