package cloudstack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-restbind/auth"
	"github.com/goliatone/go-restbind/core"
)

type loginResponse struct {
	LoginResponse struct {
		SessionKey string      `json:"sessionkey"`
		Timeout    json.Number `json:"timeout"`
		UserID     string      `json:"userid"`
		DomainID   string      `json:"domainid"`
	} `json:"loginresponse"`
}

// NewLoginFetcher posts the login command and keeps the session key together
// with the JSESSIONID cookie CloudStack binds it to.
func NewLoginFetcher(cfg Config) *auth.LoginFetcher {
	now := func() time.Time { return time.Now().UTC() }
	return &auth.LoginFetcher{
		Client: cfg.HTTPClient,
		Request: func(ctx context.Context) (*http.Request, error) {
			base := strings.TrimRight(strings.TrimSpace(firstNonEmpty(cfg.BaseURL, cfg.Engine.BaseURL)), "/")
			if base == "" {
				return nil, fmt.Errorf("cloudstack: base url is required to log in")
			}
			form := url.Values{}
			form.Set("command", "login")
			form.Set("username", strings.TrimSpace(cfg.Username))
			form.Set("password", cfg.Password)
			if domain := strings.TrimSpace(cfg.Domain); domain != "" {
				form.Set("domain", domain)
			}
			form.Set("response", "json")
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+APIPath, strings.NewReader(form.Encode()))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", core.ContentTypeForm)
			return req, nil
		},
		Decode: func(resp auth.LoginResponse) (core.FetchedCredential, error) {
			return decodeLogin(resp, now())
		},
		Message: func(resp auth.LoginResponse) string {
			return ErrorParser{}.Parse(core.TransportResponse{StatusCode: resp.StatusCode, Body: resp.Body}).Text
		},
	}
}

func decodeLogin(resp auth.LoginResponse, now time.Time) (core.FetchedCredential, error) {
	var decoded loginResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return core.FetchedCredential{}, fmt.Errorf("cloudstack: decode login response: %w", err)
	}
	login := decoded.LoginResponse
	fetched := core.FetchedCredential{
		Credential: core.Credential{
			Token:      strings.TrimSpace(login.SessionKey),
			Attributes: map[string]string{},
		},
	}
	if cookie := auth.SessionCookies(resp.Headers); cookie != "" {
		fetched.Credential.Attributes[auth.AttributeCookie] = cookie
	}
	if login.UserID != "" {
		fetched.Credential.Attributes["user_id"] = login.UserID
	}
	if timeout := strings.TrimSpace(login.Timeout.String()); timeout != "" {
		seconds, err := strconv.Atoi(timeout)
		if err != nil {
			return core.FetchedCredential{}, fmt.Errorf("cloudstack: invalid session timeout %q", timeout)
		}
		if seconds > 0 {
			fetched.ExpiresAt = now.Add(time.Duration(seconds) * time.Second)
		}
	}
	return fetched, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
