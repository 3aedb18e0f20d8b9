package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-restbind/core"
)

const defaultLoginResponseLimit int64 = 1 << 20

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// LoginResponse is the raw reply of a login endpoint handed to a decoder.
type LoginResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// LoginFetcher exchanges username/password style credentials for a session
// token by calling a provider login endpoint. Provider packages supply the
// request builder and the response decoder.
type LoginFetcher struct {
	Client  HTTPDoer
	Request func(ctx context.Context) (*http.Request, error)
	Decode  func(resp LoginResponse) (core.FetchedCredential, error)
	// Message extracts a provider message from a rejected login.
	Message func(resp LoginResponse) string
}

func (f *LoginFetcher) Fetch(ctx context.Context) (core.FetchedCredential, error) {
	if f == nil || f.Request == nil || f.Decode == nil {
		return core.FetchedCredential{}, fmt.Errorf("auth: login fetcher is not configured")
	}
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	httpReq, err := f.Request(ctx)
	if err != nil {
		return core.FetchedCredential{}, fmt.Errorf("auth: build login request: %w", err)
	}
	httpRes, err := client.Do(httpReq)
	if err != nil {
		return core.FetchedCredential{}, tokenEndpointError(err, "login")
	}
	defer httpRes.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, defaultLoginResponseLimit))
	if err != nil {
		return core.FetchedCredential{}, tokenEndpointError(err, "login")
	}
	resp := LoginResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    httpRes.Header.Clone(),
		Body:       payload,
	}
	if httpRes.StatusCode < 200 || httpRes.StatusCode > 299 {
		message := ""
		if f.Message != nil {
			message = strings.TrimSpace(f.Message(resp))
		}
		return core.FetchedCredential{}, loginRejectedError(httpRes.StatusCode, message)
	}
	fetched, err := f.Decode(resp)
	if err != nil {
		return core.FetchedCredential{}, malformedLoginError(err, "decode login response")
	}
	if strings.TrimSpace(fetched.Credential.Token) == "" {
		return core.FetchedCredential{}, malformedLoginError(nil, "login response carried no session token")
	}
	return fetched, nil
}

// SessionCookies joins the name=value pairs of Set-Cookie headers so the
// session can replay them.
func SessionCookies(headers http.Header) string {
	resp := http.Response{Header: headers}
	parts := []string{}
	for _, cookie := range resp.Cookies() {
		parts = append(parts, cookie.Name+"="+cookie.Value)
	}
	return strings.Join(parts, "; ")
}

var _ core.CredentialFetcher = (*LoginFetcher)(nil)
