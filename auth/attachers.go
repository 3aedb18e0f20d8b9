package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-restbind/core"
)

const (
	HeaderAuthToken       = "X-Auth-Token"
	AttributeCookie       = "cookie"
	DefaultSessionKeyName = "sessionkey"
)

// HeaderTokenAttacher writes Credential.Token into a single request header,
// optionally prefixed ("Bearer").
type HeaderTokenAttacher struct {
	Header string
	Prefix string
}

func NewBearerAttacher() HeaderTokenAttacher {
	return HeaderTokenAttacher{Header: "Authorization", Prefix: "Bearer"}
}

// NewAuthTokenAttacher sends the token as X-Auth-Token, the OpenStack style.
func NewAuthTokenAttacher() HeaderTokenAttacher {
	return HeaderTokenAttacher{Header: HeaderAuthToken}
}

func (a HeaderTokenAttacher) Attach(_ context.Context, req core.BoundRequest, cred core.Credential) (core.BoundRequest, error) {
	header := firstNonEmpty(a.Header, "Authorization")
	token := strings.TrimSpace(cred.Token)
	if token == "" {
		return req, missingCredentialError("header token attacher", "token")
	}
	out := prepare(req)
	if prefix := strings.TrimSpace(a.Prefix); prefix != "" {
		token = prefix + " " + token
	}
	out.Headers.Set(header, token)
	return out, nil
}

// QueryTokenAttacher sends Credential.Token as a query parameter and replays
// any session cookie captured at login.
type QueryTokenAttacher struct {
	Param string
}

func (a QueryTokenAttacher) Attach(_ context.Context, req core.BoundRequest, cred core.Credential) (core.BoundRequest, error) {
	param := firstNonEmpty(a.Param, DefaultSessionKeyName)
	token := strings.TrimSpace(cred.Token)
	if token == "" {
		return req, missingCredentialError("query token attacher", "token")
	}
	out := prepare(req)
	if out.Query == nil {
		out.Query = url.Values{}
	}
	out.Query.Set(param, token)
	if cookie := readAttribute(cred, AttributeCookie); cookie != "" {
		out.Headers.Set("Cookie", cookie)
	}
	return out, nil
}

// BasicAuthAttacher sends Token:Secret as HTTP basic credentials.
type BasicAuthAttacher struct{}

func (BasicAuthAttacher) Attach(_ context.Context, req core.BoundRequest, cred core.Credential) (core.BoundRequest, error) {
	username := strings.TrimSpace(cred.Token)
	if username == "" {
		return req, missingCredentialError("basic auth attacher", "username")
	}
	if strings.TrimSpace(cred.Secret) == "" {
		return req, missingCredentialError("basic auth attacher", "secret")
	}
	out := prepare(req)
	encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + cred.Secret))
	out.Headers.Set("Authorization", "Basic "+encoded)
	return out, nil
}

// ChainAttacher applies attachers in order.
type ChainAttacher []core.CredentialAttacher

func (c ChainAttacher) Attach(ctx context.Context, req core.BoundRequest, cred core.Credential) (core.BoundRequest, error) {
	out := req
	for _, attacher := range c {
		if attacher == nil {
			continue
		}
		next, err := attacher.Attach(ctx, out, cred)
		if err != nil {
			return req, err
		}
		out = next
	}
	return out, nil
}

// StaticHeadersAttacher adds fixed headers such as an API version selector.
type StaticHeadersAttacher http.Header

func (s StaticHeadersAttacher) Attach(_ context.Context, req core.BoundRequest, _ core.Credential) (core.BoundRequest, error) {
	out := prepare(req)
	for key, values := range s {
		out.Headers.Del(key)
		for _, value := range values {
			out.Headers.Add(key, value)
		}
	}
	return out, nil
}
