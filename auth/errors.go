package auth

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeMissingCredential = "RESTBIND_AUTH_MISSING_CREDENTIAL"
	TextCodeLoginRejected     = "RESTBIND_AUTH_LOGIN_REJECTED"
	TextCodeTokenEndpoint     = "RESTBIND_AUTH_TOKEN_ENDPOINT"
	TextCodeMalformedLogin    = "RESTBIND_AUTH_MALFORMED_RESPONSE"
)

func missingCredentialError(attacher string, field string) error {
	return goerrors.New(fmt.Sprintf("auth: %s requires %s", attacher, field), goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(TextCodeMissingCredential).
		WithMetadata(map[string]any{"attacher": attacher, "field": field})
}

func loginRejectedError(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return goerrors.New("auth: login rejected: "+message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(TextCodeLoginRejected).
		WithMetadata(map[string]any{"status_code": status})
}

func tokenEndpointError(source error, fetcher string) error {
	return goerrors.Wrap(source, goerrors.CategoryExternal, "auth: token request failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(TextCodeTokenEndpoint).
		WithMetadata(map[string]any{"fetcher": fetcher})
}

func malformedLoginError(source error, message string) error {
	if source == nil {
		return goerrors.New("auth: "+message, goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeMalformedLogin)
	}
	return goerrors.Wrap(source, goerrors.CategoryExternal, "auth: "+message).
		WithCode(http.StatusBadGateway).
		WithTextCode(TextCodeMalformedLogin)
}
