package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeUnknownOperation = "RESTBIND_UNKNOWN_OPERATION"
	TextCodeBindingError     = "RESTBIND_BINDING_ERROR"
	TextCodeAuthUnavailable  = "RESTBIND_AUTH_UNAVAILABLE"
	TextCodeConnectError     = "RESTBIND_CONNECT_ERROR"
	TextCodeTimeout          = "RESTBIND_TIMEOUT"
	TextCodeRedirect         = "RESTBIND_REDIRECT"
	TextCodeClientError      = "RESTBIND_CLIENT_ERROR"
	TextCodeServerError      = "RESTBIND_SERVER_ERROR"
	TextCodeAuthExpired      = "RESTBIND_AUTH_EXPIRED"
	TextCodeTransient        = "RESTBIND_TRANSIENT"
	TextCodeFatal            = "RESTBIND_FATAL"
	TextCodeBadInput         = "RESTBIND_BAD_INPUT"
	TextCodeInternal         = "RESTBIND_INTERNAL_ERROR"
)

type Classification string

const (
	ClassificationRedirect    Classification = "redirect"
	ClassificationClientError Classification = "client_error"
	ClassificationServerError Classification = "server_error"
	ClassificationAuthExpired Classification = "auth_expired"
	ClassificationTransient   Classification = "transient"
	ClassificationFatal       Classification = "fatal"
)

type ErrorClassification struct {
	Kind       Classification
	StatusCode int
	Code       string
	Message    string
}

func (c ErrorClassification) String() string {
	if c.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", c.Kind, c.StatusCode, c.Message)
	}
	return fmt.Sprintf("%s: %s", c.Kind, c.Message)
}

type DispatchErrorKind string

const (
	DispatchConnectError DispatchErrorKind = "connect_error"
	DispatchTimeout      DispatchErrorKind = "timeout"
)

// DispatchError is a transport-level failure: no response was received.
type DispatchError struct {
	Kind        DispatchErrorKind
	OperationID string
	URL         string
	Cause       error
}

func (e *DispatchError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("restbind: %s dispatching %s", e.Kind, e.OperationID)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// OperationError is the terminal failure of one logical call.
type OperationError struct {
	OperationID    string
	Classification ErrorClassification
	Attempts       int
	History        []ErrorClassification
	AuthRetried    bool
	Cause          error
}

func (e *OperationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("restbind: operation %s failed after %d attempt(s): %s",
		e.OperationID, e.Attempts, e.Classification)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ClassificationOf returns the final classification carried by err, if any.
func ClassificationOf(err error) (ErrorClassification, bool) {
	var opErr *OperationError
	if errors.As(err, &opErr) && opErr != nil {
		return opErr.Classification, true
	}
	return ErrorClassification{}, false
}

func IsTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		return rich.TextCode == code
	}
	return false
}

func unknownOperationError(id TemplateID) error {
	return goerrors.New(fmt.Sprintf("restbind: unknown operation %q", id), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(TextCodeUnknownOperation).
		WithMetadata(map[string]any{"operation_id": string(id)})
}

func bindingError(operationID string, field string, message string) error {
	return goerrors.NewValidation("restbind: binding failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeBindingError).
		WithMetadata(map[string]any{"operation_id": operationID})
}

func wrapBindingError(source error, operationID string) error {
	if source == nil {
		return nil
	}
	return wrapEnvelope(source, goerrors.CategoryBadInput, "restbind: payload encoder rejected arguments").
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeBindingError).
		WithMetadata(map[string]any{"operation_id": operationID})
}

// wrapEnvelope builds a new envelope with source as its cause. goerrors.Wrap
// returns a copy of the first envelope already in source's chain instead, which
// would drop OperationError and the category chosen here.
func wrapEnvelope(source error, category goerrors.Category, message string) *goerrors.Error {
	err := goerrors.New(message, category)
	err.Source = source
	return err
}

func badInputError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func authUnavailableError(source error, metadata map[string]any) error {
	if source == nil {
		source = fmt.Errorf("credential fetch failed")
	}
	err := wrapEnvelope(source, goerrors.CategoryAuth, "restbind: credential unavailable").
		WithCode(http.StatusUnauthorized).
		WithTextCode(TextCodeAuthUnavailable)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// operationFailure wraps a terminal OperationError in the error envelope.
func operationFailure(opErr *OperationError, authUnavailable bool) error {
	if opErr == nil {
		return nil
	}
	class := opErr.Classification
	category, code, textCode := classificationEnvelope(class)
	if authUnavailable {
		category, code, textCode = goerrors.CategoryAuth, http.StatusUnauthorized, TextCodeAuthUnavailable
	}
	message := strings.TrimSpace(class.Message)
	if message == "" {
		message = string(class.Kind)
	}
	metadata := map[string]any{
		"operation_id":   opErr.OperationID,
		"classification": string(class.Kind),
		"status_code":    class.StatusCode,
		"attempts":       opErr.Attempts,
		"auth_retried":   opErr.AuthRetried,
	}
	if class.Code != "" {
		metadata["provider_code"] = class.Code
	}
	return wrapEnvelope(opErr, category, "restbind: "+message).
		WithCode(code).
		WithTextCode(textCode).
		WithMetadata(metadata)
}

func classificationEnvelope(class ErrorClassification) (goerrors.Category, int, string) {
	status := class.StatusCode
	switch class.Kind {
	case ClassificationRedirect:
		return goerrors.CategoryExternal, statusOr(status, http.StatusBadGateway), TextCodeRedirect
	case ClassificationClientError:
		switch status {
		case http.StatusNotFound:
			return goerrors.CategoryNotFound, status, TextCodeClientError
		case http.StatusUnauthorized:
			return goerrors.CategoryAuth, status, TextCodeClientError
		case http.StatusForbidden:
			return goerrors.CategoryAuthz, status, TextCodeClientError
		case http.StatusTooManyRequests:
			return goerrors.CategoryRateLimit, status, TextCodeClientError
		}
		return goerrors.CategoryBadInput, statusOr(status, http.StatusBadRequest), TextCodeClientError
	case ClassificationServerError:
		return goerrors.CategoryExternal, statusOr(status, http.StatusBadGateway), TextCodeServerError
	case ClassificationAuthExpired:
		return goerrors.CategoryAuth, http.StatusUnauthorized, TextCodeAuthExpired
	case ClassificationTransient:
		switch class.Code {
		case string(DispatchTimeout):
			return goerrors.CategoryExternal, http.StatusGatewayTimeout, TextCodeTimeout
		case string(DispatchConnectError):
			return goerrors.CategoryExternal, http.StatusBadGateway, TextCodeConnectError
		}
		return goerrors.CategoryExternal, statusOr(status, http.StatusServiceUnavailable), TextCodeTransient
	default:
		return goerrors.CategoryInternal, http.StatusInternalServerError, TextCodeFatal
	}
}

func statusOr(status int, fallback int) int {
	if status > 0 {
		return status
	}
	return fallback
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureErrorEnvelope(rich)
	}
	return ensureErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = categoryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return TextCodeBadInput
	case goerrors.CategoryNotFound:
		return TextCodeUnknownOperation
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return TextCodeAuthUnavailable
	case goerrors.CategoryExternal:
		return TextCodeServerError
	default:
		return TextCodeInternal
	}
}

func categoryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
