package transport

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeBadRequest    = "RESTBIND_TRANSPORT_BAD_REQUEST"
	TextCodeUnreachable   = "RESTBIND_TRANSPORT_UNREACHABLE"
	TextCodeResponseLimit = "RESTBIND_TRANSPORT_RESPONSE_LIMIT"
	TextCodeInternal      = "RESTBIND_TRANSPORT_INTERNAL"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return TextCodeBadRequest
	case goerrors.CategoryOperation:
		return TextCodeResponseLimit
	case goerrors.CategoryExternal:
		return TextCodeUnreachable
	default:
		return TextCodeInternal
	}
}
