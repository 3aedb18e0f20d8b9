package core

import (
	stderrors "errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestDefaultErrorMapper_AssignsStableCodes(t *testing.T) {
	mapped := defaultErrorMapper(unknownOperationError("servers.delete"))
	if mapped.TextCode != TextCodeUnknownOperation || mapped.Code != http.StatusNotFound {
		t.Fatalf("expected unknown operation envelope, got %q/%d", mapped.TextCode, mapped.Code)
	}

	mapped = defaultErrorMapper(goerrors.New("no code", goerrors.CategoryAuthz))
	if mapped.TextCode != TextCodeAuthUnavailable || mapped.Code != http.StatusForbidden {
		t.Fatalf("expected authz defaults, got %q/%d", mapped.TextCode, mapped.Code)
	}

	mapped = defaultErrorMapper(stderrors.New("plain failure"))
	if mapped == nil || mapped.TextCode == "" || mapped.Code == 0 {
		t.Fatalf("expected plain errors to receive an envelope, got %+v", mapped)
	}
}

func TestOperationFailure_EnvelopeByClassification(t *testing.T) {
	cases := []struct {
		class    ErrorClassification
		category goerrors.Category
		textCode string
	}{
		{ErrorClassification{Kind: ClassificationClientError, StatusCode: 404, Message: "gone"}, goerrors.CategoryNotFound, TextCodeClientError},
		{ErrorClassification{Kind: ClassificationClientError, StatusCode: 429}, goerrors.CategoryRateLimit, TextCodeClientError},
		{ErrorClassification{Kind: ClassificationServerError, StatusCode: 500}, goerrors.CategoryExternal, TextCodeServerError},
		{ErrorClassification{Kind: ClassificationRedirect, StatusCode: 302}, goerrors.CategoryExternal, TextCodeRedirect},
		{ErrorClassification{Kind: ClassificationTransient, Code: string(DispatchTimeout)}, goerrors.CategoryExternal, TextCodeTimeout},
		{ErrorClassification{Kind: ClassificationTransient, Code: string(DispatchConnectError)}, goerrors.CategoryExternal, TextCodeConnectError},
		{ErrorClassification{Kind: ClassificationFatal, StatusCode: 101}, goerrors.CategoryInternal, TextCodeFatal},
	}
	for _, tc := range cases {
		err := operationFailure(&OperationError{OperationID: "op", Classification: tc.class, Attempts: 1}, false)
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("expected go-errors envelope for %s", tc.class.Kind)
		}
		if rich.Category != tc.category || rich.TextCode != tc.textCode {
			t.Fatalf("expected %s/%s for %+v, got %s/%s", tc.category, tc.textCode, tc.class, rich.Category, rich.TextCode)
		}
		class, ok := ClassificationOf(err)
		if !ok || class != tc.class {
			t.Fatalf("expected classification to be recoverable, got %+v", class)
		}
	}
}

func TestOperationFailure_AuthUnavailableOverridesEnvelope(t *testing.T) {
	err := operationFailure(&OperationError{
		OperationID:    "servers.get",
		Classification: ErrorClassification{Kind: ClassificationAuthExpired, StatusCode: 401},
		Attempts:       2,
		AuthRetried:    true,
	}, true)
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope")
	}
	if rich.TextCode != TextCodeAuthUnavailable || rich.Category != goerrors.CategoryAuth {
		t.Fatalf("expected auth unavailable envelope, got %s/%s", rich.Category, rich.TextCode)
	}
	if rich.Metadata["auth_retried"] != true || rich.Metadata["attempts"] != 2 {
		t.Fatalf("unexpected metadata %#v", rich.Metadata)
	}
}

func TestEngineMapError_UsesCustomMapper(t *testing.T) {
	sentinel := stderrors.New("sentinel")
	engine, err := NewEngine(DefaultConfig(),
		WithTransport(&scriptedTransport{}),
		WithErrorMapper(func(error) *goerrors.Error {
			return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
		}),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	mapped := engine.MapError(stderrors.New("anything"))
	if mapped == nil || mapped.Message != "mapped" {
		t.Fatalf("expected custom mapper output, got %+v", mapped)
	}
}

func TestOperationFailure_KeepsOperationErrorBehindEnvelopedCause(t *testing.T) {
	adapterErr := goerrors.New("transport: execute http request", goerrors.CategoryExternal).
		WithTextCode("RESTBIND_TRANSPORT_UNREACHABLE")
	opErr := &OperationError{
		OperationID:    "servers.get",
		Classification: ErrorClassification{Kind: ClassificationTransient, Code: string(DispatchTimeout)},
		Attempts:       3,
		Cause:          &DispatchError{Kind: DispatchTimeout, OperationID: "servers.get", Cause: adapterErr},
	}

	err := operationFailure(opErr, false)
	class, ok := ClassificationOf(err)
	if !ok || class.Kind != ClassificationTransient {
		t.Fatalf("expected transient classification in chain, got %+v ok=%v", class, ok)
	}
	var got *OperationError
	if !stderrors.As(err, &got) || got.Attempts != 3 {
		t.Fatalf("expected operation error with 3 attempts, got %+v", got)
	}
	if !IsTextCode(err, TextCodeTimeout) {
		t.Fatalf("expected outer envelope text code %q, got %v", TextCodeTimeout, err)
	}
}

func TestAuthUnavailableError_OverridesEnvelopedSourceCategory(t *testing.T) {
	source := goerrors.New("auth: token request failed", goerrors.CategoryExternal).WithTextCode("AUTH_TOKEN_ENDPOINT")

	var rich *goerrors.Error
	if !goerrors.As(authUnavailableError(source, nil), &rich) {
		t.Fatalf("expected envelope")
	}
	if rich.Category != goerrors.CategoryAuth || rich.TextCode != TextCodeAuthUnavailable {
		t.Fatalf("expected auth envelope, got %v/%q", rich.Category, rich.TextCode)
	}
	if rich.Source != source {
		t.Fatalf("expected fetcher error kept as source")
	}
}

func TestWrapBindingError_OverridesEnvelopedSourceCategory(t *testing.T) {
	source := goerrors.New("encoder: unsupported value", goerrors.CategoryInternal)

	var rich *goerrors.Error
	if !goerrors.As(wrapBindingError(source, "server.create"), &rich) {
		t.Fatalf("expected envelope")
	}
	if rich.Category != goerrors.CategoryBadInput || rich.TextCode != TextCodeBindingError {
		t.Fatalf("expected bad input binding envelope, got %v/%q", rich.Category, rich.TextCode)
	}
}
