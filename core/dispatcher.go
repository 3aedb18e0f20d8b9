package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type DispatcherConfig struct {
	BaseURL              string
	UserAgent            string
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	Decorators           []RequestDecorator
}

// Dispatcher performs one send of a bound request. It never retries.
type Dispatcher struct {
	transport  TransportAdapter
	attacher   CredentialAttacher
	baseURL    string
	userAgent  string
	timeout    time.Duration
	maxBody    int64
	decorators []RequestDecorator
}

func NewDispatcher(transport TransportAdapter, attacher CredentialAttacher, cfg DispatcherConfig) (*Dispatcher, error) {
	if transport == nil {
		return nil, fmt.Errorf("core: transport adapter is required")
	}
	if attacher == nil {
		attacher = NoCredentialAttacher{}
	}
	decorators := make([]RequestDecorator, 0, len(cfg.Decorators))
	for _, decorator := range cfg.Decorators {
		if decorator != nil {
			decorators = append(decorators, decorator)
		}
	}
	return &Dispatcher{
		transport:  transport,
		attacher:   attacher,
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		userAgent:  strings.TrimSpace(cfg.UserAgent),
		timeout:    cfg.Timeout,
		maxBody:    cfg.MaxResponseBodyBytes,
		decorators: decorators,
	}, nil
}

// Dispatch attaches session's credential to req and sends it. Transport
// failures come back as *DispatchError; a cancelled ctx comes back as is.
func (d *Dispatcher) Dispatch(ctx context.Context, req BoundRequest, session AuthSession) (TransportResponse, error) {
	if d == nil {
		return TransportResponse{}, fmt.Errorf("core: dispatcher is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req = req.Clone()
	req.BaseURL = d.resolveBaseURL(req, session.Credential)
	if req.BaseURL == "" {
		return TransportResponse{}, badInputError(
			"restbind: no endpoint configured for operation",
			map[string]any{"operation_id": req.OperationID},
		)
	}

	for _, decorator := range d.decorators {
		decorated, err := decorator.Decorate(ctx, req)
		if err != nil {
			return TransportResponse{}, wrapEnvelope(err, goerrors.CategoryInternal, "restbind: request decorator failed").
				WithCode(http.StatusInternalServerError).
				WithTextCode(TextCodeInternal).
				WithMetadata(map[string]any{"operation_id": req.OperationID})
		}
		req = decorated
	}

	attached, err := d.attacher.Attach(ctx, req, session.Credential)
	if err != nil {
		return TransportResponse{}, authUnavailableError(err, map[string]any{
			"operation_id": req.OperationID,
			"generation":   session.Generation,
		})
	}

	resp, err := d.transport.Do(ctx, d.transportRequest(attached))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return TransportResponse{}, ctxErr
		}
		if isConfigurationError(err) {
			return TransportResponse{}, err
		}
		kind := DispatchConnectError
		if isTimeout(err) {
			kind = DispatchTimeout
		}
		return TransportResponse{}, &DispatchError{
			Kind:        kind,
			OperationID: attached.OperationID,
			URL:         joinURL(attached.BaseURL, attached.Path),
			Cause:       err,
		}
	}
	if resp.Headers == nil {
		resp.Headers = http.Header{}
	}
	return resp, nil
}

func (d *Dispatcher) resolveBaseURL(req BoundRequest, cred Credential) string {
	for _, candidate := range []string{req.BaseURL, d.baseURL, cred.Endpoint} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	return ""
}

func (d *Dispatcher) transportRequest(req BoundRequest) TransportRequest {
	headers := req.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	if d.userAgent != "" && headers.Get("User-Agent") == "" {
		headers.Set("User-Agent", d.userAgent)
	}
	var body []byte
	if req.Payload != nil {
		body = req.Payload.Body
		if req.Payload.ContentType != "" && headers.Get("Content-Type") == "" {
			headers.Set("Content-Type", req.Payload.ContentType)
		}
	}
	return TransportRequest{
		Method:               req.Method,
		URL:                  joinURL(req.BaseURL, req.Path),
		Query:                cloneValues(req.Query),
		Headers:              headers,
		Body:                 body,
		Timeout:              d.timeout,
		MaxResponseBodyBytes: d.maxBody,
		Metadata: map[string]any{
			"operation_id": req.OperationID,
		},
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isConfigurationError reports transport failures caused by the request
// itself or refused locally by a rate limiter. No retry can fix them.
func isConfigurationError(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return false
	}
	switch rich.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation, goerrors.CategoryInternal, goerrors.CategoryOperation, goerrors.CategoryRateLimit:
		return true
	}
	return false
}

// NoCredentialAttacher sends requests unauthenticated.
type NoCredentialAttacher struct{}

func (NoCredentialAttacher) Attach(_ context.Context, req BoundRequest, _ Credential) (BoundRequest, error) {
	return req, nil
}

var _ CredentialAttacher = NoCredentialAttacher{}
