package core

import (
	"context"
	"net/http"
	"net/url"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type ParamRole string

const (
	ParamRolePath    ParamRole = "path"
	ParamRoleQuery   ParamRole = "query"
	ParamRoleHeader  ParamRole = "header"
	ParamRolePayload ParamRole = "payload-field"
)

// ParamBinding declares how one caller argument reaches the wire. Key is the
// wire name (query key, header name, payload field) and defaults to Name.
type ParamBinding struct {
	Name     string    `json:"name" yaml:"name"`
	Role     ParamRole `json:"role" yaml:"role"`
	Key      string    `json:"key,omitempty" yaml:"key,omitempty"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
}

func (b ParamBinding) WireKey() string {
	if b.Key != "" {
		return b.Key
	}
	return b.Name
}

// Operation is the declarative description registered into a TemplateStore.
type Operation struct {
	ID          string         `json:"id" yaml:"id"`
	Provider    string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	Method      string         `json:"method" yaml:"method"`
	Path        string         `json:"path" yaml:"path"`
	BaseURL     string         `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Params      []ParamBinding `json:"params,omitempty" yaml:"params,omitempty"`
	Encoder     string         `json:"encoder,omitempty" yaml:"encoder,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type TemplateID string

// RequestTemplate is the immutable, validated form of an Operation.
type RequestTemplate struct {
	ID           TemplateID
	Operation    Operation
	Method       string
	Path         string
	Placeholders []string
	Params       []ParamBinding
	Encoder      PayloadEncoder
}

// Args holds caller-supplied argument values by binding name. A missing key
// and a nil value are both treated as absent.
type Args map[string]any

type Payload struct {
	Body        []byte
	ContentType string
}

type BoundRequest struct {
	OperationID string
	Method      string
	BaseURL     string
	Path        string
	Query       url.Values
	Headers     http.Header
	Payload     *Payload
}

// URL joins BaseURL, Path and the encoded query.
func (r BoundRequest) URL() string {
	target := joinURL(r.BaseURL, r.Path)
	if encoded := r.Query.Encode(); encoded != "" {
		return target + "?" + encoded
	}
	return target
}

func (r BoundRequest) Clone() BoundRequest {
	out := BoundRequest{
		OperationID: r.OperationID,
		Method:      r.Method,
		BaseURL:     r.BaseURL,
		Path:        r.Path,
		Query:       cloneValues(r.Query),
		Headers:     r.Headers.Clone(),
	}
	if out.Headers == nil {
		out.Headers = http.Header{}
	}
	if r.Payload != nil {
		out.Payload = &Payload{
			Body:        append([]byte(nil), r.Payload.Body...),
			ContentType: r.Payload.ContentType,
		}
	}
	return out
}

// Credential is opaque to the engine; only attachers interpret its fields.
type Credential struct {
	Token        string
	Secret       string
	SessionToken string
	Endpoint     string
	Attributes   map[string]string
}

type FetchedCredential struct {
	Credential Credential
	// ExpiresAt is zero when the provider did not report an expiry.
	ExpiresAt time.Time
}

type AuthSession struct {
	Credential Credential
	ExpiresAt  time.Time
	Generation uint64
	FetchedAt  time.Time
}

func (s AuthSession) IsZero() bool {
	return s.Generation == 0
}

type TransportRequest struct {
	Method               string
	URL                  string
	Query                url.Values
	Headers              http.Header
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	Metadata             map[string]any
}

type TransportResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Metadata   map[string]any
}

// ProviderMessage is what a provider parser extracts from an error response.
type ProviderMessage struct {
	Text         string
	Code         string
	TokenExpired bool
	Overloaded   bool
}

type PayloadEncoder interface {
	Encode(ctx context.Context, args Args) (Payload, error)
}

type PayloadEncoderFunc func(ctx context.Context, args Args) (Payload, error)

func (f PayloadEncoderFunc) Encode(ctx context.Context, args Args) (Payload, error) {
	return f(ctx, args)
}

type CredentialFetcher interface {
	Fetch(ctx context.Context) (FetchedCredential, error)
}

type CredentialFetcherFunc func(ctx context.Context) (FetchedCredential, error)

func (f CredentialFetcherFunc) Fetch(ctx context.Context) (FetchedCredential, error) {
	return f(ctx)
}

type CredentialAttacher interface {
	Attach(ctx context.Context, req BoundRequest, cred Credential) (BoundRequest, error)
}

type CredentialAttacherFunc func(ctx context.Context, req BoundRequest, cred Credential) (BoundRequest, error)

func (f CredentialAttacherFunc) Attach(ctx context.Context, req BoundRequest, cred Credential) (BoundRequest, error) {
	return f(ctx, req, cred)
}

type ErrorMessageParser interface {
	Parse(resp TransportResponse) ProviderMessage
}

type ErrorMessageParserFunc func(resp TransportResponse) ProviderMessage

func (f ErrorMessageParserFunc) Parse(resp TransportResponse) ProviderMessage {
	return f(resp)
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// RequestDecorator adjusts a bound request right before credentials are attached.
type RequestDecorator interface {
	Decorate(ctx context.Context, req BoundRequest) (BoundRequest, error)
}

// SessionStore shares fetched sessions between engine instances.
type SessionStore interface {
	Load(ctx context.Context, key string) (AuthSession, bool, error)
	Save(ctx context.Context, key string, session AuthSession) error
	Delete(ctx context.Context, key string, generation uint64) error
}

type SessionEventKind string

const (
	SessionEventRefreshed   SessionEventKind = "refreshed"
	SessionEventFailed      SessionEventKind = "failed"
	SessionEventInvalidated SessionEventKind = "invalidated"
)

type SessionEvent struct {
	Kind       SessionEventKind
	CacheKey   string
	Generation uint64
	ExpiresAt  time.Time
	OccurredAt time.Time
	Err        error
}

// SessionObserver receives session lifecycle events; implementations must not block.
type SessionObserver interface {
	OnSessionEvent(ctx context.Context, event SessionEvent)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
