package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level != level || item.msg != message {
			continue
		}
		if eventType == "" || item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}

// scriptedTransport replays responses in order and repeats the last one.
type scriptedTransport struct {
	mu        sync.Mutex
	responses []TransportResponse
	errs      []error
	requests  []TransportRequest
}

func (t *scriptedTransport) Kind() string { return "scripted" }

func (t *scriptedTransport) Do(_ context.Context, req TransportRequest) (TransportResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	index := len(t.requests)
	t.requests = append(t.requests, req)
	if index < len(t.errs) && t.errs[index] != nil {
		return TransportResponse{}, t.errs[index]
	}
	if len(t.responses) == 0 {
		return TransportResponse{StatusCode: http.StatusOK, Headers: http.Header{}}, nil
	}
	if index >= len(t.responses) {
		index = len(t.responses) - 1
	}
	return t.responses[index], nil
}

func (t *scriptedTransport) calls() []TransportRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TransportRequest(nil), t.requests...)
}

func statusResponse(status int, body string) TransportResponse {
	return TransportResponse{StatusCode: status, Headers: http.Header{}, Body: []byte(body)}
}

// countingFetcher hands out token-1, token-2, ... and counts fetches.
type countingFetcher struct {
	calls     atomic.Int64
	delay     time.Duration
	expiresAt func() time.Time
	fail      error
	release   chan struct{}
}

func (f *countingFetcher) Fetch(ctx context.Context) (FetchedCredential, error) {
	n := f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return FetchedCredential{}, ctx.Err()
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil {
		return FetchedCredential{}, f.fail
	}
	out := FetchedCredential{Credential: Credential{Token: fmt.Sprintf("token-%d", n)}}
	if f.expiresAt != nil {
		out.ExpiresAt = f.expiresAt()
	}
	return out, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// phraseParser recognizes plain-text provider messages.
var phraseParser = ErrorMessageParserFunc(func(resp TransportResponse) ProviderMessage {
	text := strings.TrimSpace(string(resp.Body))
	lower := strings.ToLower(text)
	return ProviderMessage{
		Text:         text,
		TokenExpired: strings.Contains(lower, "token expired") || strings.Contains(lower, "invalid token"),
		Overloaded:   strings.Contains(lower, "overloaded"),
	}
})

var tokenHeaderAttacher = CredentialAttacherFunc(func(_ context.Context, req BoundRequest, cred Credential) (BoundRequest, error) {
	req.Headers.Set("X-Auth-Token", cred.Token)
	return req, nil
})

func noSleep(context.Context, time.Duration) error { return nil }

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return l.values, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (o *recordingObserver) OnSessionEvent(_ context.Context, event SessionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) kinds() []SessionEventKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]SessionEventKind, 0, len(o.events))
	for _, event := range o.events {
		out = append(out, event.Kind)
	}
	return out
}
