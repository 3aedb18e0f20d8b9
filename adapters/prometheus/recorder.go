package prometheus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-restbind/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// LabelNames is the fixed label set attached to every restbind series. Tags
// outside this set are dropped and missing tags are exported as "".
var LabelNames = []string{"operation", "status", "operation_id", "provider", "classification", "kind", "cache_key"}

// DefaultDurationBuckets are in milliseconds, matching the *.duration_ms
// histograms the engine observes.
var DefaultDurationBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// Recorder exports engine metrics as Prometheus counters and histograms.
// Vectors are created on first use of a metric name. Safe for concurrent use.
type Recorder struct {
	registerer prom.Registerer
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	histograms map[string]*prom.HistogramVec
	errs       []error
}

type Option func(*Recorder)

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

func NewRecorder(registerer prom.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}
	recorder := &Recorder{
		registerer: registerer,
		buckets:    DefaultDurationBuckets,
		counters:   map[string]*prom.CounterVec{},
		histograms: map[string]*prom.HistogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec := r.counter(name)
	if vec == nil {
		return
	}
	vec.WithLabelValues(labelValues(tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec := r.histogram(name)
	if vec == nil {
		return
	}
	vec.WithLabelValues(labelValues(tags)...).Observe(value)
}

// Errors returns the registration failures seen so far. A metric whose vector
// could not be registered is not recorded.
func (r *Recorder) Errors() []error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *Recorder) counter(name string) *prom.CounterVec {
	metric := MetricName(name)
	if metric == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[metric]; ok {
		return vec
	}
	vec := prom.NewCounterVec(prom.CounterOpts{
		Name: metric,
		Help: fmt.Sprintf("restbind counter %s", strings.TrimSpace(name)),
	}, LabelNames)
	registered, err := register(r.registerer, vec)
	if err != nil {
		r.errs = append(r.errs, err)
		r.counters[metric] = nil
		return nil
	}
	r.counters[metric] = registered
	return registered
}

func (r *Recorder) histogram(name string) *prom.HistogramVec {
	metric := MetricName(name)
	if metric == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[metric]; ok {
		return vec
	}
	vec := prom.NewHistogramVec(prom.HistogramOpts{
		Name:    metric,
		Help:    fmt.Sprintf("restbind histogram %s", strings.TrimSpace(name)),
		Buckets: r.buckets,
	}, LabelNames)
	registered, err := register(r.registerer, vec)
	if err != nil {
		r.errs = append(r.errs, err)
		r.histograms[metric] = nil
		return nil
	}
	r.histograms[metric] = registered
	return registered
}

// register reuses a collector already registered under the same descriptor,
// so several recorders can share one registry.
func register[T prom.Collector](registerer prom.Registerer, collector T) (T, error) {
	if err := registerer.Register(collector); err != nil {
		var already prom.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return collector, nil
}

// MetricName maps an engine metric name such as restbind.execute.duration_ms
// to restbind_execute_duration_ms.
func MetricName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func labelValues(tags map[string]string) []string {
	values := make([]string, len(LabelNames))
	for i, label := range LabelNames {
		values[i] = strings.TrimSpace(tags[label])
	}
	return values
}

var _ core.MetricsRecorder = (*Recorder)(nil)
