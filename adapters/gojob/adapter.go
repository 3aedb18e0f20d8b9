package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-restbind/core"
)

const (
	JobIDSessionRefresh  = "restbind.session.refresh"
	JobIDOperationInvoke = "restbind.operation.invoke"

	ParamOperationID = "operation_id"
	ParamArgs        = "args"
	ParamReason      = "reason"

	dedupDrop = job.DeduplicationPolicy("drop")
)

// RetryPolicy bounds how failed jobs are nacked.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Backoff doubles BaseDelay per attempt, starting at attempt 1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// NewSessionRefreshMessage builds a job that renews the engine session ahead
// of traffic. Concurrent refresh jobs collapse on the idempotency key.
func NewSessionRefreshMessage(cacheKey string, reason string) *job.ExecutionMessage {
	cacheKey = strings.TrimSpace(cacheKey)
	return &job.ExecutionMessage{
		JobID:          JobIDSessionRefresh,
		ScriptPath:     JobIDSessionRefresh,
		Parameters:     map[string]any{ParamReason: strings.TrimSpace(reason)},
		IdempotencyKey: JobIDSessionRefresh + ":" + cacheKey,
		DedupPolicy:    dedupDrop,
	}
}

func NewInvokeOperationMessage(operationID string, args core.Args, idempotencyKey string) (*job.ExecutionMessage, error) {
	operationID = strings.TrimSpace(operationID)
	if operationID == "" {
		return nil, fmt.Errorf("gojob: operation id is required")
	}
	msg := &job.ExecutionMessage{
		JobID:      JobIDOperationInvoke,
		ScriptPath: JobIDOperationInvoke,
		Parameters: map[string]any{
			ParamOperationID: operationID,
			ParamArgs:        copyAnyMap(args),
		},
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
	}
	if msg.IdempotencyKey != "" {
		msg.DedupPolicy = dedupDrop
	}
	return msg, nil
}

// Scheduler enqueues restbind jobs on a go-job queue.
type Scheduler struct {
	enqueuer queue.Enqueuer
}

func NewScheduler(enqueuer queue.Enqueuer) *Scheduler {
	return &Scheduler{enqueuer: enqueuer}
}

func (s *Scheduler) ScheduleSessionRefresh(ctx context.Context, cacheKey string, reason string) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return s.enqueuer.Enqueue(ctx, NewSessionRefreshMessage(cacheKey, reason))
}

func (s *Scheduler) ScheduleInvoke(ctx context.Context, operationID string, args core.Args, idempotencyKey string) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := NewInvokeOperationMessage(operationID, args, idempotencyKey)
	if err != nil {
		return err
	}
	return s.enqueuer.Enqueue(ctx, msg)
}

// Engine is the part of core.Engine that queued jobs drive.
type Engine interface {
	Execute(ctx context.Context, operationID string, args core.Args) (core.Result, error)
	RefreshSession(ctx context.Context) (core.AuthSession, error)
}

// Processor runs restbind jobs against an engine and settles each delivery.
type Processor struct {
	engine Engine
	policy RetryPolicy
	logger core.Logger
}

type ProcessorOption func(*Processor)

func WithRetryPolicy(policy RetryPolicy) ProcessorOption {
	return func(p *Processor) {
		p.policy = policy
	}
}

func WithLogger(logger core.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

func NewProcessor(engine Engine, opts ...ProcessorOption) (*Processor, error) {
	if engine == nil {
		return nil, fmt.Errorf("gojob: engine is required")
	}
	processor := &Processor{engine: engine}
	for _, opt := range opts {
		if opt != nil {
			opt(processor)
		}
	}
	return processor, nil
}

// ProcessNext dequeues one delivery and processes it.
func (p *Processor) ProcessNext(ctx context.Context, dequeuer queue.Dequeuer, attempt int) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	return p.Process(ctx, delivery, attempt)
}

// Process acks a successful job. Failures the engine may recover from later
// are requeued with backoff; the rest are dead-lettered.
func (p *Processor) Process(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if p == nil || p.engine == nil {
		return fmt.Errorf("gojob: processor is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	runErr := p.run(ctx, msg)
	if runErr == nil {
		return delivery.Ack(ctx)
	}

	opts := queue.NackOptions{Reason: runErr.Error()}
	if Retryable(runErr) {
		opts.Requeue = true
		opts.Delay = p.policy.Backoff(attempt)
	} else {
		opts.DeadLetter = true
	}
	opts = p.policy.NormalizeAttempt(opts, attempt)
	if p.logger != nil {
		p.logger.Warn("restbind job failed",
			"job_id", jobID(msg),
			"attempt", attempt,
			"requeue", opts.Requeue,
			"dead_letter", opts.DeadLetter,
			"error", runErr,
		)
	}
	if err := delivery.Nack(ctx, opts); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (p *Processor) run(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDSessionRefresh:
		_, err := p.engine.RefreshSession(ctx)
		return err
	case JobIDOperationInvoke:
		operationID, _ := msg.Parameters[ParamOperationID].(string)
		if strings.TrimSpace(operationID) == "" {
			return fmt.Errorf("gojob: %s requires %s", JobIDOperationInvoke, ParamOperationID)
		}
		args, err := argsFromParameter(msg.Parameters[ParamArgs])
		if err != nil {
			return err
		}
		_, err = p.engine.Execute(ctx, operationID, args)
		return err
	default:
		return fmt.Errorf("gojob: unsupported job %q", msg.JobID)
	}
}

// Retryable reports whether a failed job may succeed when run again: transient
// provider answers, dispatch failures and credential fetch failures.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if classification, ok := core.ClassificationOf(err); ok && classification.Kind == core.ClassificationTransient {
		return true
	}
	var dispatchErr *core.DispatchError
	if errors.As(err, &dispatchErr) {
		return true
	}
	return core.IsTextCode(err, core.TextCodeAuthUnavailable)
}

// LoggingHook reports go-job worker lifecycle events on a restbind logger.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Debug("restbind job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Info("restbind job succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Error("restbind job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Warn("restbind job retrying", eventFields(event)...)
}

func eventFields(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := []any{
		"job_id", jobID(message),
		"attempt", event.Attempt,
		"duration_ms", event.Duration.Milliseconds(),
	}
	if event.Delay > 0 {
		fields = append(fields, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

func jobID(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	return strings.TrimSpace(msg.JobID)
}

func argsFromParameter(value any) (core.Args, error) {
	switch typed := value.(type) {
	case nil:
		return core.Args{}, nil
	case core.Args:
		return core.Args(copyAnyMap(typed)), nil
	case map[string]any:
		return core.Args(copyAnyMap(typed)), nil
	default:
		return nil, fmt.Errorf("gojob: %s must be an object, got %T", ParamArgs, value)
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ worker.Hook = (*LoggingHook)(nil)
	_ Engine      = (*core.Engine)(nil)
)
