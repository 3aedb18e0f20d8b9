package core

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMaxTransientRetries = 2
	defaultRetryInitialBackoff = 200 * time.Millisecond
	defaultRetryMaxBackoff     = 5 * time.Second
)

type RetryPolicy struct {
	MaxTransientRetries int
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTransientRetries: defaultMaxTransientRetries,
		InitialBackoff:      defaultRetryInitialBackoff,
		MaxBackoff:          defaultRetryMaxBackoff,
	}
}

// RetryState tracks one logical call across its retries.
type RetryState struct {
	OperationID      string
	Request          BoundRequest
	Attempts         int
	AuthRetried      bool
	TransientRetries int
	History          []ErrorClassification
	Generation       uint64 // session generation used by the latest attempt
}

func (s *RetryState) Last() (ErrorClassification, bool) {
	if s == nil || len(s.History) == 0 {
		return ErrorClassification{}, false
	}
	return s.History[len(s.History)-1], true
}

// RetryCoordinator re-dispatches once after an auth expiry and a bounded
// number of times after transient failures. Everything else is terminal.
type RetryCoordinator struct {
	sessions   *SessionCache
	dispatcher *Dispatcher
	classifier *Classifier
	policy     RetryPolicy
	sleep      func(ctx context.Context, delay time.Duration) error
	now        func() time.Time
}

type RetryCoordinatorOption func(*RetryCoordinator)

func WithRetrySleep(sleep func(ctx context.Context, delay time.Duration) error) RetryCoordinatorOption {
	return func(r *RetryCoordinator) {
		r.sleep = sleep
	}
}

func WithRetryClock(now func() time.Time) RetryCoordinatorOption {
	return func(r *RetryCoordinator) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRetryCoordinator(
	sessions *SessionCache,
	dispatcher *Dispatcher,
	classifier *Classifier,
	policy RetryPolicy,
	opts ...RetryCoordinatorOption,
) *RetryCoordinator {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	coordinator := &RetryCoordinator{
		sessions:   sessions,
		dispatcher: dispatcher,
		classifier: classifier,
		policy:     normalizeRetryPolicy(policy),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(coordinator)
		}
	}
	return coordinator
}

// Run drives req to success or a terminal failure. The returned state is
// populated in both cases.
func (r *RetryCoordinator) Run(ctx context.Context, req BoundRequest) (TransportResponse, *RetryState, error) {
	state := &RetryState{OperationID: req.OperationID, Request: req}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		session, err := r.sessions.Current(ctx)
		if err != nil {
			return TransportResponse{}, state, err
		}

		state.Attempts++
		state.Generation = session.Generation
		resp, err := r.dispatcher.Dispatch(ctx, state.Request, session)
		var class ErrorClassification
		var cause error
		if err != nil {
			var dispatchErr *DispatchError
			if !errors.As(err, &dispatchErr) {
				return TransportResponse{}, state, err
			}
			class = r.classifier.ClassifyTransportError(err)
			cause = err
		} else {
			classified, failed := r.classifier.Classify(resp)
			if !failed {
				return resp, state, nil
			}
			class = classified
		}
		state.History = append(state.History, class)

		switch class.Kind {
		case ClassificationAuthExpired:
			if state.AuthRetried {
				return TransportResponse{}, state, r.terminal(state, class, cause, true)
			}
			state.AuthRetried = true
			r.sessions.Invalidate(ctx, session.Generation)
		case ClassificationTransient:
			if state.TransientRetries >= r.policy.MaxTransientRetries {
				return TransportResponse{}, state, r.terminal(state, class, cause, false)
			}
			state.TransientRetries++
			var retryAfter *time.Duration
			if delay, ok := parseRetryAfter(resp.Headers, r.now()); ok {
				retryAfter = &delay
			}
			delay := retryDelayForAttempt(r.policy, state.TransientRetries, retryAfter)
			if err := sleepRetry(ctx, r.sleep, delay); err != nil {
				return TransportResponse{}, state, err
			}
		default:
			return TransportResponse{}, state, r.terminal(state, class, cause, false)
		}
	}
}

func (r *RetryCoordinator) terminal(state *RetryState, class ErrorClassification, cause error, authUnavailable bool) error {
	return operationFailure(&OperationError{
		OperationID:    state.OperationID,
		Classification: class,
		Attempts:       state.Attempts,
		History:        append([]ErrorClassification(nil), state.History...),
		AuthRetried:    state.AuthRetried,
		Cause:          cause,
	}, authUnavailable)
}

func normalizeRetryPolicy(policy RetryPolicy) RetryPolicy {
	if policy.MaxTransientRetries < 0 {
		policy.MaxTransientRetries = 0
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = defaultRetryInitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = defaultRetryMaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	return policy
}

func retryDelayForAttempt(policy RetryPolicy, attempt int, retryAfter *time.Duration) time.Duration {
	if retryAfter != nil && *retryAfter > 0 {
		if *retryAfter > policy.MaxBackoff {
			return policy.MaxBackoff
		}
		return *retryAfter
	}
	delay := policy.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= policy.MaxBackoff {
			return policy.MaxBackoff
		}
	}
	if delay > policy.MaxBackoff {
		return policy.MaxBackoff
	}
	return delay
}

func sleepRetry(
	ctx context.Context,
	sleepFn func(ctx context.Context, delay time.Duration) error,
	delay time.Duration,
) error {
	if delay <= 0 {
		return nil
	}
	if sleepFn != nil {
		return sleepFn(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(headers http.Header, now time.Time) (time.Duration, bool) {
	raw := strings.TrimSpace(headers.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := http.ParseTime(raw); err == nil && retryAt.After(now) {
		return retryAt.Sub(now), true
	}
	return 0, false
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
