package core

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultCacheBusterParam = "_"
	defaultCacheBusterTTL   = time.Second
)

// CacheBuster appends a unix-seconds timestamp to GET requests so
// intermediaries cannot serve stale listings. The timestamp is memoized for
// the configured ttl, so bursts of requests share one value.
type CacheBuster struct {
	param string
	memo  *Memo[string]
}

func NewCacheBuster(param string, ttl time.Duration, now func() time.Time) *CacheBuster {
	param = strings.TrimSpace(param)
	if param == "" {
		param = defaultCacheBusterParam
	}
	if ttl <= 0 {
		ttl = defaultCacheBusterTTL
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CacheBuster{
		param: param,
		memo: NewTTLMemo(ttl, func(context.Context) (string, error) {
			return strconv.FormatInt(now().Unix(), 10), nil
		}, WithMemoClock(now)),
	}
}

func (b *CacheBuster) Decorate(ctx context.Context, req BoundRequest) (BoundRequest, error) {
	if b == nil || req.Method != http.MethodGet {
		return req, nil
	}
	if req.Query.Has(b.param) {
		return req, nil
	}
	stamp, err := b.memo.Get(ctx)
	if err != nil {
		return req, err
	}
	if req.Query == nil {
		req.Query = map[string][]string{}
	}
	req.Query.Set(b.param, stamp)
	return req, nil
}

var _ RequestDecorator = (*CacheBuster)(nil)
