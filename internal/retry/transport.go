package retry

import (
	"context"
	"net/http"
	"time"
)

// Transport is an http.RoundTripper that retries per its Policy using the
// configured Strategy. The zero value never retries.
type Transport struct {
	Base          http.RoundTripper
	RetryStrategy Strategy
	Policy        *Policy
}

type contextKey string

const retryCountContextKey contextKey = "retryCountKey"

func getRetryCount(ctx context.Context) uint {
	i, ok := ctx.Value(retryCountContextKey).(uint)
	if !ok {
		return 0
	}
	return i
}

func setRetryCount(ctx context.Context, retryCount uint) context.Context {
	return context.WithValue(ctx, retryCountContextKey, retryCount)
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	retryCount := getRetryCount(request.Context())
	sleep, exceeded := t.retryStrategy().Sleep(retryCount)

	response, err := t.base().RoundTrip(request)
	if err != nil {
		if !exceeded && t.Policy != nil && t.Policy.CheckError(err) {
			if err := t.wait(request.Context(), sleep); err != nil {
				return nil, err
			}
			return t.RoundTrip(request.WithContext(setRetryCount(request.Context(), retryCount+1)))
		}
		return nil, err
	}

	if !exceeded && t.Policy != nil && t.Policy.CheckResponse(response) {
		if err := t.wait(request.Context(), sleep); err != nil {
			return nil, err
		}
		return t.RoundTrip(request.WithContext(setRetryCount(request.Context(), retryCount+1)))
	}

	return response, nil
}

func (t *Transport) wait(ctx context.Context, sleep time.Duration) error {
	timer := time.NewTimer(sleep)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) retryStrategy() Strategy {
	if t.RetryStrategy != nil {
		return t.RetryStrategy
	}
	return NewNever()
}
