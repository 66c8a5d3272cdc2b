package httpclient

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// New creates an HTTP client tuned for outbound service-to-service communication.
func New(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; RetryPolicy.Do returns it at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}

// RetryPolicy retries a call with exponential backoff plus jitter:
// delay(n) = BaseDelay * 2^n + rand[0, MaxJitter).
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration
	// OnRetry observes each scheduled retry; attempt is zero based.
	OnRetry func(attempt int, delay time.Duration, err error)

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxJitter: time.Second}
}

// WithClock swaps the sleep and jitter sources, mainly for tests.
func (p RetryPolicy) WithClock(sleep func(ctx context.Context, d time.Duration) error, jitter func() float64) RetryPolicy {
	p.sleep = sleep
	p.jitter = jitter
	return p
}

func (p RetryPolicy) Delay(attempt int) time.Duration {
	backoff := p.BaseDelay * time.Duration(1<<uint(attempt))
	if p.MaxJitter <= 0 {
		return backoff
	}
	jitter := p.jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	return backoff + time.Duration(jitter()*float64(p.MaxJitter))
}

// Do runs fn at most 1+MaxRetries times and returns the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}

		// Do not sleep after last attempt
		if attempt >= p.MaxRetries {
			return err
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
}

// Retry executes fn with simple exponential backoff retry semantics.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts <= 1 {
		return fn()
	}
	policy := RetryPolicy{MaxRetries: attempts - 1, BaseDelay: baseDelay}
	return policy.Do(ctx, func(int) error { return fn() })
}

// IsRetriable reports transport failures a restarting upstream produces:
// timeouts, refused or reset connections and truncated responses.
func IsRetriable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
