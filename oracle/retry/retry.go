package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/GPTx-global/ondemand/oracle/log"
	"github.com/GPTx-global/ondemand/oracle/types"
)

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// UpdateConfig retries one feed update with short delays. A non-positive
// maxAttempts means 3.
func UpdateConfig(maxAttempts int) *Config {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Config{
		MaxAttempts: maxAttempts,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}
}

type Func func(ctx context.Context) error

type IsRetryable func(error) bool

var retryableMessages = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"network is unreachable",
	"no such host",
	"broken pipe",
	"too many requests",
}

// DefaultIsRetryable retries transport failures and oracles that came back
// empty. Malformed data and invalid requests fail the same way again.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, types.ErrTransport) || errors.Is(err, types.ErrNoQuotes) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, types.ErrDeserialize) || errors.Is(err, types.ErrInvalidRequest) || errors.Is(err, types.ErrNotFound) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Do runs fn until it succeeds, returns a non-retryable error, or runs out
// of attempts. Delays grow by Multiplier up to MaxDelay.
func Do(ctx context.Context, cfg *Config, fn Func, isRetryable IsRetryable) error {
	var (
		attempt   int
		lastErr   error
		exhausted bool
	)

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Debugf("retry: succeeded on attempt %d", attempt)
			}
			return nil
		}
		lastErr = err

		if attempt >= cfg.MaxAttempts {
			exhausted = true
			return backoff.Permanent(err)
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		log.Warnf("retry: attempt %d/%d failed, retrying in %v: %v", attempt, cfg.MaxAttempts, delay, err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(newBackOff(cfg), ctx), notify)
	if exhausted {
		return fmt.Errorf("all %d attempts failed, last error: %w", cfg.MaxAttempts, lastErr)
	}
	return err
}

// newBackOff is the exponential schedule of cfg without jitter.
func newBackOff(cfg *Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	retries := 0
	if cfg.MaxAttempts > 1 {
		retries = cfg.MaxAttempts - 1
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("CircuitState(%d)", int(s))
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a failing dependency for resetTimeout after
// maxFailures consecutive failures, then lets one trial call through.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	failures     int
	lastFailTime time.Time
	state        CircuitState
	now          func() time.Time
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

func (cb *CircuitBreaker) Execute(ctx context.Context, fn Func) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailTime) <= cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		log.Debugf("circuit breaker: open -> half-open")
	}
	cb.mu.Unlock()

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailTime = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			if cb.state != StateOpen {
				log.Warnf("circuit breaker: -> open after %d failures", cb.failures)
			}
			cb.state = StateOpen
		}
		return err
	}

	if cb.state == StateHalfOpen {
		log.Debugf("circuit breaker: half-open -> closed")
	}
	cb.state = StateClosed
	cb.failures = 0
	return nil
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
