// Package resilience 为 LLM 调用提供重试与熔断。
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kart-io/logger"

	"github.com/kart-io/cyplan/pkg/llm"
	"github.com/kart-io/cyplan/pkg/utils/httpclient"
)

// ErrCircuitOpen 熔断器打开时返回。
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Policy 重试与熔断参数。
type Policy struct {
	// MaxAttempts 最大尝试次数（包括首次调用）。
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// FailureThreshold 连续失败多少次后打开熔断器。
	FailureThreshold int
	// OpenTimeout 熔断器打开后多久进入半开探测。
	OpenTimeout time.Duration
	// Retryable 判断错误是否可重试，为空时使用 IsRetryable。
	Retryable func(error) bool
}

// DefaultPolicy 返回默认策略。
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		InitialDelay:     500 * time.Millisecond,
		MaxDelay:         10 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
	}
}

// State 熔断器状态。
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker 连续失败计数熔断器。半开状态只放行一个探测请求。
type Breaker struct {
	name      string
	threshold int
	timeout   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker 创建熔断器。
func NewBreaker(name string, threshold int, timeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{name: name, threshold: threshold, timeout: timeout, now: time.Now}
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probing = true
		logger.Infow("circuit breaker half-open", "provider", b.name)
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil {
		if b.state != StateClosed {
			logger.Infow("circuit breaker closed", "provider", b.name)
		}
		b.state = StateClosed
		b.failures = 0
		return
	}
	// 调用方取消不计入失败
	if errors.Is(err, context.Canceled) {
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		if b.state != StateOpen {
			logger.Warnw("circuit breaker opened", "provider", b.name, "failures", b.failures)
		}
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// State 返回当前状态。
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do 通过熔断器执行 fn，按策略指数退避重试可重试错误。
func Do(ctx context.Context, p Policy, b *Breaker, fn func() error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	eb.MaxInterval = p.MaxDelay
	eb.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		if err := b.allow(); err != nil {
			return backoff.Permanent(err)
		}
		err := fn()
		b.record(err)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, delay time.Duration) {
		logger.Debugw("retrying llm call", "provider", b.name, "delay", delay, "error", err.Error())
	})
}

// IsRetryable 判断错误是否值得重试：网络错误与服务端 5xx/429 可重试，
// 未配置、取消与熔断错误不可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, llm.ErrNotConfigured) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"status 5", "status code 5", "状态码 5", "429", "rate limit", "connection reset", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
