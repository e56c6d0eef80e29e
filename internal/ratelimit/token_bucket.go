package ratelimit

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

// TokenBucket 令牌桶限流器，按每分钟请求数补充令牌，并发安全
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64 // 每秒补充的令牌数
	capacity   float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time

	retryWait  time.Duration
	maxRetries int
}

// NewTokenBucket 创建令牌桶。capacity<=0 时取 qpm 的一半，至少为1
func NewTokenBucket(qpm int, capacity int) *TokenBucket {
	if qpm <= 0 {
		qpm = 1
	}
	if capacity <= 0 {
		capacity = qpm / 2
		if capacity <= 0 {
			capacity = 1
		}
	}
	tb := &TokenBucket{
		rate:       float64(qpm) / 60.0,
		capacity:   float64(capacity),
		tokens:     float64(capacity), // 初始填满
		now:        time.Now,
		retryWait:  time.Second,
		maxRetries: 3,
	}
	tb.lastRefill = tb.now()
	return tb
}

// WithRetryPolicy 设置重试等待基数与最大重试次数
func (tb *TokenBucket) WithRetryPolicy(waitTime time.Duration, maxRetries int) *TokenBucket {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.retryWait = waitTime
	tb.maxRetries = maxRetries
	return tb
}

// refill 调用方需持有锁
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

// Allow 非阻塞地尝试获取一个令牌
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1.0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 阻塞直到拿到令牌或 ctx 结束
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refill()
		if tb.tokens >= 1.0 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		waitTime := time.Duration((1.0 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RetryWithBackoff 每次尝试前先取令牌，可重试错误按指数退避重试
func (tb *TokenBucket) RetryWithBackoff(ctx context.Context, fn func() error) error {
	tb.mu.Lock()
	retryWait, maxRetries := tb.retryWait, tb.maxRetries
	tb.mu.Unlock()

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = tb.Wait(ctx); err != nil {
			return err
		}

		if err = fn(); err == nil {
			return nil
		}
		if !IsRetryableError(err) || attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(retryWait * time.Duration(1<<uint(attempt)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// 可重试错误的特征字符串
var retryableMarkers = []string{
	"timeout",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"EOF",
	"429",
	"502 Bad Gateway",
	"503 Service Unavailable",
	"rate limit",
	"no such host",
	"服务器繁忙",
	"请求超过限额",
}

// IsRetryableError 判断错误是否值得重试。调用方主动取消的不重试
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
