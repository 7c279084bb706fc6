package ratelimit

import (
	"context"
	"sync"
	"time"
)

// 端点分组键
const (
	KeyOrderPost    = "zex:order:post"
	KeyWithdrawPost = "zex:withdraw:post"
	KeyRegister     = "zex:register"
	KeyUserGet      = "zex:user:get"
	KeyMarketGet    = "zex:market:get"
	KeyGeneral      = "zex:general"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
	GetResetTime() time.Time
}

// TokenBucket 令牌桶速率限制器
type TokenBucket struct {
	capacity   int           // 桶容量
	tokens     float64       // 当前令牌数
	refillRate int           // 每秒补充的令牌数
	windowSize time.Duration // refillRate 为 0 时的等待窗口
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶
func NewTokenBucket(capacity, refillRate int, windowSize time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		windowSize: windowSize,
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now
	tb.tokens += elapsed * float64(tb.refillRate)
	if tb.tokens > float64(tb.capacity) {
		tb.tokens = float64(tb.capacity)
	}
}

// Allow 检查是否允许请求
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 等待直到允许请求
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		waitTime := tb.windowSize
		if tb.refillRate > 0 {
			waitTime = time.Second / time.Duration(tb.refillRate)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// GetRemaining 获取剩余令牌数
func (tb *TokenBucket) GetRemaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return int(tb.tokens)
}

// GetResetTime 获取令牌桶填满的时间
func (tb *TokenBucket) GetResetTime() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	needed := float64(tb.capacity) - tb.tokens
	if needed <= 0 || tb.refillRate <= 0 {
		return time.Now()
	}
	return time.Now().Add(time.Duration(needed / float64(tb.refillRate) * float64(time.Second)))
}

// SlidingWindow 滑动窗口速率限制器
type SlidingWindow struct {
	limit      int
	windowSize time.Duration
	requests   []time.Time // 窗口内的请求时间戳，按时间升序
	mu         sync.Mutex
}

// NewSlidingWindow 创建新的滑动窗口速率限制器
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
	}
}

// evict 移除窗口外的请求
func (sw *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	sw.requests = sw.requests[i:]
}

// Allow 检查是否允许请求
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.evict(now)
	if len(sw.requests) >= sw.limit {
		return false
	}
	sw.requests = append(sw.requests, now)
	return true
}

// Wait 等待直到允许请求
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if sw.Allow() {
			return nil
		}

		sw.mu.Lock()
		waitTime := 100 * time.Millisecond
		if len(sw.requests) > 0 {
			if d := sw.windowSize - time.Since(sw.requests[0]); d > 0 {
				waitTime = d
			}
		}
		sw.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// GetRemaining 获取剩余请求数
func (sw *SlidingWindow) GetRemaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.evict(time.Now())
	return max(0, sw.limit-len(sw.requests))
}

// GetResetTime 获取最早请求移出窗口的时间
func (sw *SlidingWindow) GetResetTime() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.evict(time.Now())
	if len(sw.requests) == 0 {
		return time.Now()
	}
	return sw.requests[0].Add(sw.windowSize)
}

// RateLimitManager 按端点分组管理速率限制器
type RateLimitManager struct {
	limiters map[string]RateLimiter
	mu       sync.RWMutex
}

// NewRateLimitManager 创建带默认限制的管理器
func NewRateLimitManager() *RateLimitManager {
	manager := &RateLimitManager{
		limiters: make(map[string]RateLimiter),
	}
	manager.initDefaultLimiters()
	return manager
}

// NewRequestsPerSecond 所有端点共用同一个每秒 rps 次的令牌桶
func NewRequestsPerSecond(rps int) *RateLimitManager {
	if rps <= 0 {
		return NewRateLimitManager()
	}
	return &RateLimitManager{
		limiters: map[string]RateLimiter{KeyGeneral: NewTokenBucket(rps, rps, time.Second)},
	}
}

func (rlm *RateLimitManager) initDefaultLimiters() {
	rlm.limiters[KeyOrderPost] = NewTokenBucket(100, 10, 10*time.Second)
	rlm.limiters[KeyWithdrawPost] = NewSlidingWindow(10, 10*time.Second)
	rlm.limiters[KeyRegister] = NewSlidingWindow(5, 10*time.Second)
	rlm.limiters[KeyUserGet] = NewSlidingWindow(300, 10*time.Second)
	rlm.limiters[KeyMarketGet] = NewSlidingWindow(300, 10*time.Second)
	rlm.limiters[KeyGeneral] = NewSlidingWindow(1000, 10*time.Second)
}

// Set 设置指定端点的速率限制器
func (rlm *RateLimitManager) Set(endpoint string, limiter RateLimiter) {
	rlm.mu.Lock()
	defer rlm.mu.Unlock()
	rlm.limiters[endpoint] = limiter
}

// GetLimiter 获取指定端点的速率限制器，未配置时回落到通用限制器
func (rlm *RateLimitManager) GetLimiter(endpoint string) RateLimiter {
	rlm.mu.RLock()
	if limiter, exists := rlm.limiters[endpoint]; exists {
		rlm.mu.RUnlock()
		return limiter
	}
	general, exists := rlm.limiters[KeyGeneral]
	rlm.mu.RUnlock()
	if exists {
		return general
	}

	rlm.mu.Lock()
	defer rlm.mu.Unlock()
	if general, exists = rlm.limiters[KeyGeneral]; !exists {
		general = NewSlidingWindow(1000, 10*time.Second)
		rlm.limiters[KeyGeneral] = general
	}
	return general
}

// Wait 等待直到允许请求
func (rlm *RateLimitManager) Wait(ctx context.Context, endpoint string) error {
	return rlm.GetLimiter(endpoint).Wait(ctx)
}

// Allow 检查是否允许请求
func (rlm *RateLimitManager) Allow(endpoint string) bool {
	return rlm.GetLimiter(endpoint).Allow()
}

// GetRemaining 获取剩余请求数
func (rlm *RateLimitManager) GetRemaining(endpoint string) int {
	return rlm.GetLimiter(endpoint).GetRemaining()
}
