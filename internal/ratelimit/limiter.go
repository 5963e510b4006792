package ratelimit

import (
	"sync"
	"time"

	"followreq/pkg/model"

	"k8s.io/utils/clock"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// Options 限流配置
type Options struct {
	PerMinute int
	PerHour   int
	Clock     clock.PassiveClock
}

// window 单个操作种类的尝试时间戳，按时间递增
type window struct {
	mu       sync.Mutex
	attempts []time.Time
}

// Limiter 按操作种类的滑动窗口计数器
type Limiter struct {
	perMinute int
	perHour   int
	clock     clock.PassiveClock
	windows   map[model.ActionKind]*window
}

// New 创建限流器，每种操作一个独立窗口
func New(opts Options) *Limiter {
	if opts.PerMinute <= 0 {
		opts.PerMinute = 5
	}
	if opts.PerHour <= 0 {
		opts.PerHour = 60
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	l := &Limiter{
		perMinute: opts.PerMinute,
		perHour:   opts.PerHour,
		clock:     opts.Clock,
		windows:   make(map[model.ActionKind]*window, len(model.ActionKinds)),
	}
	for _, k := range model.ActionKinds {
		l.windows[k] = &window{}
	}
	return l
}

// TryAcquire 尝试占用一次配额，被拒绝时不记录时间戳
func (l *Limiter) TryAcquire(kind model.ActionKind) error {
	w, ok := l.windows[kind]
	if !ok {
		// 未知种类没有窗口，按最严格处理
		return &model.RateLimitError{Kind: kind, Scope: model.ScopeMinute}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.clock.Now()
	w.prune(now.Add(-hourWindow))

	minuteAgo := now.Add(-minuteWindow)
	inMinute := 0
	for i := len(w.attempts) - 1; i >= 0; i-- {
		if w.attempts[i].Before(minuteAgo) {
			break
		}
		inMinute++
	}

	if inMinute >= l.perMinute {
		return &model.RateLimitError{Kind: kind, Scope: model.ScopeMinute}
	}
	if len(w.attempts) >= l.perHour {
		return &model.RateLimitError{Kind: kind, Scope: model.ScopeHour}
	}
	w.attempts = append(w.attempts, now)
	return nil
}

// Count 返回窗口内仍有效的尝试次数
func (l *Limiter) Count(kind model.ActionKind) (lastMinute, lastHour int) {
	w, ok := l.windows[kind]
	if !ok {
		return 0, 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.clock.Now()
	w.prune(now.Add(-hourWindow))
	minuteAgo := now.Add(-minuteWindow)
	for _, t := range w.attempts {
		if !t.Before(minuteAgo) {
			lastMinute++
		}
	}
	return lastMinute, len(w.attempts)
}

// prune 删除早于 cutoff 的记录
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.attempts) && w.attempts[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.attempts = append(w.attempts[:0], w.attempts[i:]...)
	}
}
