package cache

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"k8s.io/utils/clock"

	"followreq/internal/metrics"
	"followreq/pkg/model"
)

const (
	DefaultTTL = 5 * time.Minute
	pendingKey = "pending"
)

type entry struct {
	users     []model.PendingUser
	fetchedAt time.Time
}

// RequestCache 待处理请求列表的整体缓存，只支持整体替换和整体清空
//
// 每次 Invalidate 代数加一，拉取前记录代数，写入时代数已变化的快照会被丢弃
type RequestCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock clock.PassiveClock
	gen   uint64
	store *ttlcache.Cache[string, entry]
}

// New 创建缓存，ttl<=0 时使用默认 5 分钟
func New(ttl time.Duration) *RequestCache {
	return NewWithClock(ttl, clock.RealClock{})
}

// NewWithClock 使用指定时钟判断过期
func NewWithClock(ttl time.Duration, clk clock.PassiveClock) *RequestCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &RequestCache{
		ttl:   ttl,
		clock: clk,
		store: ttlcache.New[string, entry](
			ttlcache.WithDisableTouchOnHit[string, entry](),
		),
	}
}

// TTL 缓存有效期
func (c *RequestCache) TTL() time.Duration { return c.ttl }

// Get 命中时返回列表副本，过期或为空视为未命中
func (c *RequestCache) Get() ([]model.PendingUser, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.current()
	if !ok {
		metrics.Fetches.WithLabelValues("cache_miss").Inc()
		return nil, false
	}
	metrics.Fetches.WithLabelValues("cache_hit").Inc()
	return model.CloneUsers(e.users), true
}

// Put 整体替换缓存内容并刷新时间戳
func (c *RequestCache) Put(users []model.PendingUser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(users)
}

// PutIf 仅当代数仍为 gen 时写入，返回是否写入
func (c *RequestCache) PutIf(gen uint64, users []model.PendingUser) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.set(users)
	return true
}

// Generation 当前代数
func (c *RequestCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// IfGeneration 代数仍为 gen 时在缓存锁内执行 fn，期间 Invalidate 会等待
func (c *RequestCache) IfGeneration(gen uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	fn()
	return true
}

// Invalidate 清空缓存，可重复调用
func (c *RequestCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.store.DeleteAll()
}

// FetchedAt 返回缓存写入时间，为空时返回零值
func (c *RequestCache) FetchedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	item := c.store.Get(pendingKey)
	if item == nil {
		return time.Time{}
	}
	return item.Value().fetchedAt
}

func (c *RequestCache) set(users []model.PendingUser) {
	snapshot := model.CloneUsers(users)
	if snapshot == nil {
		snapshot = []model.PendingUser{}
	}
	c.store.Set(pendingKey, entry{users: snapshot, fetchedAt: c.clock.Now()}, ttlcache.NoTTL)
}

func (c *RequestCache) current() (entry, bool) {
	item := c.store.Get(pendingKey)
	if item == nil {
		return entry{}, false
	}
	e := item.Value()
	if c.clock.Since(e.fetchedAt) >= c.ttl {
		c.store.Delete(pendingKey)
		return entry{}, false
	}
	return e, true
}
