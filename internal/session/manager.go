package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"followreq/internal/logger"
	"followreq/pkg/model"

	"k8s.io/utils/clock"
)

// PageState 一次读取到的页面状态
type PageState struct {
	Markup       string // document.body.innerHTML
	Claim        string // sessionStorage 中的 www-claim-v2
	CookieHeader string // 接口域名下的 Cookie
}

// Source 页面状态来源
type Source interface {
	Snapshot(ctx context.Context) (PageState, error)
}

// Options 会话管理器配置
type Options struct {
	MaxAttempts int
	Interval    time.Duration
	Clock       clock.Clock
	Logger      logger.Logger
}

// Manager 按页面目标管理会话上下文
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.TargetID]*model.SessionContext
	opts     Options
	log      logger.Logger
}

// NewManager 创建会话管理器
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	return &Manager{
		sessions: make(map[model.TargetID]*model.SessionContext),
		opts:     opts,
		log:      opts.Logger,
	}
}

// Create 注册页面对应的会话上下文，页面重新加载时覆盖旧值
func (m *Manager) Create(id model.TargetID, sc *model.SessionContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = sc
	m.log.Info("创建会话上下文", "target", string(id), "identity", sc.IdentityID)
}

// Get 获取会话上下文
func (m *Manager) Get(id model.TargetID) (*model.SessionContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.sessions[id]
	return sc, ok
}

// Delete 页面导航或关闭时销毁会话上下文
func (m *Manager) Delete(id model.TargetID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	m.log.Info("销毁会话上下文", "target", string(id))
}

// List 返回所有页面目标
func (m *Manager) List() []model.TargetID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]model.TargetID, 0, len(m.sessions))
	for id := range m.sessions {
		list = append(list, id)
	}
	return list
}

// Await 轮询页面直到能推导出身份，最多尝试 MaxAttempts 次
func (m *Manager) Await(ctx context.Context, id model.TargetID, src Source) (*model.SessionContext, error) {
	var lastErr error
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		state, err := src.Snapshot(ctx)
		if err != nil {
			lastErr = err
			m.log.Warn("读取页面状态失败", "target", string(id), "attempt", attempt, "error", err)
		} else if sc, ok := Derive(state.Markup); ok {
			if state.Claim != "" {
				sc.Headers.Set(HeaderClaim, state.Claim)
			}
			if state.CookieHeader != "" {
				sc.Headers.Set(HeaderCookie, state.CookieHeader)
			}
			m.Create(id, sc)
			return sc, nil
		} else {
			m.log.Debug("页面尚未就绪，稍后重试", "target", string(id), "attempt", attempt)
		}

		if attempt == m.opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.opts.Clock.After(m.opts.Interval):
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w after %d attempts: %v", model.ErrSessionNotReady, m.opts.MaxAttempts, lastErr)
	}
	return nil, fmt.Errorf("%w after %d attempts", model.ErrSessionNotReady, m.opts.MaxAttempts)
}
