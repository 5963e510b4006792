package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"k8s.io/utils/clock"

	"followreq/internal/banner"
	"followreq/internal/cache"
	"followreq/internal/cdp"
	"followreq/internal/config"
	"followreq/internal/ctxkeys"
	"followreq/internal/executor"
	"followreq/internal/fetcher"
	"followreq/internal/handler"
	"followreq/internal/logger"
	"followreq/internal/ratelimit"
	"followreq/internal/remote"
	"followreq/internal/rules"
	"followreq/internal/session"
	"followreq/internal/storage"
	"followreq/pkg/model"
)

const (
	defaultTarget   model.TargetID = "default"
	eventBufferSize                = 64
)

// Options 服务依赖，未提供的按配置创建
type Options struct {
	Config     *config.Config
	Logger     logger.Logger
	Clock      clock.Clock
	HTTPClient *http.Client

	// Source 页面状态来源，为空时通过 DevTools 连接浏览器
	Source session.Source
	// Session 已知的会话上下文，提供时跳过页面轮询
	Session *model.SessionContext
}

// Service 组装各组件，对外提供展示层调用契约
type Service struct {
	cfg   *config.Config
	log   logger.Logger
	clock clock.Clock

	browser  *cdp.Manager
	source   session.Source
	sessions *session.Manager
	client   *remote.Client
	fetcher  *fetcher.Fetcher
	executor *executor.Executor
	handler  *handler.Handler
	filter   *rules.Engine
	journal  *storage.Journal

	sessionMu sync.Mutex
	target    model.TargetID

	events    chan model.Event
	subsMu    sync.Mutex
	subs      map[int]chan model.Event
	nextSub   int
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New 创建服务
func New(opts Options) (*Service, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	s := &Service{
		cfg:    cfg,
		log:    l,
		clock:  clk,
		source: opts.Source,
		events: make(chan model.Event, eventBufferSize),
		subs:   make(map[int]chan model.Event),
		done:   make(chan struct{}),
	}

	if s.source == nil && opts.Session == nil {
		s.browser = cdp.New(cdp.Options{
			DevToolsURL: cfg.Browser.DevToolsURL,
			PageHost:    cfg.Browser.PageHost,
			CookieURL:   cfg.Browser.CookieURL,
			Logger:      l.With("component", "browser"),
		})
		s.source = s.browser
	}

	s.sessions = session.NewManager(session.Options{
		MaxAttempts: cfg.Session.MaxAttempts,
		Interval:    cfg.Session.Interval,
		Clock:       clk,
		Logger:      l.With("component", "session"),
	})
	if opts.Session != nil {
		s.sessions.Create(defaultTarget, opts.Session)
		s.target = defaultTarget
	}

	client, err := remote.New(remote.Options{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: opts.HTTPClient,
		Timeout:    cfg.API.Timeout,
		Session:    opts.Session,
		Logger:     l.With("component", "remote"),
	})
	if err != nil {
		return nil, err
	}
	s.client = client

	journal, err := storage.Open(cfg.Journal.Dsn, l)
	if err != nil {
		return nil, err
	}
	s.journal = journal

	requestCache := cache.NewWithClock(cfg.Cache.TTL, clk)
	s.fetcher = fetcher.New(fetcher.Options{
		Remote:           client,
		Cache:            requestCache,
		ChunkSize:        cfg.Fetch.ChunkSize,
		ChunkConcurrency: cfg.Fetch.ChunkConcurrency,
		Logger:           l.With("component", "fetcher"),
	})
	s.executor = executor.New(executor.Options{
		Remote: client,
		Limiter: ratelimit.New(ratelimit.Options{
			PerMinute: cfg.Limits.PerMinute,
			PerHour:   cfg.Limits.PerHour,
			Clock:     clk,
		}),
		Cache:   requestCache,
		Roster:  executor.NewRoster(),
		Journal: journal,
		Clock:   clk,
		Logger:  l.With("component", "executor"),
	})
	s.handler = handler.New(handler.Config{
		Executor: s.executor,
		Banner:   &banner.State{},
		Events:   s.events,
		Clock:    clk,
		Logger:   l.With("component", "handler"),
	})
	s.filter = rules.New(cfg.Filter)

	s.wg.Add(1)
	go s.broadcast()
	return s, nil
}

// EnsureSession 确保已推导出会话上下文，必要时轮询页面
func (s *Service) EnsureSession(ctx context.Context) (*model.SessionContext, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if s.target != "" {
		if sc, ok := s.sessions.Get(s.target); ok {
			return sc, nil
		}
	}
	if s.source == nil {
		return nil, model.ErrNoSession
	}

	target := defaultTarget
	if s.browser != nil {
		info, err := s.browser.AttachTarget(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("attach browser page: %w", err)
		}
		target = info.ID
	}

	sc, err := s.sessions.Await(ctx, target, s.source)
	if err != nil {
		return nil, err
	}
	s.target = target
	s.client.SetSession(sc)
	return sc, nil
}

// ResetSession 丢弃当前会话上下文，下一次调用重新从页面推导
func (s *Service) ResetSession() {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if s.target != "" {
		s.sessions.Delete(s.target)
	}
	s.target = ""
}

// FetchPending 获取待处理请求列表，并作为本地名单
func (s *Service) FetchPending(ctx context.Context, useCache bool) ([]model.PendingUser, error) {
	ctx, _ = ctxkeys.WithTraceID(ctx)
	if _, err := s.EnsureSession(ctx); err != nil {
		return nil, err
	}
	requestCache := s.fetcher.Cache()
	gen := requestCache.Generation()
	users, err := s.fetcher.FetchPending(ctx, useCache)
	if err != nil {
		s.dropRejectedSession(err)
		return nil, err
	}
	// 拉取期间有请求被接受或拒绝时保留现有名单
	if !requestCache.IfGeneration(gen, func() { s.executor.Roster().Load(users) }) {
		s.log.Debug("名单已过期，跳过加载", "count", len(users))
	}
	return users, nil
}

// Search 按用户名或全名过滤已加载名单
func (s *Service) Search(ctx context.Context, query string) ([]model.PendingUser, error) {
	users, err := s.loaded(ctx)
	if err != nil {
		return nil, err
	}
	return s.filter.Filter(users, query), nil
}

// Execute 执行一次操作意图
func (s *Service) Execute(ctx context.Context, in model.Intent) model.Outcome {
	ctx, _ = ctxkeys.WithTraceID(ctx)
	if _, err := s.EnsureSession(ctx); err != nil {
		return model.Outcome{Kind: in.Kind, UserID: in.UserID, Err: err}
	}
	out := s.handler.HandleIntent(ctx, in)
	if out.Err != nil {
		s.dropRejectedSession(out.Err)
	}
	return out
}

// CheckProfile 资料页用户若在待处理列表中则返回横幅数据
func (s *Service) CheckProfile(ctx context.Context, username string) (model.BannerView, bool, error) {
	if _, err := s.loaded(ctx); err != nil {
		return model.BannerView{}, false, err
	}
	view, ok := s.handler.CheckProfile(username)
	return view, ok, nil
}

// CurrentBanner 当前展示的横幅
func (s *Service) CurrentBanner() (model.BannerView, bool) {
	return s.handler.Banner().Current()
}

// History 最近的操作流水
func (s *Service) History(ctx context.Context, limit int) ([]model.ActionRecord, error) {
	return s.journal.Recent(ctx, limit)
}

// Targets 浏览器中匹配的页面
func (s *Service) Targets(ctx context.Context) ([]model.TargetInfo, error) {
	if s.browser == nil {
		return nil, nil
	}
	return s.browser.GetAllTargets(ctx)
}

// SubscribeEvents 订阅事件，返回的函数用于取消订阅
func (s *Service) SubscribeEvents() (<-chan model.Event, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan model.Event, eventBufferSize)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Close 停止事件分发并释放资源
func (s *Service) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()

		s.subsMu.Lock()
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		s.subsMu.Unlock()

		if s.browser != nil {
			if err := s.browser.Detach(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// loaded 优先使用缓存获取列表，缓存过期时重新拉取并刷新名单
func (s *Service) loaded(ctx context.Context) ([]model.PendingUser, error) {
	return s.FetchPending(ctx, true)
}

// dropRejectedSession 远端拒绝凭据时丢弃会话，页面登录状态变化后可以重新推导
func (s *Service) dropRejectedSession(err error) {
	if s.source == nil || !sessionRejected(err) {
		return
	}
	s.log.Warn("远端拒绝当前会话，下次调用重新推导", "error", err.Error())
	s.ResetSession()
}

func sessionRejected(err error) bool {
	status := 0
	var ae *model.APIError
	var ne *model.NetworkError
	switch {
	case errors.As(err, &ae):
		status = ae.StatusCode
	case errors.As(err, &ne):
		status = ne.StatusCode
	}
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// broadcast 将处理器事件分发给所有订阅者，慢订阅者丢弃事件
func (s *Service) broadcast() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case evt := <-s.events:
			s.subsMu.Lock()
			for _, ch := range s.subs {
				select {
				case ch <- evt:
				default:
				}
			}
			s.subsMu.Unlock()
		}
	}
}
