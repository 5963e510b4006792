package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"followreq/internal/cache"
	"followreq/internal/ctxkeys"
	"followreq/internal/logger"
	"followreq/internal/metrics"
	"followreq/internal/ratelimit"
	"followreq/pkg/model"
)

// Mutator 远端变更接口
type Mutator interface {
	Mutate(ctx context.Context, kind model.ActionKind, userID string) error
}

// Recorder 操作流水记录
type Recorder interface {
	Record(ctx context.Context, rec model.ActionRecord) error
}

// Options 执行器配置
type Options struct {
	Remote  Mutator
	Limiter *ratelimit.Limiter
	Cache   *cache.RequestCache
	Roster  *Roster
	Journal Recorder
	Clock   clock.PassiveClock
	Logger  logger.Logger
}

// Executor 执行 accept/reject/follow/unfollow，成功确认后才修改本地状态
type Executor struct {
	remote  Mutator
	limiter *ratelimit.Limiter
	cache   *cache.RequestCache
	roster  *Roster
	journal Recorder
	clock   clock.PassiveClock
	log     logger.Logger

	mu       sync.Mutex
	inFlight map[model.UserID]model.ActionKind
}

// New 创建执行器
func New(opts Options) *Executor {
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(ratelimit.Options{})
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(cache.DefaultTTL)
	}
	if opts.Roster == nil {
		opts.Roster = NewRoster()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Executor{
		remote:   opts.Remote,
		limiter:  opts.Limiter,
		cache:    opts.Cache,
		roster:   opts.Roster,
		journal:  opts.Journal,
		clock:    opts.Clock,
		log:      opts.Logger,
		inFlight: make(map[model.UserID]model.ActionKind),
	}
}

// Roster 返回执行器维护的本地集合
func (e *Executor) Roster() *Roster { return e.roster }

// Accept 通过关注请求
func (e *Executor) Accept(ctx context.Context, userID model.UserID) error {
	return e.Execute(ctx, model.ActionAccept, userID)
}

// Reject 拒绝关注请求
func (e *Executor) Reject(ctx context.Context, userID model.UserID) error {
	return e.Execute(ctx, model.ActionReject, userID)
}

// Follow 关注用户
func (e *Executor) Follow(ctx context.Context, userID model.UserID) error {
	return e.Execute(ctx, model.ActionFollow, userID)
}

// Unfollow 取消关注
func (e *Executor) Unfollow(ctx context.Context, userID model.UserID) error {
	return e.Execute(ctx, model.ActionUnfollow, userID)
}

// Execute 执行一次操作：去重、限流、远端调用、应用本地变更
func (e *Executor) Execute(ctx context.Context, kind model.ActionKind, userID model.UserID) error {
	if !kind.Valid() {
		return fmt.Errorf("executor: unknown action kind %d", int(kind))
	}
	if userID == "" {
		return errors.New("executor: user id is required")
	}

	ctx, traceID := ctxkeys.WithTraceID(ctx)
	log := e.log.With("traceId", traceID, "kind", kind.String(), "userId", userID)

	if !e.begin(kind, userID) {
		err := fmt.Errorf("%s %s: %w", kind, userID, model.ErrActionInFlight)
		e.finish(ctx, log, kind, userID, err)
		return err
	}
	defer e.end(userID)

	if err := e.limiter.TryAcquire(kind); err != nil {
		var rl *model.RateLimitError
		if errors.As(err, &rl) {
			metrics.RateLimited.WithLabelValues(kind.String(), string(rl.Scope)).Inc()
		}
		e.finish(ctx, log, kind, userID, err)
		return err
	}

	if err := e.remote.Mutate(ctx, kind, userID); err != nil {
		e.finish(ctx, log, kind, userID, err)
		return err
	}

	e.apply(kind, userID)
	e.finish(ctx, log, kind, userID, nil)
	return nil
}

// apply 远端确认后修改本地状态
func (e *Executor) apply(kind model.ActionKind, userID model.UserID) {
	switch kind {
	case model.ActionAccept, model.ActionReject:
		// 先让缓存代数失效，之后的名单加载不会再带回该用户
		e.cache.Invalidate()
		e.roster.Remove(userID)
	case model.ActionFollow:
		e.roster.Update(userID, func(u *model.PendingUser) {
			u.FollowedByViewer = true
			u.RequestedByViewer = false
		})
	case model.ActionUnfollow:
		e.roster.Update(userID, func(u *model.PendingUser) {
			u.FollowedByViewer = false
			u.RequestedByViewer = false
		})
	}
}

func (e *Executor) begin(kind model.ActionKind, userID model.UserID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[userID]; busy {
		return false
	}
	e.inFlight[userID] = kind
	return true
}

func (e *Executor) end(userID model.UserID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, userID)
}

// finish 记录指标、日志与流水
func (e *Executor) finish(ctx context.Context, log logger.Logger, kind model.ActionKind, userID model.UserID, err error) {
	result := model.Classify(err)
	metrics.Actions.WithLabelValues(kind.String(), string(result)).Inc()

	rec := model.ActionRecord{
		ID:     uuid.NewString(),
		Kind:   kind,
		UserID: userID,
		Result: result,
		At:     e.clock.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
		log.Warn("操作失败", "result", string(result), "error", err.Error())
	} else {
		log.Info("操作成功")
	}

	if e.journal == nil {
		return
	}
	if jerr := e.journal.Record(ctx, rec); jerr != nil {
		log.Err(jerr, "写入操作流水失败")
	}
}
