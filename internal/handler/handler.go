package handler

import (
	"context"
	"fmt"

	"k8s.io/utils/clock"

	"followreq/internal/banner"
	"followreq/internal/executor"
	"followreq/internal/logger"
	"followreq/pkg/model"
)

// Handler 展示层操作的分发器，负责自动跳转目标解析、横幅状态和事件发送
type Handler struct {
	executor *executor.Executor
	banner   *banner.State
	events   chan model.Event
	clock    clock.PassiveClock
	log      logger.Logger
}

// Config 配置选项
type Config struct {
	Executor *executor.Executor
	Banner   *banner.State
	Events   chan model.Event
	Clock    clock.PassiveClock
	Logger   logger.Logger
}

// New 创建分发器
func New(cfg Config) *Handler {
	if cfg.Banner == nil {
		cfg.Banner = &banner.State{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Handler{
		executor: cfg.Executor,
		banner:   cfg.Banner,
		events:   cfg.Events,
		clock:    cfg.Clock,
		log:      cfg.Logger,
	}
}

// Banner 返回横幅状态
func (h *Handler) Banner() *banner.State { return h.banner }

// HandleIntent 处理一次操作意图
func (h *Handler) HandleIntent(ctx context.Context, in model.Intent) model.Outcome {
	out := model.Outcome{Kind: in.Kind, UserID: in.UserID}

	// 自动跳转目标必须在列表被修改之前确定
	var next model.UserID
	if in.AutoAdvance && in.Kind.RemovesRequest() {
		next, _ = banner.NextAfter(h.executor.Roster().List(), in.UserID)
	}

	switch in.Kind {
	case model.ActionAccept:
		out.Err = h.executor.Accept(ctx, in.UserID)
	case model.ActionReject:
		out.Err = h.executor.Reject(ctx, in.UserID)
	case model.ActionFollow:
		out.Err = h.executor.Follow(ctx, in.UserID)
	case model.ActionUnfollow:
		out.Err = h.executor.Unfollow(ctx, in.UserID)
	default:
		out.Err = fmt.Errorf("handler: unknown action kind %d", int(in.Kind))
		return out
	}

	h.sendActionEvent(in, model.Classify(out.Err))
	if out.Err != nil {
		h.log.Debug("操作未完成", "kind", in.Kind.String(), "userId", in.UserID, "error", out.Err.Error())
		return out
	}

	if in.Kind.RemovesRequest() {
		h.banner.HideIf(in.UserID)
		h.sendListInvalidatedEvent(in)
		if next != "" {
			out.NextUserID = next
			if view, ok := banner.View(h.executor.Roster().List(), next); ok {
				h.banner.Show(view)
			}
		}
	}
	return out
}

// CheckProfile 当前资料页的用户若在待处理列表中，返回并展示横幅
func (h *Handler) CheckProfile(username string) (model.BannerView, bool) {
	users := h.executor.Roster().List()
	u, ok := banner.FindByUsername(users, username)
	if !ok || !u.IsPendingRequest {
		h.banner.Hide()
		return model.BannerView{}, false
	}
	view, ok := banner.View(users, u.ID)
	if !ok {
		h.banner.Hide()
		return model.BannerView{}, false
	}
	h.banner.Show(view)
	return view, true
}

// sendActionEvent 发送操作结果事件
func (h *Handler) sendActionEvent(in model.Intent, result model.ActionResult) {
	h.send(model.Event{
		Type:      model.EventAction,
		Kind:      in.Kind,
		UserID:    in.UserID,
		Result:    result,
		Timestamp: h.clock.Now().UnixMilli(),
	})
}

// sendListInvalidatedEvent 通知展示层重新拉取列表
func (h *Handler) sendListInvalidatedEvent(in model.Intent) {
	h.send(model.Event{
		Type:      model.EventListInvalidated,
		Kind:      in.Kind,
		UserID:    in.UserID,
		Timestamp: h.clock.Now().UnixMilli(),
	})
}

func (h *Handler) send(evt model.Event) {
	if h.events == nil {
		return
	}
	select {
	case h.events <- evt:
	default:
		h.log.Warn("事件通道已满，丢弃事件", "type", string(evt.Type))
	}
}
