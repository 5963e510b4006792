package api

import (
	"context"

	"followreq/internal/config"
	"followreq/internal/logger"
	"followreq/internal/service"
	"followreq/pkg/model"
)

// Service 展示层调用契约
type Service interface {
	// FetchPending 获取待处理请求，useCache 为 false 时强制刷新
	FetchPending(ctx context.Context, useCache bool) ([]model.PendingUser, error)

	// Search 按用户名或全名过滤
	Search(ctx context.Context, query string) ([]model.PendingUser, error)

	// Execute 执行操作意图
	Execute(ctx context.Context, in model.Intent) model.Outcome

	// CheckProfile 资料页横幅
	CheckProfile(ctx context.Context, username string) (model.BannerView, bool, error)

	// History 最近的操作流水
	History(ctx context.Context, limit int) ([]model.ActionRecord, error)

	// Targets 浏览器中匹配的页面
	Targets(ctx context.Context) ([]model.TargetInfo, error)

	// SubscribeEvents 订阅事件
	SubscribeEvents() (<-chan model.Event, func())

	// Close 释放资源
	Close() error
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config, l logger.Logger) (Service, error) {
	return service.New(service.Options{Config: cfg, Logger: l})
}
