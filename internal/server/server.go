package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"followreq/internal/logger"
	"followreq/pkg/api"
)

const shutdownTimeout = 5 * time.Second

// Server 本地 HTTP 边界，供展示层调用
type Server struct {
	svc    api.Service
	log    logger.Logger
	router *mux.Router
}

// New 创建服务器并注册路由
func New(svc api.Service, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	s := &Server{svc: svc, log: l.With("component", "server")}
	s.router = s.routes()
	return s
}

// Handler 返回根处理器
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.loggingMiddleware, s.recoverMiddleware)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/pending", s.listPending).Methods(http.MethodGet)
	v1.HandleFunc("/pending/search", s.searchPending).Methods(http.MethodGet)
	v1.HandleFunc("/actions/{kind}/{userId}", s.executeAction).Methods(http.MethodPost)
	v1.HandleFunc("/profiles/{username}", s.checkProfile).Methods(http.MethodGet)
	v1.HandleFunc("/history", s.history).Methods(http.MethodGet)
	v1.HandleFunc("/targets", s.targets).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.events).Methods(http.MethodGet)
	return r
}

// ListenAndServe 监听直到 ctx 取消，随后优雅关闭
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// 事件流连接随 ctx 一起结束
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP服务已启动", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("HTTP服务已停止")
	return nil
}
