package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// SetupRoutes 配置所有路由，使用 Route Group 分类
func SetupRoutes(h *Handler, appName string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		resp := gin.H{
			"status":  "ok",
			"service": appName,
		}
		if h.ConnState != nil {
			resp["push_channel"] = string(h.ConnState.State())
		}
		c.JSON(200, resp)
	})

	v1 := r.Group("/api/v1")
	{
		printers := v1.Group("/printers")
		{
			printers.GET("", h.ListPrinters)
			printers.POST("/:id/test", h.TestPrint)
			printers.POST("/:id/drawer", h.OpenDrawer)
		}

		orders := v1.Group("/orders")
		{
			orders.GET("/:id", h.GetOrder)
			orders.POST("/:id/reprint", h.Reprint)
		}

		v1.GET("/acks", h.ListAcks)

		outbox := v1.Group("/outbox")
		{
			outbox.GET("", h.ListOutbox)
			outbox.POST("/:id/cancel", h.CancelOutbox)
		}
	}

	return r
}

// Server 本地状态 API 的 Runner 包装
type Server struct {
	engine *gin.Engine
	listen string
	logger logger.Logger
}

// NewServer 创建 API 服务
func NewServer(engine *gin.Engine, listen string, log logger.Logger) *Server {
	return &Server{
		engine: engine,
		listen: listen,
		logger: log,
	}
}

// Name 实现 worker.Runner
func (s *Server) Name() string {
	return "local-api"
}

// Run 启动 HTTP 服务，ctx 取消时优雅关闭
func (s *Server) Run(ctx context.Context) {
	srv := &http.Server{
		Addr:    s.listen,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Infof(ctx, "[Server] Listening on %s", s.listen)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnf(ctx, "[Server] Shutdown error: %v", err)
		}
		s.logger.Infof(ctx, "[Server] Stopped")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf(ctx, "[Server] Listen failed: %v", err)
		}
	}
}
