package livehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"opto/internal/engine"
	"opto/internal/ledger"
	"opto/internal/logger"
	"opto/internal/report"
)

// Server 提供 /api/live 下的运行时查询与人工风控操作。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 live HTTP 服务依赖。
type ServerConfig struct {
	Addr            string
	Engine          *engine.Engine
	Ledger          *ledger.Ledger
	StartingBalance float64
}

// NewServer 构建 live HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil || cfg.Ledger == nil {
		return nil, errors.New("live http server requires engine and ledger")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9982"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/live")
	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg.Engine.Status())
	})
	api.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"stats":     cfg.Ledger.Stats(),
			"daily_pnl": cfg.Ledger.DailyPnL(),
			"trades":    cfg.Ledger.Len(),
		})
	})
	api.GET("/trades", func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg.Ledger.Records())
	})
	api.GET("/report", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		if err := report.RenderHTML(c.Writer, cfg.Ledger.Records(), cfg.StartingBalance); err != nil {
			logger.Errorf("render report failed: %v", err)
			c.AbortWithStatus(http.StatusInternalServerError)
		}
	})
	// 熔断只能从这里人工恢复
	api.POST("/risk/resume", func(c *gin.Context) {
		cfg.Engine.Resume()
		c.JSON(http.StatusOK, gin.H{"resumed": true})
	})

	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger 记录接口的人工操作，便于追踪调用。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		client := c.ClientIP()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), client, time.Since(start))
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler is exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
