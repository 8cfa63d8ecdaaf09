// Package server 运维用的 HTTP 服务：健康检查、状态、参数和 Prometheus 指标。
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tradectl/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Router 加载路由，使用侧提供接口，实现侧需要实现该接口
type Router interface {
	Load(engine *gin.Engine)
}

type Server struct {
	listen       string
	maxPingCount int
	engine       *gin.Engine
	f            func()
}

func NewServer(listen, mode string, rs ...Router) *Server {
	// 设置gin启动模式，必须在创建gin实例之前
	if mode != "" {
		gin.SetMode(mode)
	}
	g := gin.New()
	for _, r := range rs {
		r.Load(g)
	}
	return &Server{listen: listen, maxPingCount: 10, engine: g}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// RegisterOnShutdown 注册shutdown后的回调处理函数，用于清理资源
func (s *Server) RegisterOnShutdown(_f func()) {
	s.f = _f
}

// Run 阻塞直到 ctx 取消，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	srv := http.Server{
		Addr:    s.listen,
		Handler: s.engine,
	}
	if s.f != nil {
		srv.RegisterOnShutdown(s.f)
	}

	// health check
	go func() {
		if err := Ping(ctx, s.listen, s.maxPingCount); err != nil {
			logger.Errorf("server no response: %v", err)
			return
		}
		logger.Infof("server started success! port: %s", s.listen)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server start failed on %s: %w", s.listen, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infof("server shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Infof("server stop on %s", s.listen)
	return nil
}

// Ping 用来检查是否程序正常启动
func Ping(ctx context.Context, listen string, maxCount int) error {
	if len(listen) == 0 {
		return errors.New("please specify the service port")
	}
	if strings.HasPrefix(listen, ":") {
		listen = "localhost" + listen
	}
	url := fmt.Sprintf("http://%s/ping", listen)
	for i := 1; i <= maxCount; i++ {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		logger.Infof("等待服务在线, 已等待 %d 秒，最多等待 %d 秒", i, maxCount)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("服务启动失败，端口 %s", listen)
}
