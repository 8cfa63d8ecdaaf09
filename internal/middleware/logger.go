package middleware

import (
	"time"

	"tradectl/internal/consts"
	"tradectl/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Middleware 全局中间件，实现 server.Router
type Middleware struct{}

func NewMiddleware() *Middleware {
	return &Middleware{}
}

func (m *Middleware) Load(g *gin.Engine) {
	g.Use(gin.Recovery(), RequestId(), NoCache(), Logger)
}

func Logger(c *gin.Context) {
	// 请求前
	t := time.Now()
	reqPath := c.Request.URL.Path
	reqId := c.GetString(consts.RequestId)

	c.Next()
	// 请求后
	logger.Debug("[Request]",
		logger.Pair(consts.RequestId, reqId),
		logger.Pair("host", c.ClientIP()),
		logger.Pair("path", reqPath),
		logger.Pair("method", c.Request.Method),
		logger.Pair("status", c.Writer.Status()),
		logger.Pair("cost", time.Since(t)))
}
