package router

import (
	"tradectl/internal/handler/ping"
	"tradectl/internal/handler/status"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ApiRouter struct {
	statusHandler *status.Handler
}

func NewApiRouter(statusHandler *status.Handler) *ApiRouter {
	return &ApiRouter{statusHandler: statusHandler}
}

func (api *ApiRouter) Load(g *gin.Engine) {
	g.GET("/ping", ping.Ping())
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))
	g.GET("/status", api.statusHandler.StatusGet())
	g.GET("/params", api.statusHandler.ParamsGet())
}
