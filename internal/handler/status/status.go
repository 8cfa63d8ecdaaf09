package status

import (
	"tradectl/internal/store"
	"tradectl/internal/trader"
	"tradectl/pkg/response"

	"github.com/gin-gonic/gin"
)

// StatusProvider 实盘会话，未启动交易时为 nil
type StatusProvider interface {
	Status() trader.Status
}

type Handler struct {
	session StatusProvider
	params  store.Store
}

func NewHandler(session StatusProvider, params store.Store) *Handler {
	return &Handler{session: session, params: params}
}

// StatusGet 最近一次决策的快照
func (h *Handler) StatusGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.session == nil {
			response.JSON(c, nil, gin.H{"trading": false})
			return
		}
		response.JSON(c, nil, h.session.Status())
	}
}

// ParamsGet 当前持久化的参数集
func (h *Handler) ParamsGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		ps, err := h.params.Load(c.Request.Context())
		if err != nil {
			response.JSON(c, err, nil)
			return
		}
		response.JSON(c, nil, ps)
	}
}
