package response

import (
	"net/http"

	"tradectl/internal/consts"
	"tradectl/internal/errs"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeInternal      = 1000
	CodeUnavailable   = 1001
	CodeUnauthorized  = 1002
	CodeConfiguration = 1003
	CodeRejected      = 1004
)

// 代表响应给客户端的的一个消息结构，包括错误码，错误信息，响应数据
type ApiResponse struct {
	RequestId string      `json:"request_id"` // 请求的唯一ID
	Code      int         `json:"code"`       // 错误码 0表示无错误
	Message   string      `json:"message"`    // 提示信息
	Data      interface{} `json:"data"`       // 响应数据
}

// DecodeErr 按错误分类给出错误码和 http 状态码
func DecodeErr(err error) (code, status int, message string) {
	if err == nil {
		return CodeSuccess, http.StatusOK, "success"
	}
	switch errs.KindOf(err) {
	case errs.KindTransient:
		return CodeUnavailable, http.StatusServiceUnavailable, err.Error()
	case errs.KindAuthentication:
		return CodeUnauthorized, http.StatusUnauthorized, err.Error()
	case errs.KindConfiguration:
		return CodeConfiguration, http.StatusNotFound, err.Error()
	case errs.KindOrderRejection:
		return CodeRejected, http.StatusBadRequest, err.Error()
	}
	return CodeInternal, http.StatusInternalServerError, err.Error()
}

// 发送json格式数据
func JSON(c *gin.Context, err error, data interface{}) {
	code, status, message := DecodeErr(err)
	c.JSON(status, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      code,
		Message:   message,
		Data:      data,
	})
}
