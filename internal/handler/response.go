package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tetherapp/tether/internal/service/chat"
)

// errorBody 错误响应体
type errorBody struct {
	Error string `json:"error"`
}

// success 成功响应
func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// created 创建成功响应
func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// fail 按状态码返回错误
func fail(c *gin.Context, status int, message string) {
	c.JSON(status, errorBody{Error: message})
}

// serviceError 按错误类别映射状态码
func serviceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch chat.KindOf(err) {
	case chat.KindValidation:
		status = http.StatusBadRequest
	case chat.KindAuth:
		status = http.StatusUnauthorized
	case chat.KindNotFound:
		status = http.StatusNotFound
	case chat.KindConflict:
		status = http.StatusConflict
	case chat.KindUpstream, chat.KindInternal:
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if e, ok := err.(*chat.Error); ok {
		message = e.Message
	}
	fail(c, status, message)
}

// getPagination 获取分页参数
func getPagination(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return
}

// getUserID 获取用户ID
func getUserID(c *gin.Context) string {
	if id, exists := c.Get("user_id"); exists {
		if userID, ok := id.(string); ok {
			return userID
		}
	}
	return ""
}
