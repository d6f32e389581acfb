package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tetherapp/tether/internal/service"
)

// AttachmentHandler 附件上传处理器
type AttachmentHandler struct {
	svc *service.Services
}

// NewAttachmentHandler 创建附件处理器
func NewAttachmentHandler(svc *service.Services) *AttachmentHandler {
	return &AttachmentHandler{svc: svc}
}

// Upload 上传附件
// 返回的 file_url 由客户端随聊天请求的 file_urls 传回
func (h *AttachmentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "file is required")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "failed to read file")
		return
	}
	defer f.Close()

	result, err := h.svc.File.Upload(
		c.Request.Context(),
		getUserID(c),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		f,
	)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	created(c, result)
}
