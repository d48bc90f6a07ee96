package handler

import (
	"github.com/gin-gonic/gin"

	"student-roster/internal/dto"
	"student-roster/internal/service"
	"student-roster/pkg/response"
)

// ChangesPath 变更推送路由
const ChangesPath = "/records/changes"

// MetaHandler 运行状态与前端参数
type MetaHandler struct {
	recordSvc    service.RecordService
	feedEnabled  bool
	requireToken bool
}

// NewMetaHandler 创建 MetaHandler
func NewMetaHandler(recordSvc service.RecordService, feedEnabled, requireToken bool) *MetaHandler {
	return &MetaHandler{recordSvc: recordSvc, feedEnabled: feedEnabled, requireToken: requireToken}
}

// ClientConfig 前端运行参数，不含任何后端凭据
// GET /client-config
func (h *MetaHandler) ClientConfig(c *gin.Context) {
	resp := dto.ClientConfigResponse{
		FeedEnabled:  h.feedEnabled,
		RequireToken: h.requireToken,
	}
	if h.feedEnabled {
		resp.FeedPath = ChangesPath
	}
	response.OK(c, resp)
}

// Health 健康检查（含存储连通性）
// GET /health
func (h *MetaHandler) Health(c *gin.Context) {
	if err := h.recordSvc.Ping(c.Request.Context()); err != nil {
		response.ServiceUnavailable(c, "存储服务不可用")
		return
	}
	response.OK(c, gin.H{"status": "ok"})
}
