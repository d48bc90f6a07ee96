package handler

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"student-roster/internal/dto"
	"student-roster/internal/service"
	"student-roster/pkg/response"
)

const maxImportFileSize = 5 << 20

// RecordHandler 学生记录模块 HTTP 处理器
type RecordHandler struct {
	recordSvc service.RecordService
}

// NewRecordHandler 创建 RecordHandler
func NewRecordHandler(recordSvc service.RecordService) *RecordHandler {
	return &RecordHandler{recordSvc: recordSvc}
}

// ListRecords 获取全部记录
// GET /records?sort=id|name
func (h *RecordHandler) ListRecords(c *gin.Context) {
	var req dto.RecordListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "排序方式只能为 id 或 name")
		return
	}

	records, err := h.recordSvc.List(c.Request.Context(), req.Sort)
	if err != nil {
		h.handleRecordError(c, err)
		return
	}

	response.OK(c, records)
}

// SearchRecords 按编号或姓名搜索
// GET /records/search?query=
func (h *RecordHandler) SearchRecords(c *gin.Context) {
	var req dto.RecordSearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "搜索关键字不能为空")
		return
	}

	records, err := h.recordSvc.Search(c.Request.Context(), req.Query)
	if err != nil {
		h.handleRecordError(c, err)
		return
	}

	response.OK(c, records)
}

// GetRecord 获取单条记录
// GET /records/:id
func (h *RecordHandler) GetRecord(c *gin.Context) {
	id, ok := parseRecordID(c)
	if !ok {
		return
	}

	rec, err := h.recordSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleRecordError(c, err)
		return
	}

	response.OK(c, rec)
}

// CreateRecord 新增记录
// POST /records
func (h *RecordHandler) CreateRecord(c *gin.Context) {
	var req dto.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, bindingMessage(err))
		return
	}

	rec, err := h.recordSvc.Create(c.Request.Context(), &req)
	if err != nil {
		h.handleRecordError(c, err)
		return
	}

	response.Created(c, dto.CreatedResponse{Success: true, Created: *rec})
}

// UpdateRecord 整体更新描述字段
// PUT /records/:id
func (h *RecordHandler) UpdateRecord(c *gin.Context) {
	id, ok := parseRecordID(c)
	if !ok {
		return
	}

	var req dto.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, bindingMessage(err))
		return
	}

	rec, err := h.recordSvc.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.handleRecordError(c, err)
		return
	}

	response.OK(c, dto.UpdatedResponse{Success: true, Updated: *rec})
}

// UpdateAttendance 更新到场标记
// PUT /records/:id/attendance
func (h *RecordHandler) UpdateAttendance(c *gin.Context) {
	id, ok := parseRecordID(c)
	if !ok {
		return
	}

	var req dto.AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "attended1 与 attended2 均为必填")
		return
	}

	rec, err := h.recordSvc.UpdateAttendance(c.Request.Context(), id, &req)
	if err != nil {
		h.handleRecordError(c, err)
		return
	}

	response.OK(c, dto.UpdatedResponse{Success: true, Updated: *rec})
}

// DeleteRecord 删除记录
// DELETE /records/:id
func (h *RecordHandler) DeleteRecord(c *gin.Context) {
	id, ok := parseRecordID(c)
	if !ok {
		return
	}

	if err := h.recordSvc.Delete(c.Request.Context(), id); err != nil {
		h.handleRecordError(c, err)
		return
	}

	response.OK(c, dto.DeletedResponse{Success: true})
}

// ImportRecords 上传文件整表导入
// POST /records/import  multipart/form-data, field="file"（.xlsx / .json）
func (h *RecordHandler) ImportRecords(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, "请上传 .xlsx 或 .json 文件")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImportFileSize+1))
	if err != nil {
		response.BadRequest(c, "读取上传文件失败")
		return
	}
	if len(data) > maxImportFileSize {
		response.BadRequest(c, "上传文件过大")
		return
	}

	rows, err := h.recordSvc.ParseImportFile(header.Filename, data)
	if err != nil {
		h.handleRecordError(c, err)
		return
	}

	resp, err := h.recordSvc.ImportRecords(c.Request.Context(), rows)
	if err != nil {
		h.handleRecordError(c, err)
		return
	}

	response.OK(c, resp)
}

// ── helpers ──

func parseRecordID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "无效的记录ID")
		return 0, false
	}
	return id, true
}

func (h *RecordHandler) handleRecordError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRecordNotFound):
		response.NotFound(c, "记录不存在")
	case errors.Is(err, service.ErrRecordInvalid):
		response.BadRequest(c, "姓名与编号不能为空")
	case errors.Is(err, service.ErrQueryEmpty):
		response.BadRequest(c, "搜索关键字不能为空")
	case errors.Is(err, service.ErrImportUnsupported),
		errors.Is(err, service.ErrImportInvalidJSON),
		errors.Is(err, service.ErrImportBadHeader),
		errors.Is(err, service.ErrImportNoData),
		errors.Is(err, service.ErrImportTooManyRows):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c)
	}
}
