package dto

import "student-roster/internal/model"

// ── 学生记录模块 DTO ──

// RecordRequest 创建 / 整体更新记录请求
// 四个描述字段与编号整体替换；到场标记走单独接口
type RecordRequest struct {
	Name      string  `json:"name"      binding:"required,max=200"`
	Code      string  `json:"code"      binding:"required,max=64"`
	Teacher   *string `json:"teacher"   binding:"omitempty,max=200"`
	Guardian1 *string `json:"guardian1" binding:"omitempty,max=200"`
	Guardian2 *string `json:"guardian2" binding:"omitempty,max=200"`
}

// AttendanceRequest 到场标记更新请求
type AttendanceRequest struct {
	Attended1 *bool `json:"attended1" binding:"required"`
	Attended2 *bool `json:"attended2" binding:"required"`
}

// 列表排序方式
const (
	SortByID   = "id"
	SortByName = "name"
)

// RecordListRequest 列表查询参数
type RecordListRequest struct {
	Sort string `form:"sort" binding:"omitempty,oneof=id name"`
}

// RecordSearchRequest 搜索参数
type RecordSearchRequest struct {
	Query string `form:"query" binding:"required"`
}

// CreatedResponse 创建成功响应
type CreatedResponse struct {
	Success bool         `json:"success"`
	Created model.Record `json:"created"`
}

// UpdatedResponse 更新成功响应
type UpdatedResponse struct {
	Success bool         `json:"success"`
	Updated model.Record `json:"updated"`
}

// DeletedResponse 删除成功响应
type DeletedResponse struct {
	Success bool `json:"success"`
}

// ImportFailure 导入失败的行
type ImportFailure struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportRecordResponse 批量导入结果
type ImportRecordResponse struct {
	Success  bool            `json:"success"`
	Total    int             `json:"total"`
	Imported int             `json:"imported"`
	Failed   []ImportFailure `json:"failed"`
}

// ClientConfigResponse 前端运行参数（不含任何后端凭据）
type ClientConfigResponse struct {
	FeedEnabled  bool   `json:"feed_enabled"`
	FeedPath     string `json:"feed_path,omitempty"`
	RequireToken bool   `json:"require_token"`
}
