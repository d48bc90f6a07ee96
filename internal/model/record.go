package model

// Record 学生登记记录，对应 records 表
// 一行一个学生：姓名、编号、任课老师，以及两位监护人及其到场标记
type Record struct {
	ID        int64   `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name      string  `gorm:"type:text;not null;index"  json:"name"`
	Code      string  `gorm:"type:text;not null;index"  json:"code"`
	Teacher   *string `gorm:"type:text"                 json:"teacher"`
	Guardian1 *string `gorm:"type:text"                 json:"guardian1"`
	Guardian2 *string `gorm:"type:text"                 json:"guardian2"`
	Attended1 bool    `gorm:"not null;default:false"    json:"attended1"`
	Attended2 bool    `gorm:"not null;default:false"    json:"attended2"`
	BaseModel
}

// TableName 指定表名
func (Record) TableName() string { return "records" }

// StringValue 返回可选文本字段的值，nil 视为空串
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// OptionalString 空串转为 nil，其余返回指针
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
