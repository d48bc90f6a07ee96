package syncview

import (
	"strings"

	"student-roster/internal/model"
)

// Matches 姓名或编号包含关键字（均不区分大小写）；空关键字匹配全部
func Matches(rec *model.Record, filter string) bool {
	q := strings.ToLower(strings.TrimSpace(filter))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(rec.Name), q) ||
		strings.Contains(strings.ToLower(rec.Code), q)
}

// ApplyFilter 返回匹配的记录副本，保持原顺序
func ApplyFilter(records []model.Record, filter string) []model.Record {
	out := make([]model.Record, 0, len(records))
	for i := range records {
		if Matches(&records[i], filter) {
			out = append(out, records[i])
		}
	}
	return out
}
