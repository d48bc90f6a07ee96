package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"student-roster/internal/model"
	"student-roster/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 导出全部记录，按姓名排序（与到场签到视图一致）
//   - 表头与导入识别的列名相同，导出文件可直接回导
//   - 以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	ExportRecords(ctx context.Context) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger, now: time.Now}
}

var exportHeaders = []string{"name", "code", "teacher", "guardian1", "guardian2", "attended1", "attended2"}

// ═══════════════════════════════════════════════════════════
// ExportRecords 导出学生记录为 Excel
// ═══════════════════════════════════════════════════════════
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportRecords(ctx context.Context) (*bytes.Buffer, string, error) {
	records, err := s.repo.Record.List(ctx, repository.SortByName)
	if err != nil {
		s.logger.Error("查询记录失败", zap.Error(err))
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "records"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 28)
	f.SetColWidth(sheetName, "B", "B", 14)
	f.SetColWidth(sheetName, "C", "E", 24)
	f.SetColWidth(sheetName, "F", "G", 11)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	for i, h := range exportHeaders {
		f.SetCellValue(sheetName, cell(colName(i), 1), h)
	}
	f.SetCellStyle(sheetName, "A1", cell(colName(len(exportHeaders)-1), 1), headerStyle)
	f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	for i := range records {
		writeRecordRow(f, sheetName, i+2, &records[i])
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("records_%s.xlsx", s.now().Format("20060102"))
	return buf, filename, nil
}

func writeRecordRow(f *excelize.File, sheet string, row int, rec *model.Record) {
	values := []interface{}{
		rec.Name,
		rec.Code,
		model.StringValue(rec.Teacher),
		model.StringValue(rec.Guardian1),
		model.StringValue(rec.Guardian2),
		rec.Attended1,
		rec.Attended2,
	}
	for i, v := range values {
		f.SetCellValue(sheet, cell(colName(i), row), v)
	}
}

// colName 0-based 列号转 Excel 列名
func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
