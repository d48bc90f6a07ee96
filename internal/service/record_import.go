package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"student-roster/internal/changefeed"
	"student-roster/internal/dto"
	"student-roster/internal/model"
)

// ────────────────────── ParseImportFile ──────────────────────

const maxImportRows = 5000

var (
	ErrImportNoData      = errors.New("导入文件无有效数据行")
	ErrImportTooManyRows = fmt.Errorf("数据行数超过上限 %d 行", maxImportRows)
	ErrImportBadHeader   = errors.New("表头缺少必要列（name/code）")
	ErrImportUnsupported = errors.New("仅支持 .xlsx 或 .json 文件")
	ErrImportInvalidJSON = errors.New("JSON 内容无法解析，应为对象数组")
)

// ImportRecordRow 导入文件解析后的单行数据
type ImportRecordRow struct {
	Row       int
	Name      string
	Code      string
	Teacher   string
	Guardian1 string
	Guardian2 string
	Attended1 bool
	Attended2 bool
}

// 表头 / JSON 键别名，兼容旧版种子数据的西语字段
var importColumns = map[string][]string{
	"name":      {"name", "nombre", "姓名"},
	"code":      {"code", "codigo", "código", "编号"},
	"teacher":   {"teacher", "docente", "老师"},
	"guardian1": {"guardian1", "encargado", "encargado1", "监护人1"},
	"guardian2": {"guardian2", "encargado2", "监护人2"},
	"attended1": {"attended1", "asistio1", "到场1"},
	"attended2": {"attended2", "asistio2", "到场2"},
}

// ParseImportFile 按扩展名解析 .xlsx / .json 导入文件
func (s *recordService) ParseImportFile(filename string, data []byte) ([]ImportRecordRow, error) {
	var (
		rows []ImportRecordRow
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		rows, err = parseXLSX(data)
	case ".json":
		rows, err = parseJSON(data)
	default:
		return nil, ErrImportUnsupported
	}
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, ErrImportNoData
	}
	if len(rows) > maxImportRows {
		return nil, ErrImportTooManyRows
	}
	return rows, nil
}

func parseXLSX(data []byte) ([]ImportRecordRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("无法解析Excel文件: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	excelRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("读取工作表失败: %w", err)
	}
	if len(excelRows) < 2 {
		return nil, ErrImportNoData
	}

	colIndex := parseHeaderIndex(excelRows[0])
	if colIndex["name"] < 0 || colIndex["code"] < 0 {
		return nil, ErrImportBadHeader
	}

	var rows []ImportRecordRow
	for i := 1; i < len(excelRows); i++ {
		line := excelRows[i]
		get := func(key string) string {
			idx := colIndex[key]
			if idx < 0 || idx >= len(line) {
				return ""
			}
			return strings.TrimSpace(line[idx])
		}

		item := ImportRecordRow{
			Row:       i + 1,
			Name:      get("name"),
			Code:      get("code"),
			Teacher:   get("teacher"),
			Guardian1: get("guardian1"),
			Guardian2: get("guardian2"),
			Attended1: parseFlag(get("attended1")),
			Attended2: parseFlag(get("attended2")),
		}
		if item.Name == "" && item.Code == "" && item.Teacher == "" && item.Guardian1 == "" && item.Guardian2 == "" {
			continue
		}
		rows = append(rows, item)
	}
	return rows, nil
}

// parseHeaderIndex 解析表头，返回字段 -> 列索引映射，缺失列为 -1
func parseHeaderIndex(header []string) map[string]int {
	idx := make(map[string]int, len(importColumns))
	for key := range importColumns {
		idx[key] = -1
	}
	for i, h := range header {
		if key, ok := columnKey(h); ok && idx[key] < 0 {
			idx[key] = i
		}
	}
	return idx
}

func columnKey(header string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(header))
	for key, aliases := range importColumns {
		for _, alias := range aliases {
			if lower == alias {
				return key, true
			}
		}
	}
	return "", false
}

// parseJSON 对象数组；编号可能是数字
func parseJSON(data []byte) ([]ImportRecordRow, error) {
	var raw []map[string]interface{}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, ErrImportInvalidJSON
	}

	rows := make([]ImportRecordRow, 0, len(raw))
	for i, obj := range raw {
		fields := make(map[string]interface{}, len(obj))
		for k, v := range obj {
			if key, ok := columnKey(k); ok {
				if _, seen := fields[key]; !seen {
					fields[key] = v
				}
			}
		}

		rows = append(rows, ImportRecordRow{
			Row:       i + 1,
			Name:      jsonText(fields["name"]),
			Code:      jsonText(fields["code"]),
			Teacher:   jsonText(fields["teacher"]),
			Guardian1: jsonText(fields["guardian1"]),
			Guardian2: jsonText(fields["guardian2"]),
			Attended1: parseFlag(jsonText(fields["attended1"])),
			Attended2: parseFlag(jsonText(fields["attended2"])),
		})
	}
	return rows, nil
}

func jsonText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "si", "sí", "x", "是":
		return true
	}
	return false
}

// ────────────────────── ImportRecords ──────────────────────

// ImportRecords 校验后整表替换；姓名或编号为空的行计入失败列表
// 没有任何有效行时不清空现有数据
func (s *recordService) ImportRecords(ctx context.Context, rows []ImportRecordRow) (*dto.ImportRecordResponse, error) {
	resp := &dto.ImportRecordResponse{Total: len(rows), Failed: []dto.ImportFailure{}}

	records := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		if row.Name == "" || row.Code == "" {
			resp.Failed = append(resp.Failed, dto.ImportFailure{Row: row.Row, Reason: ErrRecordInvalid.Error()})
			continue
		}
		records = append(records, model.Record{
			Name:      row.Name,
			Code:      row.Code,
			Teacher:   model.OptionalString(row.Teacher),
			Guardian1: model.OptionalString(row.Guardian1),
			Guardian2: model.OptionalString(row.Guardian2),
			Attended1: row.Attended1,
			Attended2: row.Attended2,
		})
	}
	if len(records) == 0 {
		return nil, ErrImportNoData
	}

	n, err := s.repo.Record.ReplaceAll(ctx, records)
	if err != nil {
		s.logger.Error("批量导入记录失败", zap.Int("rows", len(records)), zap.Error(err))
		return nil, err
	}

	s.logger.Info("批量导入完成",
		zap.Int("total", resp.Total),
		zap.Int("imported", n),
		zap.Int("failed", len(resp.Failed)),
	)

	resp.Success = true
	resp.Imported = n
	s.publish(ctx, changefeed.Resync())
	return resp, nil
}
