package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"student-roster/internal/changefeed"
	"student-roster/internal/dto"
	"student-roster/internal/model"
	"student-roster/internal/repository"
)

// ── 学生记录模块业务错误 ──

var (
	ErrRecordNotFound = errors.New("记录不存在")
	ErrRecordInvalid  = errors.New("姓名与编号不能为空")
	ErrQueryEmpty     = errors.New("搜索关键字不能为空")
)

// RecordService 学生记录业务接口
type RecordService interface {
	List(ctx context.Context, sort string) ([]model.Record, error)
	Search(ctx context.Context, query string) ([]model.Record, error)
	GetByID(ctx context.Context, id int64) (*model.Record, error)
	Create(ctx context.Context, req *dto.RecordRequest) (*model.Record, error)
	Update(ctx context.Context, id int64, req *dto.RecordRequest) (*model.Record, error)
	UpdateAttendance(ctx context.Context, id int64, req *dto.AttendanceRequest) (*model.Record, error)
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error

	// 批量导入：整表替换
	ParseImportFile(filename string, data []byte) ([]ImportRecordRow, error)
	ImportRecords(ctx context.Context, rows []ImportRecordRow) (*dto.ImportRecordResponse, error)
}

type recordService struct {
	repo   *repository.Repository
	pub    changefeed.Publisher
	logger *zap.Logger
}

// NewRecordService 创建 RecordService 实例
// pub 为 nil 时不发布变更事件（例如事件由数据库触发器产生）
func NewRecordService(repo *repository.Repository, pub changefeed.Publisher, logger *zap.Logger) RecordService {
	return &recordService{repo: repo, pub: pub, logger: logger}
}

// ────────────────────── List / Search ──────────────────────

func (s *recordService) List(ctx context.Context, sort string) ([]model.Record, error) {
	order := repository.SortByID
	if sort == dto.SortByName {
		order = repository.SortByName
	}

	records, err := s.repo.Record.List(ctx, order)
	if err != nil {
		s.logger.Error("列出记录失败", zap.Error(err))
		return nil, err
	}
	return records, nil
}

func (s *recordService) Search(ctx context.Context, query string) ([]model.Record, error) {
	// 仅用裁剪结果判空，编号按原样精确比较
	if strings.TrimSpace(query) == "" {
		return nil, ErrQueryEmpty
	}

	records, err := s.repo.Record.Search(ctx, query)
	if err != nil {
		s.logger.Error("搜索记录失败", zap.String("query", query), zap.Error(err))
		return nil, err
	}
	return records, nil
}

func (s *recordService) GetByID(ctx context.Context, id int64) (*model.Record, error) {
	rec, err := s.repo.Record.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapErr("查询记录失败", id, err)
	}
	return rec, nil
}

// ────────────────────── Create ──────────────────────

func (s *recordService) Create(ctx context.Context, req *dto.RecordRequest) (*model.Record, error) {
	fields, err := normalize(req)
	if err != nil {
		return nil, err
	}

	rec := &model.Record{
		Name:      fields.Name,
		Code:      fields.Code,
		Teacher:   fields.Teacher,
		Guardian1: fields.Guardian1,
		Guardian2: fields.Guardian2,
	}
	if err := s.repo.Record.Create(ctx, rec); err != nil {
		s.logger.Error("创建记录失败", zap.Error(err))
		return nil, err
	}

	s.publish(ctx, changefeed.Inserted(rec))
	return rec, nil
}

// ────────────────────── Update ──────────────────────

func (s *recordService) Update(ctx context.Context, id int64, req *dto.RecordRequest) (*model.Record, error) {
	fields, err := normalize(req)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.Record.Update(ctx, id, fields)
	if err != nil {
		return nil, s.mapErr("更新记录失败", id, err)
	}

	s.publish(ctx, changefeed.Updated(rec))
	return rec, nil
}

func (s *recordService) UpdateAttendance(ctx context.Context, id int64, req *dto.AttendanceRequest) (*model.Record, error) {
	if req.Attended1 == nil || req.Attended2 == nil {
		return nil, fmt.Errorf("%w: 缺少到场标记", ErrRecordInvalid)
	}

	rec, err := s.repo.Record.UpdateAttendance(ctx, id, *req.Attended1, *req.Attended2)
	if err != nil {
		return nil, s.mapErr("更新到场标记失败", id, err)
	}

	s.publish(ctx, changefeed.Updated(rec))
	return rec, nil
}

// ────────────────────── Delete ──────────────────────

func (s *recordService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Record.Delete(ctx, id); err != nil {
		return s.mapErr("删除记录失败", id, err)
	}

	s.publish(ctx, changefeed.Deleted(id))
	return nil
}

// Ping 存储健康检查
func (s *recordService) Ping(ctx context.Context) error {
	return s.repo.Record.Ping(ctx)
}

// ────────────────────── helpers ──────────────────────

// normalize 去除首尾空白；姓名、编号为空时拒绝，可选字段空串存为 NULL
func normalize(req *dto.RecordRequest) (repository.RecordFields, error) {
	fields := repository.RecordFields{
		Name:      strings.TrimSpace(req.Name),
		Code:      strings.TrimSpace(req.Code),
		Teacher:   trimOptional(req.Teacher),
		Guardian1: trimOptional(req.Guardian1),
		Guardian2: trimOptional(req.Guardian2),
	}
	if fields.Name == "" || fields.Code == "" {
		return repository.RecordFields{}, ErrRecordInvalid
	}
	return fields, nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	return model.OptionalString(strings.TrimSpace(*s))
}

func (s *recordService) mapErr(msg string, id int64, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	s.logger.Error(msg, zap.Int64("id", id), zap.Error(err))
	return err
}

// publish 尽力投递；失败只记录日志，不影响已提交的写操作
func (s *recordService) publish(ctx context.Context, ev changefeed.Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("发布变更事件失败",
			zap.String("type", string(ev.Type)),
			zap.Int64("id", ev.ID),
			zap.Error(err),
		)
	}
}
