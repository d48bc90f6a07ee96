package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"student-roster/internal/model"
	pkgerrors "student-roster/pkg/errors"
)

// RecordSort 列表排序方式
type RecordSort string

const (
	SortByID   RecordSort = "id"
	SortByName RecordSort = "name"
)

// RecordFields 可整行替换的描述字段
type RecordFields struct {
	Name      string
	Code      string
	Teacher   *string
	Guardian1 *string
	Guardian2 *string
}

// RecordRepository 学生记录数据访问接口
// 未找到时返回 gorm.ErrRecordNotFound，连接类故障包装为 ErrStoreUnavailable
type RecordRepository interface {
	List(ctx context.Context, sort RecordSort) ([]model.Record, error)
	Search(ctx context.Context, query string) ([]model.Record, error)
	GetByID(ctx context.Context, id int64) (*model.Record, error)
	Create(ctx context.Context, rec *model.Record) error
	Update(ctx context.Context, id int64, fields RecordFields) (*model.Record, error)
	UpdateAttendance(ctx context.Context, id int64, attended1, attended2 bool) (*model.Record, error)
	Delete(ctx context.Context, id int64) error
	ReplaceAll(ctx context.Context, records []model.Record) (int, error)
	Ping(ctx context.Context) error
}

type recordRepo struct {
	db *gorm.DB
}

// NewRecordRepo 创建 RecordRepository 实例
func NewRecordRepo(db *gorm.DB) RecordRepository {
	return &recordRepo{db: db}
}

func (r *recordRepo) List(ctx context.Context, sort RecordSort) ([]model.Record, error) {
	order := "id ASC"
	if sort == SortByName {
		order = "name ASC, id ASC"
	}

	records := make([]model.Record, 0)
	err := r.db.WithContext(ctx).Order(order).Find(&records).Error
	return records, wrap(err)
}

// Search 编号精确匹配，或姓名包含（不区分大小写）
func (r *recordRepo) Search(ctx context.Context, query string) ([]model.Record, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	records := make([]model.Record, 0)
	err := r.db.WithContext(ctx).
		Where("code = ? OR "+r.lowerFunc()+"(name) LIKE ? ESCAPE '!'", query, pattern).
		Order("id ASC").
		Find(&records).Error
	return records, wrap(err)
}

// lowerFunc sqlite 使用连接时注册的 ulower，其余后端的 LOWER 已支持 Unicode
func (r *recordRepo) lowerFunc() string {
	if r.db.Dialector.Name() == "sqlite" {
		return "ulower"
	}
	return "LOWER"
}

func (r *recordRepo) GetByID(ctx context.Context, id int64) (*model.Record, error) {
	var rec model.Record
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, wrap(err)
	}
	return &rec, nil
}

// Create 主键由数据库自增分配
func (r *recordRepo) Create(ctx context.Context, rec *model.Record) error {
	rec.ID = 0
	return wrap(r.db.WithContext(ctx).Create(rec).Error)
}

func (r *recordRepo) Update(ctx context.Context, id int64, fields RecordFields) (*model.Record, error) {
	return r.updateAndReload(ctx, id, map[string]interface{}{
		"name":      fields.Name,
		"code":      fields.Code,
		"teacher":   fields.Teacher,
		"guardian1": fields.Guardian1,
		"guardian2": fields.Guardian2,
	})
}

func (r *recordRepo) UpdateAttendance(ctx context.Context, id int64, attended1, attended2 bool) (*model.Record, error) {
	return r.updateAndReload(ctx, id, map[string]interface{}{
		"attended1": attended1,
		"attended2": attended2,
	})
}

// updateAndReload 单事务内更新并回读；影响行数为 0 视为不存在
func (r *recordRepo) updateAndReload(ctx context.Context, id int64, values map[string]interface{}) (*model.Record, error) {
	values["updated_at"] = time.Now().UTC()

	var rec model.Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Record{}).Where("id = ?", id).Updates(values)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("id = ?", id).First(&rec).Error
	})
	if err != nil {
		return nil, wrap(err)
	}
	return &rec, nil
}

func (r *recordRepo) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Record{})
	if result.Error != nil {
		return wrap(result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReplaceAll 清空整表后批量写入（导入 / 种子数据使用）
func (r *recordRepo) ReplaceAll(ctx context.Context, records []model.Record) (int, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Record{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		for i := range records {
			records[i].ID = 0
		}
		return tx.CreateInBatches(records, 200).Error
	})
	if err != nil {
		return 0, wrap(err)
	}
	return len(records), nil
}

func (r *recordRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return wrap(err)
	}
	return wrap(sqlDB.PingContext(ctx))
}

// ── helpers ──

func wrap(err error) error {
	if err == nil || !pkgerrors.IsUnavailable(err) {
		return err
	}
	return fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
