package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"student-roster/internal/changefeed"
	"student-roster/internal/dto"
	"student-roster/internal/model"
	"student-roster/internal/repository"
	pkgerrors "student-roster/pkg/errors"
)

func setupTestRecordService() (RecordService, *mockRecordRepo, *recordingPublisher) {
	recordRepo := newMockRecordRepo()
	pub := &recordingPublisher{}
	repo := &repository.Repository{Record: recordRepo}
	return NewRecordService(repo, pub, zap.NewNop()), recordRepo, pub
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool { return &b }

// ── Create ──

func TestRecordCreate_TrimsAndPublishes(t *testing.T) {
	svc, repo, pub := setupTestRecordService()

	rec, err := svc.Create(context.Background(), &dto.RecordRequest{
		Name:      "  Ana Ruiz ",
		Code:      " X1",
		Teacher:   strPtr("   "),
		Guardian1: strPtr(" María "),
	})
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	if rec.Name != "Ana Ruiz" || rec.Code != "X1" {
		t.Errorf("字段应去除首尾空白: %+v", rec)
	}
	if rec.Teacher != nil {
		t.Errorf("空白可选字段应存为 nil，实际=%q", *rec.Teacher)
	}
	if model.StringValue(rec.Guardian1) != "María" {
		t.Errorf("Guardian1 期望 María，实际=%q", model.StringValue(rec.Guardian1))
	}
	if len(repo.records) != 1 {
		t.Errorf("期望写入 1 条，实际 %d", len(repo.records))
	}
	if got := pub.types(); !reflect.DeepEqual(got, []changefeed.EventType{changefeed.EventInsert}) {
		t.Errorf("期望发布 insert 事件，实际 %v", got)
	}
	if pub.events[0].Record.ID != rec.ID {
		t.Errorf("事件应携带新记录 id=%d，实际 %d", rec.ID, pub.events[0].Record.ID)
	}
}

func TestRecordCreate_BlankNameRejected(t *testing.T) {
	svc, repo, pub := setupTestRecordService()

	_, err := svc.Create(context.Background(), &dto.RecordRequest{Name: "   ", Code: "X1"})
	if !errors.Is(err, ErrRecordInvalid) {
		t.Errorf("期望 ErrRecordInvalid，实际: %v", err)
	}
	if len(repo.records) != 0 || len(pub.events) != 0 {
		t.Error("校验失败时不应写入或发布事件")
	}
}

func TestRecordCreate_PublishFailureDoesNotFail(t *testing.T) {
	svc, _, pub := setupTestRecordService()
	pub.err = changefeed.ErrClosed

	if _, err := svc.Create(context.Background(), &dto.RecordRequest{Name: "a", Code: "b"}); err != nil {
		t.Errorf("事件发布失败不应影响写入结果: %v", err)
	}
}

func TestRecordCreate_NilPublisher(t *testing.T) {
	repo := &repository.Repository{Record: newMockRecordRepo()}
	svc := NewRecordService(repo, nil, zap.NewNop())

	if _, err := svc.Create(context.Background(), &dto.RecordRequest{Name: "a", Code: "b"}); err != nil {
		t.Errorf("未配置发布者时 Create 应成功: %v", err)
	}
}

// ── Update ──

func TestRecordUpdate_ReplacesDescriptiveFields(t *testing.T) {
	svc, _, pub := setupTestRecordService()
	ctx := context.Background()
	created, _ := svc.Create(ctx, &dto.RecordRequest{Name: "Ana", Code: "X1", Teacher: strPtr("T")})

	updated, err := svc.Update(ctx, created.ID, &dto.RecordRequest{Name: "Ana Ruiz", Code: "X2"})
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if updated.Name != "Ana Ruiz" || updated.Code != "X2" || updated.Teacher != nil {
		t.Errorf("应整体替换描述字段: %+v", updated)
	}
	if got := pub.types(); !reflect.DeepEqual(got, []changefeed.EventType{changefeed.EventInsert, changefeed.EventUpdate}) {
		t.Errorf("事件序列不符: %v", got)
	}
}

func TestRecordUpdate_NotFound(t *testing.T) {
	svc, _, pub := setupTestRecordService()

	_, err := svc.Update(context.Background(), 99, &dto.RecordRequest{Name: "a", Code: "b"})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("期望 ErrRecordNotFound，实际: %v", err)
	}
	if len(pub.events) != 0 {
		t.Error("失败的更新不应发布事件")
	}
}

func TestRecordUpdateAttendance(t *testing.T) {
	svc, _, _ := setupTestRecordService()
	ctx := context.Background()
	created, _ := svc.Create(ctx, &dto.RecordRequest{Name: "Ana", Code: "X1"})

	rec, err := svc.UpdateAttendance(ctx, created.ID, &dto.AttendanceRequest{Attended1: boolPtr(true), Attended2: boolPtr(false)})
	if err != nil {
		t.Fatalf("UpdateAttendance 应成功: %v", err)
	}
	if !rec.Attended1 || rec.Attended2 || rec.Name != "Ana" {
		t.Errorf("出勤更新结果不符: %+v", rec)
	}

	if _, err := svc.UpdateAttendance(ctx, 404, &dto.AttendanceRequest{Attended1: boolPtr(true), Attended2: boolPtr(true)}); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("期望 ErrRecordNotFound，实际: %v", err)
	}
	if _, err := svc.UpdateAttendance(ctx, created.ID, &dto.AttendanceRequest{Attended1: boolPtr(true)}); !errors.Is(err, ErrRecordInvalid) {
		t.Errorf("缺少标记期望 ErrRecordInvalid，实际: %v", err)
	}
}

// ── Delete ──

func TestRecordDelete_MissingTwice(t *testing.T) {
	svc, _, pub := setupTestRecordService()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.Delete(ctx, 7); !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("第 %d 次删除期望 ErrRecordNotFound，实际: %v", i+1, err)
		}
	}
	if len(pub.events) != 0 {
		t.Error("删除不存在的记录不应发布事件")
	}
}

func TestRecordDelete_PublishesDelete(t *testing.T) {
	svc, _, pub := setupTestRecordService()
	ctx := context.Background()
	created, _ := svc.Create(ctx, &dto.RecordRequest{Name: "Ana", Code: "X1"})

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete 应成功: %v", err)
	}
	last := pub.events[len(pub.events)-1]
	if last.Type != changefeed.EventDelete || last.ID != created.ID {
		t.Errorf("期望 delete %d 事件，实际 %+v", created.ID, last)
	}
}

// ── List / Search ──

func TestRecordListAndSearch(t *testing.T) {
	svc, _, _ := setupTestRecordService()
	ctx := context.Background()
	svc.Create(ctx, &dto.RecordRequest{Name: "Zoe", Code: "AB1"})
	svc.Create(ctx, &dto.RecordRequest{Name: "Ana", Code: "Z2"})

	byName, _ := svc.List(ctx, dto.SortByName)
	if byName[0].Name != "Ana" {
		t.Errorf("按姓名排序首项应为 Ana，实际 %s", byName[0].Name)
	}
	byID, _ := svc.List(ctx, "")
	if byID[0].Name != "Zoe" {
		t.Errorf("默认按 id 排序首项应为 Zoe，实际 %s", byID[0].Name)
	}

	found, err := svc.Search(ctx, "AB1")
	if err != nil || len(found) != 1 || found[0].Code != "AB1" {
		t.Errorf("搜索 AB1 结果不符: %+v, err=%v", found, err)
	}
	// 编号精确比较，不裁剪首尾空白
	padded, err := svc.Search(ctx, " AB1 ")
	if err != nil || len(padded) != 0 {
		t.Errorf("搜索 \" AB1 \" 不应命中编号 AB1: %+v, err=%v", padded, err)
	}
	if _, err := svc.Search(ctx, "  "); !errors.Is(err, ErrQueryEmpty) {
		t.Errorf("空关键字期望 ErrQueryEmpty，实际: %v", err)
	}
}

func TestRecordList_StoreUnavailable(t *testing.T) {
	svc, repo, _ := setupTestRecordService()
	repo.failAll = true

	if _, err := svc.List(context.Background(), ""); !errors.Is(err, pkgerrors.ErrStoreUnavailable) {
		t.Errorf("期望透传 ErrStoreUnavailable，实际: %v", err)
	}
}
