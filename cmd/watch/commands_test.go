package main

import (
	"context"
	"errors"
	"testing"

	"student-roster/internal/dto"
	"student-roster/internal/model"
	"student-roster/internal/syncview"
)

// memAPI 内存版记录接口
type memAPI struct {
	records []model.Record
	nextID  int64
	fail    error
}

func (m *memAPI) ListAll(context.Context) ([]model.Record, error) {
	return append([]model.Record(nil), m.records...), nil
}

func (m *memAPI) Create(_ context.Context, req *dto.RecordRequest) (*model.Record, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	m.nextID++
	rec := model.Record{ID: m.nextID, Name: req.Name, Code: req.Code, Teacher: req.Teacher}
	m.records = append(m.records, rec)
	return &rec, nil
}

func (m *memAPI) Update(_ context.Context, id int64, req *dto.RecordRequest) (*model.Record, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	for i := range m.records {
		if m.records[i].ID == id {
			r := &m.records[i]
			r.Name, r.Code, r.Teacher, r.Guardian1, r.Guardian2 = req.Name, req.Code, req.Teacher, req.Guardian1, req.Guardian2
			cp := *r
			return &cp, nil
		}
	}
	return nil, syncview.ErrNotFound
}

func (m *memAPI) UpdateAttendance(_ context.Context, id int64, a1, a2 bool) (*model.Record, error) {
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Attended1, m.records[i].Attended2 = a1, a2
			cp := m.records[i]
			return &cp, nil
		}
	}
	return nil, syncview.ErrNotFound
}

func (m *memAPI) Delete(_ context.Context, id int64) error {
	for i := range m.records {
		if m.records[i].ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return syncview.ErrNotFound
}

func newTestView(t *testing.T, api *memAPI) *syncview.View {
	t.Helper()
	v := syncview.New(syncview.Options{API: api})
	if err := v.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return v
}

func TestRunCommand_AddEditDelete(t *testing.T) {
	api := &memAPI{}
	v := newTestView(t, api)
	ctx := context.Background()

	if err := runCommand(ctx, v, "add name=Ana María Ruiz code=X1 teacher=Sr. Gómez"); err != nil {
		t.Fatalf("add: %v", err)
	}
	recs := v.Records()
	if len(recs) != 1 || recs[0].Name != "Ana María Ruiz" || recs[0].Code != "X1" || model.StringValue(recs[0].Teacher) != "Sr. Gómez" {
		t.Fatalf("unexpected records after add: %+v", recs)
	}
	id := recs[0].ID

	// 未给出的字段保持原值
	if err := runCommand(ctx, v, "edit 1 code=X2"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	got := v.Records()[0]
	if got.Name != "Ana María Ruiz" || got.Code != "X2" || model.StringValue(got.Teacher) != "Sr. Gómez" {
		t.Errorf("unexpected record after edit: %+v", got)
	}
	if _, ok := v.Selected(); ok {
		t.Error("editor should close after a successful edit")
	}

	if err := runCommand(ctx, v, "att 1 1 0"); err != nil {
		t.Fatalf("att: %v", err)
	}
	if r := v.Records()[0]; !r.Attended1 || r.Attended2 {
		t.Errorf("unexpected attendance: %+v", r)
	}

	if err := runCommand(ctx, v, "del 1"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if len(v.Records()) != 0 {
		t.Error("record should be removed")
	}
	if err := runCommand(ctx, v, "edit 1 name=x"); !errors.Is(err, syncview.ErrNotFound) {
		t.Errorf("edit deleted %d: expected ErrNotFound, got %v", id, err)
	}
}

func TestRunCommand_EditFailureKeepsEditorOpen(t *testing.T) {
	api := &memAPI{records: []model.Record{{ID: 1, Name: "Ana", Code: "X1"}}, nextID: 1}
	v := newTestView(t, api)
	ctx := context.Background()
	api.fail = errors.New("store down")

	if err := runCommand(ctx, v, "edit 1 name=Otra"); err == nil {
		t.Fatal("expected error")
	}
	if sel, ok := v.Selected(); !ok || sel.Name != "Ana" {
		t.Errorf("editor should stay open on the unchanged record, got %+v %v", sel, ok)
	}
	if err := runCommand(ctx, v, "cancel"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok := v.Selected(); ok {
		t.Error("cancel should close the editor")
	}
}

func TestRunCommand_Errors(t *testing.T) {
	v := newTestView(t, &memAPI{})
	ctx := context.Background()

	tests := []string{
		"att 1 1",
		"att x 1 0",
		"del",
		"del -3",
		"edit",
		"add nombre=Ana",
		"add Ana",
		"frobnicate",
	}
	for _, line := range tests {
		if err := runCommand(ctx, v, line); err == nil {
			t.Errorf("%q: expected error", line)
		}
	}
	if err := runCommand(ctx, v, "q"); !errors.Is(err, errQuit) {
		t.Errorf("q: expected errQuit, got %v", err)
	}
	if err := runCommand(ctx, v, ""); err != nil {
		t.Errorf("empty line: %v", err)
	}
}

func TestRunCommand_Filter(t *testing.T) {
	api := &memAPI{records: []model.Record{{ID: 1, Name: "Ana", Code: "X1"}, {ID: 2, Name: "Luis", Code: "L2"}}}
	v := newTestView(t, api)

	runCommand(context.Background(), v, "/lu")
	if vis := v.Visible(); len(vis) != 1 || vis[0].ID != 2 {
		t.Errorf("unexpected visible rows %+v", vis)
	}
	runCommand(context.Background(), v, "/")
	if len(v.Visible()) != 2 {
		t.Error("bare / should clear the filter")
	}
}

func TestApplyAssignments_OptionalFields(t *testing.T) {
	req := &dto.RecordRequest{Name: "Ana", Code: "X1"}
	if err := applyAssignments(req, []string{"guardian1=Rosa", "Pérez", "guardian2=Juan"}); err != nil {
		t.Fatalf("applyAssignments: %v", err)
	}
	if model.StringValue(req.Guardian1) != "Rosa Pérez" || model.StringValue(req.Guardian2) != "Juan" {
		t.Errorf("unexpected request %+v", req)
	}
}
