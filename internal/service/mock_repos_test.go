package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"

	"student-roster/internal/changefeed"
	"student-roster/internal/model"
	"student-roster/internal/repository"
	pkgerrors "student-roster/pkg/errors"
)

// ── Mock RecordRepository ──

type mockRecordRepo struct {
	records map[int64]*model.Record
	nextID  int64
	failAll bool
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[int64]*model.Record), nextID: 1}
}

var errMockUnavailable = errors.Join(pkgerrors.ErrStoreUnavailable, errors.New("dial tcp: connection refused"))

func (m *mockRecordRepo) List(_ context.Context, order repository.RecordSort) ([]model.Record, error) {
	if m.failAll {
		return nil, errMockUnavailable
	}
	result := make([]model.Record, 0, len(m.records))
	for _, r := range m.records {
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool {
		if order == repository.SortByName && result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *mockRecordRepo) Search(ctx context.Context, query string) ([]model.Record, error) {
	all, err := m.List(ctx, repository.SortByID)
	if err != nil {
		return nil, err
	}
	var result []model.Record
	for _, r := range all {
		if r.Code == query || strings.Contains(strings.ToLower(r.Name), strings.ToLower(query)) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id int64) (*model.Record, error) {
	if m.failAll {
		return nil, errMockUnavailable
	}
	if r, ok := m.records[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRecordRepo) Create(_ context.Context, rec *model.Record) error {
	if m.failAll {
		return errMockUnavailable
	}
	rec.ID = m.nextID
	m.nextID++
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockRecordRepo) Update(_ context.Context, id int64, f repository.RecordFields) (*model.Record, error) {
	if m.failAll {
		return nil, errMockUnavailable
	}
	r, ok := m.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	r.Name, r.Code, r.Teacher, r.Guardian1, r.Guardian2 = f.Name, f.Code, f.Teacher, f.Guardian1, f.Guardian2
	cp := *r
	return &cp, nil
}

func (m *mockRecordRepo) UpdateAttendance(_ context.Context, id int64, a1, a2 bool) (*model.Record, error) {
	if m.failAll {
		return nil, errMockUnavailable
	}
	r, ok := m.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	r.Attended1, r.Attended2 = a1, a2
	cp := *r
	return &cp, nil
}

func (m *mockRecordRepo) Delete(_ context.Context, id int64) error {
	if m.failAll {
		return errMockUnavailable
	}
	if _, ok := m.records[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *mockRecordRepo) ReplaceAll(_ context.Context, records []model.Record) (int, error) {
	if m.failAll {
		return 0, errMockUnavailable
	}
	m.records = make(map[int64]*model.Record)
	for i := range records {
		rec := records[i]
		rec.ID = m.nextID
		m.nextID++
		m.records[rec.ID] = &rec
	}
	return len(records), nil
}

func (m *mockRecordRepo) Ping(_ context.Context) error {
	if m.failAll {
		return errMockUnavailable
	}
	return nil
}

// ── Recording Publisher ──

type recordingPublisher struct {
	mu     sync.Mutex
	events []changefeed.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev changefeed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []changefeed.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]changefeed.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
