// Package syncview 客户端记录视图：维护完整记录缓存，
// 合并用户操作结果与服务端推送，按过滤条件渲染可见行。
package syncview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"student-roster/internal/changefeed"
	"student-roster/internal/dto"
	"student-roster/internal/model"
)

// State 视图状态
type State int

const (
	StateLoading State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "loading"
}

// ErrNothingSelected 提交编辑时没有打开的记录
var ErrNothingSelected = errors.New("未选中记录")

// API 视图依赖的记录接口
type API interface {
	ListAll(ctx context.Context) ([]model.Record, error)
	Create(ctx context.Context, req *dto.RecordRequest) (*model.Record, error)
	Update(ctx context.Context, id int64, req *dto.RecordRequest) (*model.Record, error)
	UpdateAttendance(ctx context.Context, id int64, attended1, attended2 bool) (*model.Record, error)
	Delete(ctx context.Context, id int64) error
}

// Feed 变更推送来源
type Feed interface {
	Subscribe(ctx context.Context) (Stream, error)
}

// Options 视图参数
type Options struct {
	API  API
	Feed Feed // nil 表示无推送，写操作成功后直接采用接口返回值
	// Render 每次可见行变化时调用（持有视图锁，不要回调视图方法）
	Render func(rows []model.Record)
	Logger *zap.Logger
	// 加载 / 重连退避区间
	RetryMin time.Duration
	RetryMax time.Duration
}

// View 单个会话的记录视图，方法可并发调用，缓存变更串行执行
type View struct {
	api    API
	feed   Feed
	render func([]model.Record)
	logger *zap.Logger

	retryMin time.Duration
	retryMax time.Duration

	mu         sync.Mutex
	state      State
	cache      []model.Record
	filter     string
	selected   int64
	feedActive bool
}

// New 创建视图，初始为 Loading
func New(opts Options) *View {
	v := &View{
		api:      opts.API,
		feed:     opts.Feed,
		render:   opts.Render,
		logger:   opts.Logger,
		retryMin: opts.RetryMin,
		retryMax: opts.RetryMax,
	}
	if v.logger == nil {
		v.logger = zap.NewNop()
	}
	if v.retryMin <= 0 {
		v.retryMin = 500 * time.Millisecond
	}
	if v.retryMax < v.retryMin {
		v.retryMax = 30 * time.Second
	}
	return v
}

// ════════════════════════════════════════════
// 生命周期
// ════════════════════════════════════════════

// Run 先订阅再全量加载，随后逐条应用推送；连接断开后重新订阅并重载
// 阻塞直到 ctx 结束
func (v *View) Run(ctx context.Context) error {
	reconnect := backoff.WithContext(v.newBackOff(), ctx)
	for {
		var stream Stream
		if v.feed != nil {
			s, err := v.feed.Subscribe(ctx)
			switch {
			case err == nil:
				stream = s
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, ErrFeedDisabled):
				v.logger.Warn("服务端未启用变更推送")
				v.feed = nil
			default:
				v.logger.Warn("订阅变更推送失败", zap.Error(err))
			}
		}
		v.setFeedActive(stream != nil)

		if err := v.loadWithRetry(ctx); err != nil {
			if stream != nil {
				stream.Close()
			}
			return err
		}

		if stream == nil {
			if v.feed == nil {
				<-ctx.Done()
				return ctx.Err()
			}
		} else {
			if err := v.consume(ctx, stream); err != nil {
				return err
			}
			reconnect.Reset()
		}

		next := reconnect.NextBackOff()
		if next == backoff.Stop {
			return ctx.Err()
		}
		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// consume 应用推送直到连接结束；仅在 ctx 结束时返回错误
func (v *View) consume(ctx context.Context, stream Stream) error {
	defer stream.Close()

	events := stream.Events()
	for {
		var (
			ev changefeed.Event
			ok bool
		)
		select {
		case <-ctx.Done():
			v.setFeedActive(false)
			return ctx.Err()
		case ev, ok = <-events:
		}
		if !ok {
			break
		}
		if v.Apply(ev) {
			if err := v.loadWithRetry(ctx); err != nil {
				return err
			}
		}
	}
	v.setFeedActive(false)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	v.logger.Info("变更推送已断开，准备重连", zap.Error(stream.Err()))
	return nil
}

// Load 单次全量加载；失败时保留原缓存与状态
func (v *View) Load(ctx context.Context) error {
	records, err := v.api.ListAll(ctx)
	if err != nil {
		v.logger.Warn("加载记录失败", zap.Error(err))
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache = records
	v.state = StateReady
	v.renderLocked()
	return nil
}

// loadWithRetry 按指数退避重试加载，直到成功或 ctx 结束
func (v *View) loadWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return v.Load(ctx)
	}, backoff.WithContext(v.newBackOff(), ctx))
}

// newBackOff 间隔从 retryMin 起翻倍（带抖动），封顶 retryMax，不限总时长
func (v *View) newBackOff() *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(v.retryMin),
		backoff.WithMaxInterval(v.retryMax),
		backoff.WithMaxElapsedTime(0),
	)
}

// ════════════════════════════════════════════
// 缓存合并
// ════════════════════════════════════════════

// Apply 应用一条变更，后到者覆盖先到者
//   - insert: 追加；id 已存在时替换
//   - update: 按 id 替换；未知 id 忽略
//   - delete: 按 id 移除；不存在时忽略
//   - resync: 不修改缓存，返回 true 表示需要全量重载
func (v *View) Apply(ev changefeed.Event) (reload bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Type {
	case changefeed.EventInsert:
		if ev.Record == nil {
			return false
		}
		if i := v.indexLocked(ev.Record.ID); i >= 0 {
			v.cache[i] = *ev.Record
		} else {
			v.cache = append(v.cache, *ev.Record)
		}
	case changefeed.EventUpdate:
		if ev.Record == nil {
			return false
		}
		i := v.indexLocked(ev.Record.ID)
		if i < 0 {
			return false
		}
		v.cache[i] = *ev.Record
	case changefeed.EventDelete:
		i := v.indexLocked(ev.ID)
		if i < 0 {
			return false
		}
		v.cache = append(v.cache[:i], v.cache[i+1:]...)
	case changefeed.EventResync:
		return true
	default:
		return false
	}

	v.renderLocked()
	return false
}

func (v *View) indexLocked(id int64) int {
	for i := range v.cache {
		if v.cache[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *View) renderLocked() {
	if v.render != nil {
		v.render(v.visibleLocked())
	}
}

func (v *View) visibleLocked() []model.Record {
	return ApplyFilter(v.cache, v.filter)
}

func (v *View) setFeedActive(active bool) {
	v.mu.Lock()
	v.feedActive = active
	v.mu.Unlock()
}

// ════════════════════════════════════════════
// 查询
// ════════════════════════════════════════════

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// FeedActive 当前是否有推送连接
func (v *View) FeedActive() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.feedActive
}

// SetFilter 更新过滤关键字并立即重新渲染
func (v *View) SetFilter(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = text
	v.renderLocked()
}

// Visible 当前可见行
func (v *View) Visible() []model.Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visibleLocked()
}

// Records 完整缓存副本
func (v *View) Records() []model.Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]model.Record(nil), v.cache...)
}

// ════════════════════════════════════════════
// 编辑
// ════════════════════════════════════════════

// Open 打开记录编辑；只记住 id，Selected 总是返回缓存中的最新版本
func (v *View) Open(id int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.indexLocked(id) < 0 {
		return false
	}
	v.selected = id
	return true
}

// Selected 当前打开的记录；已被删除时返回 false
func (v *View) Selected() (model.Record, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selected == 0 {
		return model.Record{}, false
	}
	i := v.indexLocked(v.selected)
	if i < 0 {
		return model.Record{}, false
	}
	return v.cache[i], true
}

// CloseEditor 关闭编辑
func (v *View) CloseEditor() {
	v.mu.Lock()
	v.selected = 0
	v.mu.Unlock()
}

// CommitEdit 提交当前打开记录的修改
// 成功后关闭编辑；失败时缓存不变、编辑保持打开
func (v *View) CommitEdit(ctx context.Context, req *dto.RecordRequest) error {
	v.mu.Lock()
	id := v.selected
	v.mu.Unlock()
	if id == 0 {
		return ErrNothingSelected
	}

	rec, err := v.api.Update(ctx, id, req)
	if err != nil {
		v.logger.Warn("更新记录失败", zap.Int64("id", id), zap.Error(err))
		return err
	}

	v.settle(changefeed.Updated(rec))
	v.mu.Lock()
	if v.selected == id {
		v.selected = 0
	}
	v.mu.Unlock()
	return nil
}

// CommitAttendance 更新到场标记
func (v *View) CommitAttendance(ctx context.Context, id int64, attended1, attended2 bool) error {
	rec, err := v.api.UpdateAttendance(ctx, id, attended1, attended2)
	if err != nil {
		v.logger.Warn("更新到场标记失败", zap.Int64("id", id), zap.Error(err))
		return err
	}
	v.settle(changefeed.Updated(rec))
	return nil
}

// Create 新增记录
func (v *View) Create(ctx context.Context, req *dto.RecordRequest) (*model.Record, error) {
	rec, err := v.api.Create(ctx, req)
	if err != nil {
		v.logger.Warn("新增记录失败", zap.Error(err))
		return nil, err
	}
	v.settle(changefeed.Inserted(rec))
	return rec, nil
}

// Delete 删除记录
func (v *View) Delete(ctx context.Context, id int64) error {
	if err := v.api.Delete(ctx, id); err != nil {
		v.logger.Warn("删除记录失败", zap.Int64("id", id), zap.Error(err))
		return err
	}
	v.settle(changefeed.Deleted(id))
	v.mu.Lock()
	if v.selected == id {
		v.selected = 0
	}
	v.mu.Unlock()
	return nil
}

// settle 推送在线时等待推送事件更新缓存，否则直接采用接口返回值
func (v *View) settle(ev changefeed.Event) {
	if v.FeedActive() {
		return
	}
	v.Apply(ev)
}
