package syncview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/r3labs/sse/v2"

	"student-roster/internal/changefeed"
	"student-roster/internal/dto"
	"student-roster/internal/model"
)

var (
	ErrNotFound     = errors.New("记录不存在")
	ErrFeedDisabled = errors.New("服务端未启用实时推送")
)

// APIError 服务端返回的非预期状态
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("请求失败: HTTP %d", e.Status)
	}
	return fmt.Sprintf("请求失败: HTTP %d: %s", e.Status, e.Message)
}

// Client 记录接口的 HTTP 客户端
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// ClientOption 客户端可选项
type ClientOption func(*Client)

// WithHTTPClient 替换底层 http.Client（推送为长连接，不要设置 Timeout）
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithToken 写操作携带的 Bearer Token
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// NewClient 创建客户端，baseURL 形如 http://localhost:3000
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken 登录后更新 Token
func (c *Client) SetToken(token string) {
	c.token = token
}

// ── 记录接口 ──

func (c *Client) ListAll(ctx context.Context) ([]model.Record, error) {
	var records []model.Record
	if err := c.do(ctx, http.MethodGet, "/records", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) Search(ctx context.Context, query string) ([]model.Record, error) {
	var records []model.Record
	if err := c.do(ctx, http.MethodGet, "/records/search?query="+url.QueryEscape(query), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) Create(ctx context.Context, req *dto.RecordRequest) (*model.Record, error) {
	var resp dto.CreatedResponse
	if err := c.do(ctx, http.MethodPost, "/records", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Created, nil
}

func (c *Client) Update(ctx context.Context, id int64, req *dto.RecordRequest) (*model.Record, error) {
	var resp dto.UpdatedResponse
	if err := c.do(ctx, http.MethodPut, recordPath(id), req, &resp); err != nil {
		return nil, err
	}
	return &resp.Updated, nil
}

func (c *Client) UpdateAttendance(ctx context.Context, id int64, attended1, attended2 bool) (*model.Record, error) {
	body := dto.AttendanceRequest{Attended1: &attended1, Attended2: &attended2}
	var resp dto.UpdatedResponse
	if err := c.do(ctx, http.MethodPut, recordPath(id)+"/attendance", &body, &resp); err != nil {
		return nil, err
	}
	return &resp.Updated, nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, recordPath(id), nil, nil)
}

// ClientConfig 读取服务端运行参数
func (c *Client) ClientConfig(ctx context.Context) (*dto.ClientConfigResponse, error) {
	var resp dto.ClientConfigResponse
	if err := c.do(ctx, http.MethodGet, "/client-config", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login 登录并保存 Token
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp dto.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", &dto.LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return err
	}
	c.SetToken(resp.AccessToken)
	return nil
}

func recordPath(id int64) string {
	return "/records/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/records/") {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb struct {
			Error string `json:"error"`
		}
		_ = sonic.Unmarshal(data, &eb)
		return &APIError{Status: resp.StatusCode, Message: eb.Error}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return sonic.Unmarshal(data, out)
}

// ── 变更推送 ──

// Stream 一次推送连接
type Stream interface {
	// Events 变更事件；连接结束后关闭
	Events() <-chan changefeed.Event
	// Err 连接结束原因，Events 关闭后有效
	Err() error
	Close() error
}

// Subscribe 建立推送连接，收到服务端 ready 后返回
// 此后发生的变更都会出现在 Events 中；连接断开后不自动重连，由调用方重新订阅
func (c *Client) Subscribe(ctx context.Context) (Stream, error) {
	sc := sse.NewClient(c.baseURL + "/records/changes")
	sc.Connection = c.http
	sc.ReconnectStrategy = &backoff.StopBackOff{}
	sc.ResponseValidator = validateFeedResponse
	if c.token != "" {
		sc.Headers["Authorization"] = "Bearer " + c.token
	}

	s := newSSEStream(ctx, sc)
	select {
	case <-s.ready:
		return s, nil
	case <-s.done:
		var apiErr *APIError
		if errors.Is(s.err, ErrFeedDisabled) || errors.As(s.err, &apiErr) {
			return nil, s.err
		}
		return nil, fmt.Errorf("推送连接在就绪前断开: %w", s.err)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// validateFeedResponse 503 表示服务端未启用推送
func validateFeedResponse(_ *sse.Client, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusServiceUnavailable:
		resp.Body.Close()
		return ErrFeedDisabled
	default:
		resp.Body.Close()
		return &APIError{Status: resp.StatusCode}
	}
}

type sseStream struct {
	events    chan changefeed.Event
	ready     chan struct{}
	done      chan struct{}
	closed    chan struct{}
	cancel    context.CancelFunc
	readyOnce sync.Once
	closeOnce sync.Once
	err       error
}

func newSSEStream(ctx context.Context, sc *sse.Client) *sseStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &sseStream{
		events: make(chan changefeed.Event, 64),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		cancel: cancel,
	}
	go s.run(ctx, sc)
	return s
}

func (s *sseStream) run(ctx context.Context, sc *sse.Client) {
	// done 先于 events 关闭，消费方读到 Events 关闭时 Err 已可用
	defer close(s.events)
	defer close(s.done)

	err := sc.SubscribeRawWithContext(ctx, s.handle)
	if err == nil {
		err = io.EOF
	}
	s.err = err
}

// handle 事件名即变更类型；ready 表示订阅已建立，ping 为心跳
func (s *sseStream) handle(msg *sse.Event) {
	switch string(msg.Event) {
	case "ready":
		s.readyOnce.Do(func() { close(s.ready) })
	case "ping", "":
	default:
		ev, err := changefeed.Decode(msg.Data)
		if err != nil {
			return
		}
		select {
		case s.events <- ev:
		case <-s.closed:
		}
	}
}

func (s *sseStream) Events() <-chan changefeed.Event { return s.events }

func (s *sseStream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *sseStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})
	return nil
}
