package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"student-roster/internal/changefeed"
	"student-roster/pkg/response"
)

const defaultHeartbeat = 25 * time.Second

// FeedHandler 变更推送 HTTP 处理器（Server-Sent Events）
type FeedHandler struct {
	sub       changefeed.Subscriber
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewFeedHandler 创建 FeedHandler；sub 为 nil 表示未启用推送
func NewFeedHandler(sub changefeed.Subscriber, heartbeat time.Duration, logger *zap.Logger) *FeedHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &FeedHandler{sub: sub, heartbeat: heartbeat, logger: logger}
}

// Stream 订阅记录变更
// GET /records/changes
//
// 事件名即变更类型（insert/update/delete/resync），data 为事件 JSON，id 为序号；
// 另有 ready（订阅建立）与 ping（心跳）。订阅方落后被断开时先补发 resync 再结束
func (h *FeedHandler) Stream(c *gin.Context) {
	if h.sub == nil {
		response.ServiceUnavailable(c, "实时推送未启用")
		return
	}

	ctx := c.Request.Context()
	sub, err := h.sub.Subscribe(ctx)
	if err != nil {
		h.logger.Warn("建立变更订阅失败", zap.Error(err))
		response.ServiceUnavailable(c, "实时推送暂不可用")
		return
	}
	defer sub.Close()

	// 长连接不受 server.write_timeout 限制
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.send(c, sse.Event{Event: "ready", Data: "ok"})

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.send(c, sse.Event{Event: "ping", Data: time.Now().UTC().Format(time.RFC3339)})
		case ev, ok := <-sub.Events():
			if !ok {
				if sub.Lagged() {
					h.sendEvent(c, changefeed.Resync())
				}
				return
			}
			h.sendEvent(c, ev)
		}
	}
}

func (h *FeedHandler) sendEvent(c *gin.Context, ev changefeed.Event) {
	data, err := changefeed.Encode(ev)
	if err != nil {
		h.logger.Error("编码变更事件失败", zap.Error(err))
		return
	}
	h.send(c, sse.Event{
		Id:    strconv.FormatUint(ev.Seq, 10),
		Event: string(ev.Type),
		Data:  string(data),
	})
}

func (h *FeedHandler) send(c *gin.Context, ev sse.Event) {
	c.Render(-1, ev)
	c.Writer.Flush()
}
