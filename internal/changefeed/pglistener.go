package changefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PGChannel records 表触发器 pg_notify 使用的频道名（见 postgres 迁移 000002）
const PGChannel = "records_changes"

// PGListener 监听 Postgres LISTEN/NOTIFY，捕获包括外部工具在内的所有写入
type PGListener struct {
	dsn          string
	pub          Publisher
	logger       *zap.Logger
	minReconnect time.Duration
	maxReconnect time.Duration
	pingInterval time.Duration
}

// NewPGListener 创建监听器，事件转发给 pub（通常是本地 Hub）
func NewPGListener(dsn string, pub Publisher, logger *zap.Logger) *PGListener {
	return &PGListener{
		dsn:          dsn,
		pub:          pub,
		logger:       logger,
		minReconnect: 2 * time.Second,
		maxReconnect: time.Minute,
		pingInterval: 90 * time.Second,
	}
}

// Run 阻塞监听直到 ctx 结束
func (l *PGListener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, l.minReconnect, l.maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			l.logger.Info("Postgres 变更监听已连接")
		case pq.ListenerEventDisconnected:
			l.logger.Warn("Postgres 变更监听断开", zap.Error(err))
		case pq.ListenerEventReconnected:
			l.logger.Info("Postgres 变更监听已重连")
		case pq.ListenerEventConnectionAttemptFailed:
			l.logger.Warn("Postgres 变更监听重连失败", zap.Error(err))
		}
	})
	defer listener.Close()

	if err := listener.Listen(PGChannel); err != nil {
		return fmt.Errorf("LISTEN %s 失败: %w", PGChannel, err)
	}

	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			l.handle(ctx, n)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn("Postgres 变更监听 ping 失败", zap.Error(err))
				}
			}()
		}
	}
}

// handle 处理一条通知；nil 表示连接重建，期间的通知可能已丢失
func (l *PGListener) handle(ctx context.Context, n *pq.Notification) {
	if n == nil {
		if err := l.pub.Publish(ctx, Resync()); err != nil {
			l.logger.Warn("发布 resync 事件失败", zap.Error(err))
		}
		return
	}

	ev, err := Decode([]byte(n.Extra))
	if err != nil {
		l.logger.Warn("丢弃无法解析的 Postgres 通知", zap.String("channel", n.Channel), zap.Error(err))
		return
	}
	if err := l.pub.Publish(ctx, ev); err != nil {
		l.logger.Warn("转发 Postgres 通知失败", zap.Error(err))
	}
}
