package changefeed

import (
	"context"
	"fmt"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"student-roster/pkg/redis"
)

// RedisBroker 通过 Redis pub/sub 在多个服务实例间广播事件
// 发布写入 Redis 频道；Run 把频道消息转入本地 Hub，订阅方始终挂在本地 Hub 上
// Run 未完成订阅（启动中或已退出）时，发布直接投递本地 Hub
type RedisBroker struct {
	client     *redis.Client
	channel    string
	hub        *Hub
	logger     *zap.Logger
	subscribed atomic.Bool
}

// NewRedisBroker 创建 RedisBroker
func NewRedisBroker(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{client: client, channel: channel, hub: hub, logger: logger}
}

// Publish 广播事件到 Redis 频道
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	if !b.subscribed.Load() {
		// 本实例收不到频道回流，先投递本地；其余实例仍尽量经 Redis 送达
		if b.client != nil {
			if err := b.publishRemote(ctx, ev); err != nil {
				b.logger.Warn("Redis 发布失败，事件仅投递本实例", zap.Error(err))
			}
		}
		return b.hub.Publish(ctx, ev)
	}
	return b.publishRemote(ctx, ev)
}

func (b *RedisBroker) publishRemote(ctx context.Context, ev Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload)
}

// Subscribe 订阅本地 Hub
func (b *RedisBroker) Subscribe(ctx context.Context) (*Subscription, error) {
	return b.hub.Subscribe(ctx)
}

// Run 持续消费 Redis 频道直到 ctx 结束
func (b *RedisBroker) Run(ctx context.Context) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("订阅 Redis 频道 %s 失败: %w", b.channel, err)
	}
	b.subscribed.Store(true)
	defer b.stop(ctx)
	b.logger.Info("已订阅 Redis 变更频道", zap.String("channel", b.channel))

	msgs := ps.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := b.dispatch(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// stop 回退到本地投递；异常退出时通知订阅方重载
func (b *RedisBroker) stop(ctx context.Context) {
	b.subscribed.Store(false)
	if ctx.Err() != nil {
		return
	}
	b.logger.Warn("Redis 变更频道已断开，事件改为仅投递本实例")
	_ = b.hub.Publish(context.WithoutCancel(ctx), Resync())
}

// dispatch 处理一条频道消息
// 断线重连后 go-redis 重新订阅并回送 subscribe 确认，其间的消息可能已丢失
func (b *RedisBroker) dispatch(ctx context.Context, msg interface{}) error {
	switch m := msg.(type) {
	case *goredis.Subscription:
		if m.Kind != "subscribe" {
			return nil
		}
		b.logger.Info("Redis 变更频道已重新订阅，通知订阅方重载")
		return b.hub.Publish(ctx, Resync())
	case *goredis.Message:
		ev, err := Decode([]byte(m.Payload))
		if err != nil {
			b.logger.Warn("丢弃无法解析的 Redis 消息", zap.Error(err))
			return nil
		}
		return b.hub.Publish(ctx, ev)
	default:
		return nil
	}
}
