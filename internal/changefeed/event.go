// Package changefeed 学生记录的实时变更流：事件定义、进程内分发，
// 以及 Redis / Postgres LISTEN 两种跨进程事件来源。
package changefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"student-roster/internal/model"
)

// EventType 变更类型
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
	// EventResync 订阅方应丢弃本地缓存并全量重新加载
	EventResync EventType = "resync"
)

// Event 一条变更通知
type Event struct {
	Type   EventType     `json:"type"`
	ID     int64         `json:"id,omitempty"`
	Record *model.Record `json:"record,omitempty"`
	Seq    uint64        `json:"seq,omitempty"`
	At     time.Time     `json:"at"`
}

var (
	ErrClosed       = errors.New("变更流已关闭")
	ErrInvalidEvent = errors.New("无效的变更事件")
)

// Publisher 发布变更事件
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber 订阅变更事件
type Subscriber interface {
	Subscribe(ctx context.Context) (*Subscription, error)
}

// Broker 同时具备发布与订阅能力
type Broker interface {
	Publisher
	Subscriber
}

// Inserted / Updated / Deleted / Resync 事件构造辅助
func Inserted(rec *model.Record) Event {
	return Event{Type: EventInsert, ID: rec.ID, Record: rec, At: time.Now().UTC()}
}

func Updated(rec *model.Record) Event {
	return Event{Type: EventUpdate, ID: rec.ID, Record: rec, At: time.Now().UTC()}
}

func Deleted(id int64) Event {
	return Event{Type: EventDelete, ID: id, At: time.Now().UTC()}
}

func Resync() Event {
	return Event{Type: EventResync, At: time.Now().UTC()}
}

// Validate 检查事件字段是否自洽
func (ev *Event) Validate() error {
	switch ev.Type {
	case EventInsert, EventUpdate:
		if ev.Record == nil {
			return fmt.Errorf("%w: %s 事件缺少 record", ErrInvalidEvent, ev.Type)
		}
		if ev.ID == 0 {
			ev.ID = ev.Record.ID
		}
		if ev.ID != ev.Record.ID {
			return fmt.Errorf("%w: id 与 record.id 不一致", ErrInvalidEvent)
		}
	case EventDelete:
		if ev.ID == 0 {
			return fmt.Errorf("%w: delete 事件缺少 id", ErrInvalidEvent)
		}
	case EventResync:
	default:
		return fmt.Errorf("%w: 未知类型 %q", ErrInvalidEvent, ev.Type)
	}
	return nil
}

// Encode 序列化事件（Redis 广播、SSE 负载共用）
func Encode(ev Event) ([]byte, error) {
	return sonic.Marshal(ev)
}

// Decode 反序列化并校验事件
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := sonic.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}
