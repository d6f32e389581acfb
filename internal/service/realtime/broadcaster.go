// Package realtime 提供基于 Redis 发布订阅的会话事件广播
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 广播事件类型
const (
	EventMessageChunk    = "message_chunk"
	EventMessageComplete = "message_complete"
)

// Event 会话广播事件
type Event struct {
	Type       string `json:"type"`
	MessageID  string `json:"message_id"`
	Chunk      string `json:"chunk,omitempty"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
	Content    string `json:"content,omitempty"`
}

// Topic 返回会话的广播主题
func Topic(conversationID string) string {
	return fmt.Sprintf("conversation:%s:messages", conversationID)
}

// Broadcaster 会话事件广播器
type Broadcaster struct {
	client *redis.Client
}

// NewBroadcaster 创建广播器
func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{client: client}
}

// PublishChunk 广播一条增量
func (b *Broadcaster) PublishChunk(ctx context.Context, conversationID, messageID, chunk string, index int) error {
	return b.publish(ctx, conversationID, &Event{
		Type:       EventMessageChunk,
		MessageID:  messageID,
		Chunk:      chunk,
		ChunkIndex: index,
	})
}

// PublishComplete 广播完成事件
func (b *Broadcaster) PublishComplete(ctx context.Context, conversationID, messageID, content string) error {
	return b.publish(ctx, conversationID, &Event{
		Type:      EventMessageComplete,
		MessageID: messageID,
		Content:   content,
	})
}

func (b *Broadcaster) publish(ctx context.Context, conversationID string, evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Topic(conversationID), data).Err()
}

// Subscribe 订阅会话事件
// 返回的通道在 ctx 取消后关闭；供多端镜像消费
func (b *Broadcaster) Subscribe(ctx context.Context, conversationID string) <-chan *Event {
	sub := b.client.Subscribe(ctx, Topic(conversationID))
	out := make(chan *Event, 16)

	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				select {
				case out <- &evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Ping 检查 Redis 连通性
func (b *Broadcaster) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
