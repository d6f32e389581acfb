// Package session 管理进行中的流式生成
package session

import (
	"context"
	"sync"
	"time"
)

// ActiveStream 进行中的一轮生成
type ActiveStream struct {
	ConversationID string
	MessageID      string
	CancelFunc     context.CancelFunc
	StartedAt      time.Time
}

// Registry 活跃流注册表
// 每个会话同一时刻最多一轮进行中的生成；并发发送被拒绝而不是交错写同一行
type Registry struct {
	mu      sync.Mutex
	streams map[string]*ActiveStream // conversationID -> stream
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		streams: make(map[string]*ActiveStream),
	}
}

// Register 登记一轮生成
// 会话已有进行中的生成时返回 false
func (r *Registry) Register(conversationID, messageID string, cancel context.CancelFunc) (*ActiveStream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[conversationID]; exists {
		return nil, false
	}

	stream := &ActiveStream{
		ConversationID: conversationID,
		MessageID:      messageID,
		CancelFunc:     cancel,
		StartedAt:      time.Now(),
	}
	r.streams[conversationID] = stream
	return stream, true
}

// SetMessageID 绑定已登记流的消息 ID
// 名额先于占位行预留时，行 ID 在落库后补填
func (r *Registry) SetMessageID(conversationID, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stream, ok := r.streams[conversationID]; ok {
		stream.MessageID = messageID
	}
}

// Unregister 注销一轮生成
func (r *Registry) Unregister(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, conversationID)
}

// Get 获取会话进行中的生成
func (r *Registry) Get(conversationID string) (*ActiveStream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stream, ok := r.streams[conversationID]
	return stream, ok
}

// Stop 取消会话进行中的生成
// 取消信号会沿请求上下文传到提供方调用
func (r *Registry) Stop(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, ok := r.streams[conversationID]
	if !ok {
		return false
	}

	if stream.CancelFunc != nil {
		stream.CancelFunc()
	}
	delete(r.streams, conversationID)
	return true
}

// Len 当前活跃流数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}
