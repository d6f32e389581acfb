// Package producer 实现流式生成端点的核心逻辑
//
// 对应托管平台上的 ai-chat 函数：落库用户消息、预建助手占位行、
// 调用模型提供方流式生成、逐增量发 SSE 帧并广播到会话主题。
package producer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tetherapp/tether/internal/model"
	"github.com/tetherapp/tether/internal/service/deadletter"
	"github.com/tetherapp/tether/internal/service/provider"
	"github.com/tetherapp/tether/internal/sse"
)

// 校验错误
var (
	ErrEmptyBody       = errors.New("request body is required")
	ErrMissingUserID   = errors.New("user_id is required")
	ErrMissingMessages = errors.New("messages must not be empty")
)

// Request 生成请求
// assistant_message_id 由入口在实时模式下预建占位行后传入，
// 保证消息 ID 端到端唯一，不按"最近一条"推断
type Request struct {
	UserID             string                 `json:"user_id"`
	ConversationID     string                 `json:"conversation_id,omitempty"`
	Messages           []provider.ChatMessage `json:"messages"`
	AgentName          string                 `json:"agent_name,omitempty"`
	AgentInstructions  string                 `json:"agent_instructions,omitempty"`
	Model              string                 `json:"model,omitempty"`
	Temperature        float64                `json:"temperature,omitempty"`
	Stream             bool                   `json:"stream,omitempty"`
	AssistantMessageID string                 `json:"assistant_message_id,omitempty"`
	SkipUserPersist    bool                   `json:"skip_user_persist,omitempty"`
}

// Result 同步模式的生成结果
type Result struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Message        string `json:"message"`
}

// Sink 接收生成过程中的 SSE 帧
type Sink interface {
	Emit(evt *sse.Event) error
}

// SinkFunc 函数式 Sink
type SinkFunc func(evt *sse.Event) error

// Emit 实现 Sink
func (f SinkFunc) Emit(evt *sse.Event) error {
	return f(evt)
}

// DiscardSink 丢弃帧的 Sink，实时模式下内容走广播通道
var DiscardSink = SinkFunc(func(*sse.Event) error { return nil })

// Broadcaster 会话广播接口
type Broadcaster interface {
	PublishChunk(ctx context.Context, conversationID, messageID, chunk string, index int) error
	PublishComplete(ctx context.Context, conversationID, messageID, content string) error
}

// Store 生成端点需要的数据访问接口
type Store interface {
	CreateConversation(conv *model.Conversation) error
	GetConversationByID(id string) (*model.Conversation, error)
	CreateMessage(msg *model.Message) error
	GetMessageByID(id string) (*model.Message, error)
	FinalizeMessage(id, content, modelName string, tokenCount int) error
}

// Service 流式生成服务
type Service struct {
	store       Store
	streamer    provider.Streamer
	broadcaster Broadcaster
	deadLetters *deadletter.Recorder
	logger      *logrus.Logger
}

// NewService 创建生成服务
func NewService(store Store, streamer provider.Streamer, broadcaster Broadcaster, dl *deadletter.Recorder, logger *logrus.Logger) *Service {
	return &Service{
		store:       store,
		streamer:    streamer,
		broadcaster: broadcaster,
		deadLetters: dl,
		logger:      logger,
	}
}

// Validate 校验请求
func (s *Service) Validate(req *Request) error {
	if req == nil {
		return ErrEmptyBody
	}
	if req.UserID == "" {
		return ErrMissingUserID
	}
	if len(req.Messages) == 0 {
		return ErrMissingMessages
	}
	return nil
}

// Ready 提供方是否可用
func (s *Service) Ready() bool {
	return s.streamer.Ready()
}

// Generate 执行一轮生成
// 帧按提供方顺序发出；落库完成帧之前先把最后一个增量送入 sink
func (s *Service) Generate(ctx context.Context, req *Request, sink Sink) (*Result, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	if !s.streamer.Ready() {
		return nil, fmt.Errorf("provider api key is not configured")
	}

	conv, err := s.resolveConversation(req)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conversation: %w", err)
	}

	if !req.SkipUserPersist {
		if err := s.persistUserMessage(conv.ID, req); err != nil {
			return nil, fmt.Errorf("failed to persist user message: %w", err)
		}
	}

	assistant, err := s.resolveAssistantPlaceholder(conv.ID, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create assistant message: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"message_id":      assistant.ID,
	}).Info("generation started")

	content, genErr := s.streamDeltas(ctx, conv.ID, assistant.ID, req, sink)
	if genErr != nil {
		s.finalizeError(conv.ID, assistant.ID, genErr, sink)
		return nil, genErr
	}

	// 估算 token 数：内容长度 / 4
	modelName := req.Model
	if modelName == "" {
		modelName = s.streamer.ModelName()
	}
	if err := s.store.FinalizeMessage(assistant.ID, content, modelName, len(content)/4); err != nil {
		// 终帧已排队给客户端之前必须完成落库
		s.finalizeError(conv.ID, assistant.ID, fmt.Errorf("failed to finalize message: %w", err), sink)
		return nil, err
	}

	if err := sink.Emit(&sse.Event{
		Type:           sse.EventDone,
		MessageID:      assistant.ID,
		ConversationID: conv.ID,
	}); err != nil {
		s.logger.WithField("message_id", assistant.ID).Warn("client gone before done frame")
	}

	if err := s.broadcaster.PublishComplete(ctx, conv.ID, assistant.ID, content); err != nil {
		s.deadLetters.Record("realtime.publish_complete", map[string]string{
			"conversation_id": conv.ID,
			"message_id":      assistant.ID,
		}, err)
	}

	s.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"message_id":      assistant.ID,
		"content_len":     len(content),
	}).Info("generation completed")

	return &Result{
		ConversationID: conv.ID,
		MessageID:      assistant.ID,
		Message:        content,
	}, nil
}

// streamDeltas 消费提供方增量，发帧并广播
func (s *Service) streamDeltas(ctx context.Context, conversationID, messageID string, req *Request, sink Sink) (string, error) {
	deltas := make(chan string, 16)
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.streamer.Stream(ctx, &provider.StreamRequest{
			Instructions: req.AgentInstructions,
			Messages:     req.Messages,
			Model:        req.Model,
			Temperature:  req.Temperature,
		}, deltas)
	}()

	var accumulated strings.Builder
	index := 0
	for delta := range deltas {
		accumulated.WriteString(delta)

		if err := sink.Emit(&sse.Event{
			Type:           sse.EventContentDelta,
			MessageID:      messageID,
			ConversationID: conversationID,
			Delta:          delta,
		}); err != nil {
			// 客户端断开不中止生成；剩余内容仍会落库和广播
			s.logger.WithField("message_id", messageID).Debug("sink write failed, client likely gone")
			sink = DiscardSink
		}

		if err := s.broadcaster.PublishChunk(ctx, conversationID, messageID, delta, index); err != nil {
			s.deadLetters.Record("realtime.publish_chunk", map[string]interface{}{
				"conversation_id": conversationID,
				"message_id":      messageID,
				"chunk_index":     index,
			}, err)
		}
		index++
	}

	if err := <-errCh; err != nil {
		return accumulated.String(), err
	}
	return accumulated.String(), nil
}

// finalizeError 生成失败时的收尾
// 错误文本写入占位行并清除流式标记；部分生成内容不另行保留
func (s *Service) finalizeError(conversationID, messageID string, genErr error, sink Sink) {
	errText := fmt.Sprintf("generation failed: %v", genErr)

	if err := s.store.FinalizeMessage(messageID, errText, "", 0); err != nil {
		s.deadLetters.Record("message.finalize_error", map[string]string{
			"conversation_id": conversationID,
			"message_id":      messageID,
		}, err)
	}

	if err := sink.Emit(&sse.Event{
		Type:           sse.EventError,
		MessageID:      messageID,
		ConversationID: conversationID,
		Error:          errText,
	}); err != nil {
		s.logger.WithField("message_id", messageID).Debug("client gone before error frame")
	}

	s.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"message_id":      messageID,
		"error":           genErr,
	}).Error("generation failed")
}

// resolveConversation 获取或惰性创建会话
func (s *Service) resolveConversation(req *Request) (*model.Conversation, error) {
	if req.ConversationID != "" {
		return s.store.GetConversationByID(req.ConversationID)
	}

	conv := &model.Conversation{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Title:     defaultTitle(req),
		AgentName: req.AgentName,
		IsActive:  true,
	}
	if err := s.store.CreateConversation(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// persistUserMessage 落库本轮用户消息
func (s *Service) persistUserMessage(conversationID string, req *Request) error {
	last := req.Messages[len(req.Messages)-1]
	return s.store.CreateMessage(&model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           last.Role,
		Content:        last.Content,
	})
}

// resolveAssistantPlaceholder 复用或创建流式占位行
func (s *Service) resolveAssistantPlaceholder(conversationID string, req *Request) (*model.Message, error) {
	if req.AssistantMessageID != "" {
		return s.store.GetMessageByID(req.AssistantMessageID)
	}

	msg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        "",
		IsStreaming:    true,
	}
	if err := s.store.CreateMessage(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// defaultTitle 从首条用户消息生成会话标题
func defaultTitle(req *Request) string {
	for _, msg := range req.Messages {
		if msg.Role == "user" && strings.TrimSpace(msg.Content) != "" {
			return truncate(strings.TrimSpace(msg.Content), 40)
		}
	}
	return "New conversation"
}

// truncate 截断字符串
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
