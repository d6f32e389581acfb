// Package chat 实现聊天入口的业务编排
//
// 入口负责鉴权后的校验、人格解析、实时模式的行预建，
// 以及流式模式下对生成端点字节流的转发与最终落库。
package chat

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tetherapp/tether/internal/model"
	"github.com/tetherapp/tether/internal/service/attachment"
	"github.com/tetherapp/tether/internal/service/deadletter"
	"github.com/tetherapp/tether/internal/service/producer"
	"github.com/tetherapp/tether/internal/service/provider"
	"github.com/tetherapp/tether/internal/service/session"
	"github.com/tetherapp/tether/internal/sse"
)

// 内置默认人格，personas 表没有命中时兜底
const (
	defaultPersonaName         = "companion"
	defaultPersonaInstructions = "You are a warm, attentive companion. Listen carefully, remember context from the conversation, and respond with empathy and care."
)

// SendRequest 发送消息请求
type SendRequest struct {
	Message        string                 `json:"message"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	History        []provider.ChatMessage `json:"history,omitempty"`
	FileURLs       []string               `json:"file_urls,omitempty"`
	Realtime       bool                   `json:"realtime,omitempty"`
	Persona        string                 `json:"persona,omitempty"`
}

// RealtimeAck 实时模式的即时应答
// 实际内容经由会话广播主题送达，不在本响应里
type RealtimeAck struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Message        string `json:"message"`
}

// ProducerClient 访问生成端点的客户端
type ProducerClient interface {
	OpenStream(ctx context.Context, req *producer.Request) (io.ReadCloser, error)
}

// FrameSink 中继输出
type FrameSink interface {
	WriteData(payload []byte) error
	WriteDone() error
}

// Store 入口需要的数据访问接口
type Store interface {
	CreateConversation(conv *model.Conversation) error
	GetConversationByID(id string) (*model.Conversation, error)
	ListConversations(userID string, offset, limit int) ([]*model.Conversation, error)
	DeactivateConversation(id string) error
	CreateMessage(msg *model.Message) error
	GetMessagesByConversationID(conversationID string) ([]*model.Message, error)
	FinalizeMessage(id, content, modelName string, tokenCount int) error
	CreateAttachment(att *model.MessageAttachment) error
}

// PersonaStore 人格配置访问接口
type PersonaStore interface {
	GetByName(name string) (*model.Persona, error)
}

// Service 聊天入口服务
type Service struct {
	store           Store
	personas        PersonaStore
	producerClient  ProducerClient
	streams         *session.Registry
	deadLetters     *deadletter.Recorder
	logger          *logrus.Logger
	dispatchTimeout time.Duration
}

// NewService 创建聊天入口服务
func NewService(store Store, personas PersonaStore, client ProducerClient, streams *session.Registry, dl *deadletter.Recorder, logger *logrus.Logger, dispatchTimeout time.Duration) *Service {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 5 * time.Minute
	}
	return &Service{
		store:           store,
		personas:        personas,
		producerClient:  client,
		streams:         streams,
		deadLetters:     dl,
		logger:          logger,
		dispatchTimeout: dispatchTimeout,
	}
}

// resolvedPersona 解析后的人格配置
type resolvedPersona struct {
	Name         string
	Instructions string
	Model        string
	Temperature  float64
}

// validate 公共校验
func (s *Service) validate(userID string, req *SendRequest) error {
	if userID == "" {
		return NewError(KindAuth, "Unauthorized")
	}
	if strings.TrimSpace(req.Message) == "" {
		return NewError(KindValidation, "Message is required")
	}
	return nil
}

// resolvePersona 解析本轮使用的人格
// 优先请求指定，其次会话绑定，最后内置默认
func (s *Service) resolvePersona(req *SendRequest) *resolvedPersona {
	name := req.Persona
	if name == "" && req.ConversationID != "" {
		if conv, err := s.store.GetConversationByID(req.ConversationID); err == nil && conv.AgentName != "" {
			name = conv.AgentName
		}
	}
	if name == "" {
		name = defaultPersonaName
	}

	if p, err := s.personas.GetByName(name); err == nil {
		return &resolvedPersona{
			Name:         p.Name,
			Instructions: p.Instructions,
			Model:        p.Model,
			Temperature:  p.Temperature,
		}
	}

	return &resolvedPersona{
		Name:         defaultPersonaName,
		Instructions: defaultPersonaInstructions,
	}
}

// buildProducerRequest 构建生成端点请求
func buildProducerRequest(userID string, req *SendRequest, p *resolvedPersona) *producer.Request {
	messages := make([]provider.ChatMessage, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, provider.ChatMessage{Role: "user", Content: req.Message})

	return &producer.Request{
		UserID:            userID,
		ConversationID:    req.ConversationID,
		Messages:          messages,
		AgentName:         p.Name,
		AgentInstructions: p.Instructions,
		Model:             p.Model,
		Temperature:       p.Temperature,
		Stream:            true,
	}
}

// ========== 流式模式 ==========

// Turn 一轮进行中的流式转发
type Turn struct {
	svc            *Service
	body           io.ReadCloser
	cancel         context.CancelFunc
	conversationID string
	persona        *resolvedPersona
	registered     bool
}

// BeginStream 打开到生成端点的流
// 打开失败时尚未写任何 SSE 字节，调用方可以退回 JSON 错误
func (s *Service) BeginStream(ctx context.Context, userID string, req *SendRequest) (*Turn, error) {
	if err := s.validate(userID, req); err != nil {
		return nil, err
	}

	persona := s.resolvePersona(req)

	// 同会话并发发送直接拒绝，避免交错写同一占位行
	registered := false
	streamCtx, cancel := context.WithCancel(ctx)
	if req.ConversationID != "" {
		if _, ok := s.streams.Register(req.ConversationID, "", cancel); !ok {
			cancel()
			return nil, NewError(KindConflict, "a reply is already being generated for this conversation")
		}
		registered = true
	}

	body, err := s.producerClient.OpenStream(streamCtx, buildProducerRequest(userID, req, persona))
	if err != nil {
		if registered {
			s.streams.Unregister(req.ConversationID)
		}
		cancel()
		return nil, WrapError(KindUpstream, "failed to reach the generation endpoint", err)
	}

	return &Turn{
		svc:            s,
		body:           body,
		cancel:         cancel,
		conversationID: req.ConversationID,
		persona:        persona,
		registered:     registered,
	}, nil
}

// Relay 把生成端点的帧原样转发给客户端
// 转发时重新解析帧，收到 done 后按显式消息 ID 落定最终内容，
// 再补发 [DONE] 哨兵并一起关闭两端
func (t *Turn) Relay(ctx context.Context, sink FrameSink) error {
	defer t.Close()

	s := t.svc
	scanner := sse.NewScanner(t.body)
	var accumulated strings.Builder
	var messageID string
	finished := false

	for {
		select {
		case <-ctx.Done():
			// 客户端断开：取消信号已沿请求上下文传给生成端点
			s.logger.WithField("conversation_id", t.conversationID).Info("client disconnected mid-stream")
			return nil
		default:
		}

		payload, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !finished {
				writeErrorFrame(sink, "connection to the generation endpoint was lost")
			}
			return WrapError(KindUpstream, "relay interrupted", err)
		}

		if string(payload) == sse.DoneSentinel {
			break
		}

		// 原样转发，只重新装帧
		if werr := sink.WriteData(payload); werr != nil {
			s.logger.WithField("conversation_id", t.conversationID).Info("client write failed mid-stream")
			return nil
		}

		var evt sse.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			// 单帧损坏只跳过解析，不中断转发
			continue
		}

		switch evt.Type {
		case sse.EventContentDelta:
			accumulated.WriteString(evt.Delta)
			if evt.MessageID != "" {
				messageID = evt.MessageID
			}
		case sse.EventDone:
			if evt.MessageID != "" {
				messageID = evt.MessageID
			}
			if evt.ConversationID != "" {
				t.conversationID = evt.ConversationID
			}
			finished = true
		case sse.EventError:
			// 错误帧已转发，本轮到此为止，不再发 [DONE]
			return nil
		}
	}

	if finished && messageID != "" {
		// 入口侧按显式 ID 复核落库，绝不按"最近一条"选行
		if err := s.store.FinalizeMessage(messageID, accumulated.String(), t.persona.Model, len(accumulated.String())/4); err != nil {
			s.deadLetters.Record("ingress.finalize_message", map[string]string{
				"conversation_id": t.conversationID,
				"message_id":      messageID,
			}, err)
		}
	}

	return sink.WriteDone()
}

// Close 释放本轮资源，可重复调用
func (t *Turn) Close() {
	if t.body != nil {
		t.body.Close()
		t.body = nil
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.registered {
		t.svc.streams.Unregister(t.conversationID)
		t.registered = false
	}
}

// writeErrorFrame 向客户端发一帧错误
func writeErrorFrame(sink FrameSink, message string) {
	payload, _ := json.Marshal(&sse.Event{Type: sse.EventError, Error: message})
	_ = sink.WriteData(payload)
}

// ========== 实时模式 ==========

// SendRealtime 实时模式发送
// 预建会话、用户消息、附件和流式占位行后立即应答；
// 生成在后台进行，内容经广播主题镜像到订阅端
func (s *Service) SendRealtime(ctx context.Context, userID string, req *SendRequest) (*RealtimeAck, error) {
	if err := s.validate(userID, req); err != nil {
		return nil, err
	}

	persona := s.resolvePersona(req)

	conv, err := s.resolveConversation(userID, req, persona)
	if err != nil {
		return nil, WrapError(KindInternal, "failed to resolve conversation", err)
	}

	// 先占名额再落行：登记即冲突检查，
	// 并发发送在任何行写入之前就拿到 409
	bgCtx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
	if _, ok := s.streams.Register(conv.ID, "", cancel); !ok {
		cancel()
		return nil, NewError(KindConflict, "a reply is already being generated for this conversation")
	}
	release := func() {
		s.streams.Unregister(conv.ID)
		cancel()
	}

	userMsg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           "user",
		Content:        req.Message,
	}
	if err := s.store.CreateMessage(userMsg); err != nil {
		release()
		return nil, WrapError(KindInternal, "failed to persist message", err)
	}

	s.persistAttachments(userMsg.ID, req.FileURLs)

	placeholder := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           "assistant",
		Content:        "",
		IsStreaming:    true,
	}
	if err := s.store.CreateMessage(placeholder); err != nil {
		release()
		return nil, WrapError(KindInternal, "failed to create streaming placeholder", err)
	}

	s.streams.SetMessageID(conv.ID, placeholder.ID)
	s.dispatchGeneration(bgCtx, cancel, userID, conv.ID, placeholder.ID, req, persona)

	return &RealtimeAck{
		ConversationID: conv.ID,
		MessageID:      placeholder.ID,
		Message:        "Message sent. The reply will arrive over the realtime channel.",
	}, nil
}

// dispatchGeneration 后台触发生成
// 名额已在 SendRealtime 预留；行已预建，生成端点复用显式消息 ID，
// 不再重复落库用户消息
func (s *Service) dispatchGeneration(ctx context.Context, cancel context.CancelFunc, userID, conversationID, messageID string, req *SendRequest, persona *resolvedPersona) {
	prodReq := buildProducerRequest(userID, req, persona)
	prodReq.ConversationID = conversationID
	prodReq.AssistantMessageID = messageID
	prodReq.SkipUserPersist = true

	go func() {
		defer cancel()
		defer s.streams.Unregister(conversationID)

		body, err := s.producerClient.OpenStream(ctx, prodReq)
		if err != nil {
			// 占位行交给清理任务落定
			s.deadLetters.Record("realtime.dispatch", map[string]string{
				"conversation_id": conversationID,
				"message_id":      messageID,
			}, err)
			return
		}
		defer body.Close()

		// 内容走广播通道，这里只消费到流结束
		_, _ = io.Copy(io.Discard, body)
	}()
}

// persistAttachments 落库附件行，按扩展名归类
// 附件属于次要簿记，失败记死信不阻断主响应
func (s *Service) persistAttachments(messageID string, fileURLs []string) {
	for _, fileURL := range fileURLs {
		att := &model.MessageAttachment{
			ID:        uuid.New().String(),
			MessageID: messageID,
			MediaType: attachment.Classify(fileURL),
			URL:       fileURL,
			FileName:  attachment.FileName(fileURL),
		}
		if err := s.store.CreateAttachment(att); err != nil {
			s.deadLetters.Record("attachment.create", map[string]string{
				"message_id": messageID,
				"url":        fileURL,
			}, err)
		}
	}
}

// resolveConversation 获取或创建会话
func (s *Service) resolveConversation(userID string, req *SendRequest, persona *resolvedPersona) (*model.Conversation, error) {
	if req.ConversationID != "" {
		return s.store.GetConversationByID(req.ConversationID)
	}

	cfg, _ := json.Marshal(map[string]interface{}{
		"persona":     persona.Name,
		"model":       persona.Model,
		"temperature": persona.Temperature,
	})

	conv := &model.Conversation{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       generateDefaultTitle(req.Message),
		AgentName:   persona.Name,
		AgentConfig: string(cfg),
		IsActive:    true,
	}
	if err := s.store.CreateConversation(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ========== 会话管理 ==========

// StopStream 停止会话进行中的生成
func (s *Service) StopStream(conversationID string) bool {
	return s.streams.Stop(conversationID)
}

// ListConversationsRequest 列出会话请求
type ListConversationsRequest struct {
	Page int
	Size int
}

// ListConversations 列出用户会话
func (s *Service) ListConversations(ctx context.Context, userID string, req *ListConversationsRequest) ([]*model.Conversation, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Size <= 0 || req.Size > 100 {
		req.Size = 20
	}
	offset := (req.Page - 1) * req.Size
	return s.store.ListConversations(userID, offset, req.Size)
}

// GetConversation 获取会话及消息
func (s *Service) GetConversation(ctx context.Context, userID, id string) (*model.Conversation, []*model.Message, error) {
	conv, err := s.store.GetConversationByID(id)
	if err != nil {
		return nil, nil, NewError(KindNotFound, "conversation not found")
	}
	if conv.UserID != userID {
		return nil, nil, NewError(KindNotFound, "conversation not found")
	}

	messages, err := s.store.GetMessagesByConversationID(id)
	if err != nil {
		return nil, nil, WrapError(KindInternal, "failed to load messages", err)
	}
	return conv, messages, nil
}

// DeactivateConversation 停用会话（软保留）
func (s *Service) DeactivateConversation(ctx context.Context, userID, id string) error {
	conv, err := s.store.GetConversationByID(id)
	if err != nil {
		return NewError(KindNotFound, "conversation not found")
	}
	if conv.UserID != userID {
		return NewError(KindNotFound, "conversation not found")
	}
	if err := s.store.DeactivateConversation(id); err != nil {
		return WrapError(KindInternal, "failed to deactivate conversation", err)
	}
	return nil
}

// generateDefaultTitle 从首条消息生成默认标题
func generateDefaultTitle(message string) string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "New conversation"
	}
	runes := []rune(trimmed)
	if len(runes) <= 40 {
		return trimmed
	}
	return string(runes[:40]) + "..."
}
