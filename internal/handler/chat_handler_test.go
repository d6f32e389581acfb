package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tetherapp/tether/internal/config"
	"github.com/tetherapp/tether/internal/handler"
	"github.com/tetherapp/tether/internal/model"
	"github.com/tetherapp/tether/internal/router"
	"github.com/tetherapp/tether/internal/service"
	"github.com/tetherapp/tether/internal/service/auth"
	"github.com/tetherapp/tether/internal/service/chat"
	"github.com/tetherapp/tether/internal/service/deadletter"
	"github.com/tetherapp/tether/internal/service/producer"
	"github.com/tetherapp/tether/internal/service/session"
)

// ========== mocks ==========

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func (s *userStoreStub) CreateUser(user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *userStoreStub) GetUserByID(id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, errors.New("record not found")
}

func (s *userStoreStub) GetUserByEmail(email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, errors.New("record not found")
}

func (s *userStoreStub) GetUserByUsername(username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, errors.New("record not found")
}

type chatStoreStub struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	messages      []*model.Message
	finalized     map[string]string
}

func newChatStoreStub() *chatStoreStub {
	return &chatStoreStub{
		conversations: make(map[string]*model.Conversation),
		finalized:     make(map[string]string),
	}
}

func (s *chatStoreStub) CreateConversation(conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	return nil
}

func (s *chatStoreStub) GetConversationByID(id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[id]; ok {
		return conv, nil
	}
	return nil, errors.New("record not found")
}

func (s *chatStoreStub) ListConversations(userID string, offset, limit int) ([]*model.Conversation, error) {
	return nil, nil
}

func (s *chatStoreStub) DeactivateConversation(id string) error { return nil }

func (s *chatStoreStub) CreateMessage(msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *chatStoreStub) GetMessagesByConversationID(conversationID string) ([]*model.Message, error) {
	return nil, nil
}

func (s *chatStoreStub) FinalizeMessage(id, content, modelName string, tokenCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized[id] = content
	return nil
}

func (s *chatStoreStub) CreateAttachment(att *model.MessageAttachment) error { return nil }

func (s *chatStoreStub) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type personaStoreStub struct{}

func (personaStoreStub) GetByName(name string) (*model.Persona, error) {
	return nil, errors.New("record not found")
}

// producerStub 返回预置 SSE 字节流的生成端点客户端
type producerStub struct {
	body string
	err  error
}

func (p *producerStub) OpenStream(ctx context.Context, req *producer.Request) (io.ReadCloser, error) {
	if p.err != nil {
		return nil, p.err
	}
	return io.NopCloser(strings.NewReader(p.body)), nil
}

func sseBody(events ...string) string {
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "data: %s\n\n", e)
	}
	return b.String()
}

// newChatRouter 组装完整路由并签发一个可用的访问令牌
func newChatRouter(t *testing.T, store *chatStoreStub, client *producerStub) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(new(strings.Builder))

	authSvc := auth.NewService(&userStoreStub{users: make(map[string]*model.User)}, config.AuthConfig{JWTSecret: "test-secret"})
	if _, err := authSvc.Register(context.Background(), &auth.RegisterRequest{
		Username: "ada", Email: "ada@example.com", Password: "secret123",
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	resp, err := authSvc.Login(context.Background(), &auth.LoginRequest{
		Email: "ada@example.com", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	chatSvc := chat.NewService(store, personaStoreStub{}, client, session.NewRegistry(),
		deadletter.NewRecorder(nil, logger), logger, time.Minute)

	svc := &service.Services{
		Auth:   authSvc,
		Chat:   chatSvc,
		Config: &config.Config{},
	}
	return router.SetupRouter(handler.NewHandlers(svc), svc, logger), resp.Token
}

func postChat(r *gin.Engine, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// ========== 聊天入口流式测试 ==========

func TestChatHandler_StreamRelay(t *testing.T) {
	store := newChatStoreStub()
	store.CreateConversation(&model.Conversation{ID: "conv-1", UserID: "u1", IsActive: true})

	client := &producerStub{body: sseBody(
		`{"type":"content_delta","message_id":"m9","conversation_id":"conv-1","delta":"Hel"}`,
		`{"type":"content_delta","message_id":"m9","conversation_id":"conv-1","delta":"lo"}`,
		`{"type":"done","message_id":"m9","conversation_id":"conv-1"}`,
		"[DONE]",
	)}
	r, token := newChatRouter(t, store, client)

	rec := postChat(r, token, `{"message":"hi","conversation_id":"conv-1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Errorf("X-Accel-Buffering = %q", got)
	}

	body := rec.Body.String()
	// 帧原样转发，最后以 [DONE] 收尾
	if !strings.Contains(body, `"delta":"Hel"`) || !strings.Contains(body, `"delta":"lo"`) {
		t.Errorf("deltas not relayed verbatim: %q", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream must end with the done sentinel: %q", body)
	}

	// 中继侧按显式消息 ID 落定拼接内容
	if got := store.finalized["m9"]; got != "Hello" {
		t.Errorf("finalized content = %q, want %q", got, "Hello")
	}
}

func TestChatHandler_UpstreamFailureIsJSON(t *testing.T) {
	store := newChatStoreStub()
	r, token := newChatRouter(t, store, &producerStub{err: errors.New("connection refused")})

	rec := postChat(r, token, `{"message":"hi"}`)

	// 打开上游失败发生在首个 SSE 字节之前，必须退回 JSON 错误
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
	if strings.Contains(rec.Body.String(), "data:") {
		t.Errorf("no SSE bytes may precede a JSON error: %q", rec.Body.String())
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON error body: %v", err)
	}
	if body.Error != "failed to reach the generation endpoint" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestChatHandler_BlankMessage(t *testing.T) {
	store := newChatStoreStub()
	r, token := newChatRouter(t, store, &producerStub{body: sseBody("[DONE]")})

	rec := postChat(r, token, `{"message":""}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Message is required") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if store.messageCount() != 0 {
		t.Error("blank message must leave no rows behind")
	}
}

func TestChatHandler_RequiresAuth(t *testing.T) {
	r, _ := newChatRouter(t, newChatStoreStub(), &producerStub{body: sseBody("[DONE]")})

	rec := postChat(r, "", `{"message":"hi"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
