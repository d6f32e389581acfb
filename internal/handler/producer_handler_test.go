package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tetherapp/tether/internal/model"
	"github.com/tetherapp/tether/internal/service"
	"github.com/tetherapp/tether/internal/service/deadletter"
	"github.com/tetherapp/tether/internal/service/producer"
	"github.com/tetherapp/tether/internal/service/provider"
	"github.com/tetherapp/tether/internal/sse"
)

// ========== mocks ==========

type fakeProducerStore struct {
	conversations map[string]*model.Conversation
	messages      map[string]*model.Message
	finalized     map[string]string
}

func newFakeProducerStore() *fakeProducerStore {
	return &fakeProducerStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string]*model.Message),
		finalized:     make(map[string]string),
	}
}

func (f *fakeProducerStore) CreateConversation(conv *model.Conversation) error {
	f.conversations[conv.ID] = conv
	return nil
}

func (f *fakeProducerStore) GetConversationByID(id string) (*model.Conversation, error) {
	if conv, ok := f.conversations[id]; ok {
		return conv, nil
	}
	return nil, errors.New("record not found")
}

func (f *fakeProducerStore) CreateMessage(msg *model.Message) error {
	f.messages[msg.ID] = msg
	return nil
}

func (f *fakeProducerStore) GetMessageByID(id string) (*model.Message, error) {
	if msg, ok := f.messages[id]; ok {
		return msg, nil
	}
	return nil, errors.New("record not found")
}

func (f *fakeProducerStore) FinalizeMessage(id, content, modelName string, tokenCount int) error {
	f.finalized[id] = content
	return nil
}

type fakeStreamer struct {
	deltas []string
	err    error
	ready  bool
}

func (f *fakeStreamer) Stream(ctx context.Context, req *provider.StreamRequest, deltas chan<- string) error {
	defer close(deltas)
	for _, d := range f.deltas {
		deltas <- d
	}
	return f.err
}

func (f *fakeStreamer) ModelName() string { return "test-model" }
func (f *fakeStreamer) Ready() bool       { return f.ready }

type noopBroadcaster struct{}

func (noopBroadcaster) PublishChunk(ctx context.Context, conversationID, messageID, chunk string, index int) error {
	return nil
}

func (noopBroadcaster) PublishComplete(ctx context.Context, conversationID, messageID, content string) error {
	return nil
}

func newProducerRouter(streamer *fakeStreamer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(new(strings.Builder))

	svc := &service.Services{
		Producer: producer.NewService(newFakeProducerStore(), streamer, noopBroadcaster{},
			deadletter.NewRecorder(nil, logger), logger),
	}

	r := gin.New()
	r.POST("/functions/v1/ai-chat", NewProducerHandler(svc).Generate)
	return r
}

func postJSON(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/ai-chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// ========== 生成端点测试 ==========

func TestProducerHandler_EmptyBody(t *testing.T) {
	r := newProducerRouter(&fakeStreamer{ready: true})

	rec := postJSON(r, "")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var body errorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "request body is required" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestProducerHandler_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing user_id", `{"messages":[{"role":"user","content":"hi"}]}`, "user_id is required"},
		{"missing messages", `{"user_id":"u1"}`, "messages must not be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newProducerRouter(&fakeStreamer{ready: true})

			rec := postJSON(r, tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var body errorBody
			json.Unmarshal(rec.Body.Bytes(), &body)
			if body.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", body.Error, tt.wantErr)
			}
		})
	}
}

func TestProducerHandler_ProviderNotConfigured(t *testing.T) {
	r := newProducerRouter(&fakeStreamer{ready: false})

	rec := postJSON(r, `{"user_id":"u1","messages":[{"role":"user","content":"hi"}]}`)

	// 缺 API key 必须显式 500，不允许假装成功
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "api key is not configured") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestProducerHandler_SyncGeneration(t *testing.T) {
	r := newProducerRouter(&fakeStreamer{ready: true, deltas: []string{"Hel", "lo"}})

	rec := postJSON(r, `{"user_id":"u1","messages":[{"role":"user","content":"hi"}],"stream":false}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result producer.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if result.Message != "Hello" {
		t.Errorf("message = %q, want %q", result.Message, "Hello")
	}
	if result.ConversationID == "" || result.MessageID == "" {
		t.Errorf("result ids missing: %+v", result)
	}
}

func TestProducerHandler_StreamingGeneration(t *testing.T) {
	r := newProducerRouter(&fakeStreamer{ready: true, deltas: []string{"Hel", "lo"}})

	rec := postJSON(r, `{"user_id":"u1","messages":[{"role":"user","content":"hi"}],"stream":true}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}

	body := rec.Body.String()
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream must end with the done sentinel: %q", body)
	}

	// 逐帧解析：2 个增量 + 1 个完成帧
	scanner := sse.NewScanner(strings.NewReader(body))
	var types []string
	for {
		payload, err := scanner.Next()
		if err != nil {
			break
		}
		if string(payload) == sse.DoneSentinel {
			break
		}
		var evt sse.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			t.Fatalf("malformed frame %q: %v", payload, err)
		}
		if evt.MessageID == "" {
			t.Errorf("frame %s missing message_id", evt.Type)
		}
		types = append(types, evt.Type)
	}
	want := []string{"content_delta", "content_delta", "done"}
	if len(types) != len(want) {
		t.Fatalf("frame types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("frame #%d = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestProducerHandler_StreamingProviderError(t *testing.T) {
	r := newProducerRouter(&fakeStreamer{ready: true, deltas: []string{"par"}, err: errors.New("provider unavailable")})

	rec := postJSON(r, `{"user_id":"u1","messages":[{"role":"user","content":"hi"}],"stream":true}`)

	body := rec.Body.String()
	// 错误帧是终止帧，之后不允许再出现 [DONE]
	if !strings.Contains(body, `"type":"error"`) {
		t.Errorf("stream missing error frame: %q", body)
	}
	if strings.Contains(body, "[DONE]") {
		t.Errorf("stream must not contain [DONE] after an error frame: %q", body)
	}
}
