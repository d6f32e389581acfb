package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// State 客户端单轮状态
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateDone       State = "done"
	StateError      State = "error"
)

// Callbacks 流回调
type Callbacks struct {
	// OnContentDelta 收到增量时回调，参数为累计文本
	OnContentDelta func(cumulative string)
	// OnComplete 流正常结束时回调，参数为最终文本
	OnComplete func(final string)
	// OnError 流失败时回调，参数为可读的错误描述
	OnError func(message string)
}

// Client 聊天流式客户端
// 同一时刻只保持一条连接；每轮独立，不跨轮保留状态
type Client struct {
	Endpoint   string
	Token      string
	HTTPClient *http.Client

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	stopped bool
}

// NewClient 创建流式客户端
func NewClient(endpoint, token string) *Client {
	return &Client{
		Endpoint:   endpoint,
		Token:      token,
		HTTPClient: http.DefaultClient,
		state:      StateIdle,
	}
}

// State 返回当前状态
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stream 发起一轮流式请求并阻塞消费到结束
// 若已有进行中的连接，先将其关闭
func (c *Client) Stream(ctx context.Context, payload interface{}, cb Callbacks) error {
	c.Stop()

	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.stopped = false
	c.state = StateConnecting
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		return c.fail(cb, fmt.Sprintf("invalid request payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return c.fail(cb, fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return c.fail(cb, classifyTransportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.fail(cb, classifyStatus(resp.StatusCode, resp.Body))
	}

	c.setState(StateStreaming)

	var accumulated strings.Builder
	scanner := NewScanner(resp.Body)
	for {
		payload, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// 读到一半连接断开：本轮终止，不自动重试
			return c.fail(cb, fmt.Sprintf("connection lost mid-stream: %v", err))
		}

		if string(payload) == DoneSentinel {
			break
		}

		var evt Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			// 单帧损坏不终止整条流
			continue
		}

		switch evt.Type {
		case EventContentDelta:
			accumulated.WriteString(evt.Delta)
			c.dispatchDelta(cb, accumulated.String())
		case EventDone:
			// 终帧，后面可能还跟 [DONE] 哨兵
		case EventError:
			msg := evt.Error
			if msg == "" {
				msg = "connection error"
			}
			return c.fail(cb, msg)
		}
	}

	c.setState(StateDone)
	if cb.OnComplete != nil && !c.isStopped() {
		cb.OnComplete(accumulated.String())
	}
	c.setState(StateIdle)
	return nil
}

// Stop 关闭当前连接
// 可重复调用；返回后不再触发 OnContentDelta
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = StateIdle
}

// dispatchDelta 在未停止时派发增量回调
// 与 Stop 持同一把锁，保证 Stop 返回后回调不再触发
func (c *Client) dispatchDelta(cb Callbacks, cumulative string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || cb.OnContentDelta == nil {
		return
	}
	cb.OnContentDelta(cumulative)
}

func (c *Client) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Client) fail(cb Callbacks, message string) error {
	c.setState(StateError)
	if cb.OnError != nil && !c.isStopped() {
		cb.OnError(message)
	}
	c.setState(StateIdle)
	return fmt.Errorf("%s", message)
}

// classifyStatus 将 HTTP 状态码归类为可操作的提示
// 仅用于生成提示文案，不影响重试行为（本客户端不自动重试）
func classifyStatus(status int, body io.Reader) string {
	switch status {
	case http.StatusNotFound:
		return "chat endpoint not found: the streaming function may not be deployed"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "authentication failed: please sign in again"
	case http.StatusInternalServerError:
		return "server error: " + truncateBody(body, 200)
	default:
		return fmt.Sprintf("unexpected status %d: %s", status, truncateBody(body, 200))
	}
}

// classifyTransportError 归类连接层错误
func classifyTransportError(err error) string {
	if strings.Contains(err.Error(), "context canceled") {
		return "request canceled"
	}
	return "could not reach the chat service: check your network connection and that the service is running"
}

// truncateBody 读取并截断响应体用于错误提示
func truncateBody(r io.Reader, limit int) string {
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil || len(data) == 0 {
		return "(no response body)"
	}
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
