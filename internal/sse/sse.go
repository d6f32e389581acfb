// Package sse 提供聊天中继的 Server-Sent Events 编解码
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// 帧类型
const (
	EventContentDelta = "content_delta"
	EventDone         = "done"
	EventError        = "error"
)

// DoneSentinel 流结束哨兵帧负载
const DoneSentinel = "[DONE]"

// Event 生成端点发出的帧负载
type Event struct {
	Type           string `json:"type"`
	MessageID      string `json:"message_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Delta          string `json:"delta,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Writer 向 HTTP 响应写 SSE 帧
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter 创建 SSE 写入器并设置响应头
// 返回错误表示底层 ResponseWriter 不支持 Flush
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent 序列化并写出一帧
func (w *Writer) WriteEvent(evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return w.WriteData(data)
}

// WriteData 写出一帧原始负载
func (w *Writer) WriteData(payload []byte) error {
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// WriteDone 写出结束哨兵帧
func (w *Writer) WriteDone() error {
	return w.WriteData([]byte(DoneSentinel))
}

// Scanner 从字节流解析 SSE 帧负载
type Scanner struct {
	scanner *bufio.Scanner
}

// NewScanner 创建帧扫描器
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Scanner{scanner: s}
}

var dataPrefix = []byte("data:")

// Next 返回下一帧的 data 负载
// 流结束返回 io.EOF；非 data 行（注释、事件名、空行）被跳过
func (s *Scanner) Next() ([]byte, error) {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 {
			continue
		}
		// 扫描器复用底层缓冲，负载需要拷贝
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
