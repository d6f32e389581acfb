// Package provider 封装模型提供方的流式调用
package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tetherapp/tether/internal/config"
)

// ChatMessage 提供方无关的消息表示
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamRequest 一次流式生成请求
type StreamRequest struct {
	Instructions string
	Messages     []ChatMessage
	Model        string
	Temperature  float64
}

// Streamer 流式生成接口
// 实现把增量写入 deltas 通道，结束后关闭通道并返回最终错误
type Streamer interface {
	Stream(ctx context.Context, req *StreamRequest, deltas chan<- string) error
	ModelName() string
	Ready() bool
}

// OpenAIStreamer 基于 eino OpenAI ChatModel 的实现
type OpenAIStreamer struct {
	cfg config.AIConfig
}

// NewOpenAIStreamer 创建 OpenAI 流式客户端
func NewOpenAIStreamer(cfg config.AIConfig) *OpenAIStreamer {
	return &OpenAIStreamer{cfg: cfg}
}

// Ready 提供方是否已配置
func (s *OpenAIStreamer) Ready() bool {
	return s.cfg.APIKey != ""
}

// ModelName 默认模型名
func (s *OpenAIStreamer) ModelName() string {
	return s.cfg.Model
}

// Stream 发起流式调用并把增量写入 deltas
// ctx 取消会中止上游调用，停止继续计费
func (s *OpenAIStreamer) Stream(ctx context.Context, req *StreamRequest, deltas chan<- string) error {
	defer close(deltas)

	if s.cfg.APIKey == "" {
		return fmt.Errorf("provider api key is not configured")
	}

	chatModel, err := s.newChatModel(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create chat model: %w", err)
	}

	reader, err := chatModel.Stream(ctx, buildMessages(req))
	if err != nil {
		return fmt.Errorf("provider stream failed: %w", err)
	}
	defer reader.Close()

	for {
		chunk, err := reader.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("provider stream error: %w", err)
		}
		if chunk.Content == "" {
			continue
		}

		select {
		case deltas <- chunk.Content:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// newChatModel 按请求构建 ChatModel
func (s *OpenAIStreamer) newChatModel(ctx context.Context, req *StreamRequest) (model.ToolCallingChatModel, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = s.cfg.Model
	}

	temperature := float32(s.cfg.Temperature)
	if req.Temperature > 0 {
		temperature = float32(req.Temperature)
	}

	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      s.cfg.APIKey,
		BaseURL:     s.cfg.BaseURL,
		Model:       modelName,
		Temperature: &temperature,
	})
}

// buildMessages 构建提供方消息列表
func buildMessages(req *StreamRequest) []*schema.Message {
	result := make([]*schema.Message, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		result = append(result, &schema.Message{
			Role:    schema.System,
			Content: req.Instructions,
		})
	}
	for _, msg := range req.Messages {
		result = append(result, &schema.Message{
			Role:    roleToSchema(msg.Role),
			Content: msg.Content,
		})
	}
	return result
}

// roleToSchema 将字符串角色转换为 schema.RoleType
func roleToSchema(role string) schema.RoleType {
	switch role {
	case "system":
		return schema.System
	case "assistant":
		return schema.Assistant
	case "tool":
		return schema.Tool
	default:
		return schema.User
	}
}
