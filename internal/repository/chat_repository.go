package repository

import (
	"github.com/tetherapp/tether/internal/model"
	"gorm.io/gorm"
)

// ChatRepository 对话数据访问
type ChatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建对话仓库
func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateConversation 创建会话
func (r *ChatRepository) CreateConversation(conv *model.Conversation) error {
	return r.db.Create(conv).Error
}

// GetConversationByID 获取会话
func (r *ChatRepository) GetConversationByID(id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.Where("id = ?", id).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations 列出用户会话
func (r *ChatRepository) ListConversations(userID string, offset, limit int) ([]*model.Conversation, error) {
	var convs []*model.Conversation
	query := r.db.Where("is_active = ?", true).Order("updated_at DESC").Offset(offset).Limit(limit)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	err := query.Find(&convs).Error
	return convs, err
}

// UpdateConversation 更新会话
func (r *ChatRepository) UpdateConversation(conv *model.Conversation) error {
	return r.db.Save(conv).Error
}

// DeactivateConversation 停用会话
// 会话软保留，本子系统不做物理删除
func (r *ChatRepository) DeactivateConversation(id string) error {
	return r.db.Model(&model.Conversation{}).Where("id = ?", id).Update("is_active", false).Error
}

// CreateMessage 创建消息
func (r *ChatRepository) CreateMessage(msg *model.Message) error {
	return r.db.Create(msg).Error
}

// GetMessageByID 获取单条消息
func (r *ChatRepository) GetMessageByID(id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessagesByConversationID 获取会话消息
func (r *ChatRepository) GetMessagesByConversationID(conversationID string) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Preload("Attachments").
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// GetRecentMessages 获取会话最近的 N 条消息
func (r *ChatRepository) GetRecentMessages(conversationID string, limit int) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// FinalizeMessage 按显式消息 ID 落定流式消息
// 一次性写入最终内容并清除流式标记，不按"最近一条"推断
func (r *ChatRepository) FinalizeMessage(id, content, modelName string, tokenCount int) error {
	return r.db.Model(&model.Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"content":      content,
		"is_streaming": false,
		"model":        modelName,
		"token_count":  tokenCount,
	}).Error
}

// AppendStreamingContent 更新流式消息的中间内容
func (r *ChatRepository) AppendStreamingContent(id, content string) error {
	return r.db.Model(&model.Message{}).
		Where("id = ? AND is_streaming = ?", id, true).
		Update("content", content).Error
}

// ListStaleStreamingMessages 列出超过阈值仍处于流式状态的消息
func (r *ChatRepository) ListStaleStreamingMessages(olderThan int) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.Where("is_streaming = ? AND created_at < NOW() - (? * INTERVAL '1 minute')", true, olderThan).
		Find(&messages).Error
	return messages, err
}

// CreateAttachment 创建附件
func (r *ChatRepository) CreateAttachment(att *model.MessageAttachment) error {
	return r.db.Create(att).Error
}

// GetAttachmentsByMessageID 获取消息附件
func (r *ChatRepository) GetAttachmentsByMessageID(messageID string) ([]*model.MessageAttachment, error) {
	var atts []*model.MessageAttachment
	err := r.db.Where("message_id = ?", messageID).Find(&atts).Error
	return atts, err
}
