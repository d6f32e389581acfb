package model

import "time"

// Conversation 对话会话
// 首条消息到达时惰性创建；只停用不删除
type Conversation struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"index;size:36" json:"user_id"`
	Title       string    `gorm:"size:255" json:"title"`
	AgentName   string    `gorm:"size:100" json:"agent_name"`
	AgentConfig string    `gorm:"type:jsonb" json:"agent_config"` // persona 配置 JSON
	IsActive    bool      `gorm:"index;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	Messages    []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// Message 对话消息
// 流式生成期间 Content 可变，IsStreaming 只允许清除一次
type Message struct {
	ID             string              `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string              `gorm:"index;size:36" json:"conversation_id"`
	Role           string              `gorm:"size:20;index" json:"role"` // user, assistant, system, tool
	Content        string              `gorm:"type:text" json:"content"`
	IsStreaming    bool                `gorm:"index;default:false" json:"is_streaming"`
	Model          string              `gorm:"size:100" json:"model,omitempty"`
	TokenCount     int                 `gorm:"default:0" json:"token_count"`
	CreatedAt      time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
	Attachments    []MessageAttachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}

// MessageAttachment 消息附件
// 随用户消息一次写入，之后不再修改
type MessageAttachment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	MessageID string    `gorm:"index;size:36" json:"message_id"`
	MediaType string    `gorm:"size:20" json:"media_type"` // image, video, audio, document, file
	URL       string    `gorm:"size:1000" json:"url"`
	FileName  string    `gorm:"size:255" json:"file_name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversations"
}

func (Message) TableName() string {
	return "messages"
}

func (MessageAttachment) TableName() string {
	return "message_attachments"
}
