package model

import "time"

// DeadLetter 次要写入失败记录
// 主流程吞掉的簿记错误在这里留痕，便于事后排查
type DeadLetter struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Operation string    `gorm:"size:100;index" json:"operation"`
	Payload   string    `gorm:"type:text" json:"payload"`
	Error     string    `gorm:"type:text" json:"error"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName 指定表名
func (DeadLetter) TableName() string {
	return "dead_letters"
}
