package model

import "time"

// Persona 陪伴人格配置
type Persona struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Name         string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	DisplayName  string    `gorm:"size:100" json:"display_name"`
	Instructions string    `gorm:"type:text" json:"instructions"`
	Model        string    `gorm:"size:100" json:"model"`
	Temperature  float64   `gorm:"default:0.7" json:"temperature"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Persona) TableName() string {
	return "personas"
}
