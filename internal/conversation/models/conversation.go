package models

import "time"

// Conversation conversations 表的 GORM 模型
type Conversation struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerID   string    `gorm:"type:varchar(64);not null;index:idx_conversations_owner_created,priority:1" json:"owner_id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Kind      string    `gorm:"type:varchar(32);not null;default:'chat'" json:"kind"`
	CreatedAt time.Time `gorm:"not null;index:idx_conversations_owner_created,priority:2,sort:desc" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversations"
}
