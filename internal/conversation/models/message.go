package models

import "time"

// Message messages 表的 GORM 模型，Seq 决定对话内消息顺序
type Message struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ConversationID string    `gorm:"type:uuid;not null;uniqueIndex:idx_messages_conversation_seq,priority:1" json:"conversation_id"`
	Seq            int64     `gorm:"not null;uniqueIndex:idx_messages_conversation_seq,priority:2" json:"seq"`
	Role           string    `gorm:"type:varchar(20);not null" json:"role"` // user | assistant
	Content        string    `gorm:"type:text;not null" json:"content"`
	Provider       string    `gorm:"type:varchar(100)" json:"provider,omitempty"`
	Model          string    `gorm:"type:varchar(100)" json:"model,omitempty"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "messages"
}
