package models

import "gorm.io/gorm"

// AutoMigrate 执行对话领域的数据库迁移
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Conversation{},
		&Message{},
	)
}

// All 对话领域的全部模型
func All() []interface{} {
	return []interface{}{&Conversation{}, &Message{}}
}
