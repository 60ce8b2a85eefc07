package biz

import (
	"context"

	"github.com/lk2023060901/consensus-backend/internal/conversation/types"
)

// ConversationRepo 对话持久化后端，List 按最新在前分页
type ConversationRepo interface {
	Create(ctx context.Context, ownerID string, rec types.ConversationRecord) (string, error)
	List(ctx context.Context, ownerID, after string, limit int) (types.ConversationPage, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// MessageRepo 消息持久化后端，作用于单个对话
type MessageRepo interface {
	Create(ctx context.Context, ownerID, conversationID string, rec types.MessageRecord) (string, error)
	List(ctx context.Context, ownerID, conversationID, after string, limit int) (types.MessagePage, error)
	Delete(ctx context.Context, ownerID, conversationID, id string) error
}

// SaveGuard 跨进程串行化同一对话的保存
type SaveGuard interface {
	Guard(ctx context.Context, key string, fn func() error) error
}

// OwnerResolver 返回 ctx 中已认证的 owner
type OwnerResolver func(ctx context.Context) (string, bool)
