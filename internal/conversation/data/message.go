package data

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/consensus-backend/internal/conversation/models"
	"github.com/lk2023060901/consensus-backend/internal/conversation/types"
	apperrors "github.com/lk2023060901/consensus-backend/internal/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepo 基于 GORM 实现 biz.MessageRepo
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo 创建消息仓储
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create 在对话最新消息之后追加消息并返回 id
func (r *MessageRepo) Create(ctx context.Context, ownerID, conversationID string, rec types.MessageRecord) (string, error) {
	model := r.toModel(conversationID, rec)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 行锁保证同一对话的 seq 串行分配
		if _, err := owned(tx.Clauses(clause.Locking{Strength: "UPDATE"}), ownerID, conversationID); err != nil {
			return err
		}

		var maxSeq int64
		if err := tx.Model(&models.Message{}).
			Where("conversation_id = ?", conversationID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("failed to allocate message seq: %w", err)
		}
		model.Seq = maxSeq + 1

		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", time.Now().UTC()).Error; err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return model.ID, nil
}

// List 返回对话的一页消息，最新的在前
func (r *MessageRepo) List(ctx context.Context, ownerID, conversationID, after string, limit int) (types.MessagePage, error) {
	if limit <= 0 {
		return types.MessagePage{}, apperrors.New(apperrors.ErrInvalidParams, "limit must be positive")
	}

	db := r.db.WithContext(ctx)
	if _, err := owned(db, ownerID, conversationID); err != nil {
		return types.MessagePage{}, err
	}

	query := db.Where("conversation_id = ?", conversationID)
	if after != "" {
		seq, err := decodeMessageKey(after)
		if err != nil {
			return types.MessagePage{}, err
		}
		query = query.Where("seq < ?", seq)
	}

	var modelList []models.Message
	if err := query.Order("seq DESC").Limit(limit + 1).Find(&modelList).Error; err != nil {
		return types.MessagePage{}, fmt.Errorf("failed to list messages: %w", err)
	}

	var next *string
	if len(modelList) > limit {
		modelList = modelList[:limit]
		token := encodeMessageKey(modelList[limit-1].Seq)
		next = &token
	}

	records := make([]types.MessageRecord, 0, len(modelList))
	for i := range modelList {
		records = append(records, r.toDomain(&modelList[i]))
	}
	return types.MessagePage{Records: records, Next: next}, nil
}

// Delete 删除单条消息，消息不存在时不报错
func (r *MessageRepo) Delete(ctx context.Context, ownerID, conversationID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}

	db := r.db.WithContext(ctx)
	if _, err := owned(db, ownerID, conversationID); err != nil {
		if apperrors.Is(err, apperrors.ErrConversationNotFound) {
			return nil
		}
		return err
	}

	if err := db.Where("id = ? AND conversation_id = ?", id, conversationID).
		Delete(&models.Message{}).Error; err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// toModel 领域记录转换为 GORM 模型
func (r *MessageRepo) toModel(conversationID string, rec types.MessageRecord) *models.Message {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           string(rec.Role),
		Content:        rec.Content,
		Provider:       rec.Provider,
		Model:          rec.Model,
		CreatedAt:      createdAt.UTC(),
	}
}

// toDomain GORM 模型转换为领域记录
func (r *MessageRepo) toDomain(model *models.Message) types.MessageRecord {
	return types.MessageRecord{
		ID:        model.ID,
		Role:      types.Role(model.Role),
		Content:   model.Content,
		Provider:  model.Provider,
		Model:     model.Model,
		CreatedAt: model.CreatedAt,
	}
}
