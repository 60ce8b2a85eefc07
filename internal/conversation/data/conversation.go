package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/consensus-backend/internal/conversation/models"
	"github.com/lk2023060901/consensus-backend/internal/conversation/types"
	apperrors "github.com/lk2023060901/consensus-backend/internal/pkg/errors"

	"gorm.io/gorm"
)

// ConversationRepo 基于 GORM 实现 biz.ConversationRepo
type ConversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo 创建对话仓储
func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create 保存新对话并返回 id
func (r *ConversationRepo) Create(ctx context.Context, ownerID string, rec types.ConversationRecord) (string, error) {
	model := r.toModel(ownerID, rec)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return model.ID, nil
}

// List 返回 owner 的一页对话，最新的在前
func (r *ConversationRepo) List(ctx context.Context, ownerID, after string, limit int) (types.ConversationPage, error) {
	if limit <= 0 {
		return types.ConversationPage{}, apperrors.New(apperrors.ErrInvalidParams, "limit must be positive")
	}

	query := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if after != "" {
		key, err := decodeConversationKey(after)
		if err != nil {
			return types.ConversationPage{}, err
		}
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", key.CreatedAt, key.CreatedAt, key.ID)
	}

	var modelList []models.Conversation
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit + 1).
		Find(&modelList).Error; err != nil {
		return types.ConversationPage{}, fmt.Errorf("failed to list conversations: %w", err)
	}

	var next *string
	if len(modelList) > limit {
		modelList = modelList[:limit]
		last := modelList[limit-1]
		token := encodeConversationKey(conversationKey{CreatedAt: last.CreatedAt, ID: last.ID})
		next = &token
	}

	records := make([]types.ConversationRecord, 0, len(modelList))
	for i := range modelList {
		records = append(records, r.toDomain(&modelList[i]))
	}
	return types.ConversationPage{Records: records, Next: next}, nil
}

// Delete 删除对话及其消息，对话不存在时不报错
func (r *ConversationRepo) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.Conversation{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		return nil
	})
}

// owned 在 tx 内加载 owner 的对话，可选加行锁
func owned(tx *gorm.DB, ownerID, id string) (*models.Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.New(apperrors.ErrConversationNotFound, id)
	}
	var model models.Conversation
	if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrConversationNotFound, id)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &model, nil
}

// toModel 领域记录转换为 GORM 模型
func (r *ConversationRepo) toModel(ownerID string, rec types.ConversationRecord) *models.Conversation {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	kind := rec.Kind
	if kind == "" {
		kind = types.DefaultKind
	}
	return &models.Conversation{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     rec.Title,
		Kind:      kind,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: createdAt.UTC(),
	}
}

// toDomain GORM 模型转换为领域记录
func (r *ConversationRepo) toDomain(model *models.Conversation) types.ConversationRecord {
	return types.ConversationRecord{
		ID:        model.ID,
		Title:     model.Title,
		Kind:      model.Kind,
		CreatedAt: model.CreatedAt,
	}
}
