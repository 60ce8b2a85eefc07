package service

import (
	"time"

	"github.com/lk2023060901/consensus-backend/internal/conversation/store"
	"github.com/lk2023060901/consensus-backend/internal/conversation/types"
)

// MessageDTO 消息的 JSON 结构
type MessageDTO struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Persisted bool      `json:"persisted"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationDTO 对话的 JSON 结构，Messages 最新的在前
type ConversationDTO struct {
	ID              string       `json:"id"`
	LocalID         string       `json:"local_id,omitempty"`
	Title           string       `json:"title"`
	Kind            string       `json:"kind"`
	IsSaved         bool         `json:"is_saved"`
	HasMoreMessages bool         `json:"has_more_messages"`
	CreatedAt       time.Time    `json:"created_at"`
	Messages        []MessageDTO `json:"messages,omitempty"`
}

// ListDTO 会话的对话列表
type ListDTO struct {
	CurrentID     string            `json:"current_id,omitempty"`
	HasMore       bool              `json:"has_more"`
	Conversations []ConversationDTO `json:"conversations"`
}

func toMessageDTO(m types.Message) MessageDTO {
	return MessageDTO{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		Provider:  m.Metadata.Provider,
		Model:     m.Metadata.Model,
		Persisted: m.Persisted(),
		CreatedAt: m.CreatedAt,
	}
}

func toConversationDTO(c types.Conversation, withMessages bool) ConversationDTO {
	dto := ConversationDTO{
		ID:              c.ID,
		Title:           c.Title,
		Kind:            c.Kind,
		IsSaved:         c.IsSaved,
		HasMoreMessages: c.MessageCursor.HasMore(),
		CreatedAt:       c.CreatedAt,
	}
	if c.LocalID != c.ID {
		dto.LocalID = c.LocalID
	}
	if withMessages {
		dto.Messages = make([]MessageDTO, 0, len(c.Messages))
		for _, m := range c.Messages {
			dto.Messages = append(dto.Messages, toMessageDTO(m))
		}
	}
	return dto
}

func toListDTO(snap *store.Snapshot) ListDTO {
	dto := ListDTO{
		CurrentID:     snap.CurrentID,
		HasMore:       snap.ListCursor.HasMore(),
		Conversations: make([]ConversationDTO, 0, len(snap.Conversations)),
	}
	for _, c := range snap.Conversations {
		dto.Conversations = append(dto.Conversations, toConversationDTO(c, false))
	}
	return dto
}
