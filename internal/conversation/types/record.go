package types

import "time"

// ConversationRecord is the backend shape of a conversation
type ConversationRecord struct {
	ID        string
	Title     string
	Kind      string
	CreatedAt time.Time
}

// MessageRecord is the backend shape of a message
type MessageRecord struct {
	ID        string
	Role      Role
	Content   string
	Provider  string
	Model     string
	CreatedAt time.Time
}

// ConversationPage is one newest-first page. Next is nil when no further pages exist.
type ConversationPage struct {
	Records []ConversationRecord
	Next    *string
}

// MessagePage is one newest-first page of a conversation's messages
type MessagePage struct {
	Records []MessageRecord
	Next    *string
}

// Stub turns a listed record into a saved conversation whose messages are not loaded yet
func (r ConversationRecord) Stub() Conversation {
	return Conversation{
		ID:            r.ID,
		RemoteID:      r.ID,
		Kind:          r.Kind,
		Title:         r.Title,
		MessageCursor: Start(),
		IsSaved:       true,
		CreatedAt:     r.CreatedAt,
	}
}

// Message turns a listed record into a persisted message
func (r MessageRecord) Message() Message {
	return Message{
		ID:        r.ID,
		Ref:       NewRef(),
		Role:      r.Role,
		Content:   r.Content,
		Metadata:  Metadata{Provider: r.Provider, Model: r.Model},
		CreatedAt: r.CreatedAt,
	}
}

// Record is the backend shape of m
func (m Message) Record() MessageRecord {
	return MessageRecord{
		Role:      m.Role,
		Content:   m.Content,
		Provider:  m.Metadata.Provider,
		Model:     m.Metadata.Model,
		CreatedAt: m.CreatedAt,
	}
}
