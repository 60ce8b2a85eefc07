package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// localPrefix marks ids minted in-process; backend ids are bare UUIDs
const localPrefix = "local-"

// DefaultKind is used when a conversation is created without one
const DefaultKind = "chat"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Metadata struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Message is immutable once created. ID stays empty until the backend has it.
type Message struct {
	ID        string    `json:"id"`
	Ref       string    `json:"ref"` // local handle, never sent to the backend
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

func (m Message) Persisted() bool { return m.ID != "" }

// Conversation keeps Messages newest-first.
// LocalID is the id it was created with; it keeps resolving after a save remaps ID.
// RemoteID is set as soon as the backend record exists, possibly before IsSaved.
type Conversation struct {
	ID            string    `json:"id"`
	LocalID       string    `json:"local_id"`
	RemoteID      string    `json:"remote_id,omitempty"`
	Kind          string    `json:"kind"`
	Title         string    `json:"title"`
	Messages      []Message `json:"messages"`
	MessageCursor Cursor    `json:"message_cursor"`
	IsSaved       bool      `json:"is_saved"`
	CreatedAt     time.Time `json:"created_at"`
}

// Matches reports whether id names this conversation
func (c *Conversation) Matches(id string) bool {
	return id != "" && (c.ID == id || c.LocalID == id)
}

// Clone copies the message slice so the result can be handed out
func (c Conversation) Clone() Conversation {
	if c.Messages != nil {
		msgs := make([]Message, len(c.Messages))
		copy(msgs, c.Messages)
		c.Messages = msgs
	}
	return c
}

// NewLocalID returns a process-unique id that never collides with backend ids
func NewLocalID() string {
	return localPrefix + uuid.NewString()
}

func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localPrefix)
}

// NewRef returns a message handle
func NewRef() string {
	return uuid.NewString()
}
