package store

import (
	"sync"
	"sync/atomic"

	"github.com/lk2023060901/consensus-backend/internal/conversation/types"
)

// Snapshot is an immutable view of the store. Callers must not modify it.
type Snapshot struct {
	Conversations []types.Conversation `json:"conversations"` // newest-first
	CurrentID     string               `json:"current_id,omitempty"`
	ListCursor    types.Cursor         `json:"list_cursor"`
}

// Find returns the conversation named by id (current or pre-save id)
func (s *Snapshot) Find(id string) (types.Conversation, bool) {
	i := s.index(id)
	if i < 0 {
		return types.Conversation{}, false
	}
	return s.Conversations[i].Clone(), true
}

// Current returns the current conversation, if any
func (s *Snapshot) Current() (types.Conversation, bool) {
	if s.CurrentID == "" {
		return types.Conversation{}, false
	}
	return s.Find(s.CurrentID)
}

func (s *Snapshot) index(id string) int {
	for i := range s.Conversations {
		if s.Conversations[i].Matches(id) {
			return i
		}
	}
	return -1
}

// Store holds the conversation list. Writers are serialized and publish a fresh
// Snapshot; readers load the latest one without locking.
type Store struct {
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

func New() *Store {
	s := &Store{}
	s.snap.Store(&Snapshot{ListCursor: types.Start()})
	return s
}

func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Restore replaces the whole state with snap, e.g. one written by another process.
// snap is copied; the caller keeps ownership.
func (s *Store) Restore(snap *Snapshot) {
	next := &Snapshot{
		Conversations: make([]types.Conversation, len(snap.Conversations)),
		CurrentID:     snap.CurrentID,
		ListCursor:    snap.ListCursor,
	}
	for i, c := range snap.Conversations {
		next.Conversations[i] = c.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Store(next)
}

// Conversation looks up id in the latest snapshot
func (s *Store) Conversation(id string) (types.Conversation, bool) {
	return s.Snapshot().Find(id)
}

// update runs fn against a shallow copy of the current snapshot. fn must replace,
// never mutate in place, any Messages slice it changes. Returning false discards the copy.
func (s *Store) update(fn func(next *Snapshot) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	next := &Snapshot{
		Conversations: make([]types.Conversation, len(cur.Conversations)),
		CurrentID:     cur.CurrentID,
		ListCursor:    cur.ListCursor,
	}
	copy(next.Conversations, cur.Conversations)

	if !fn(next) {
		return false
	}
	s.snap.Store(next)
	return true
}

// updateConversation applies fn to the conversation named by id
func (s *Store) updateConversation(id string, fn func(c *types.Conversation) bool) bool {
	return s.update(func(next *Snapshot) bool {
		i := next.index(id)
		if i < 0 {
			return false
		}
		return fn(&next.Conversations[i])
	})
}

// SetCurrent selects id; an empty id clears the selection. Same id is a no-op.
func (s *Store) SetCurrent(id string) bool {
	if s.Snapshot().CurrentID == id {
		return false
	}
	return s.update(func(next *Snapshot) bool {
		if next.CurrentID == id {
			return false
		}
		next.CurrentID = id
		return true
	})
}

// PrependConversation adds conv as the newest entry. A conversation with the same id is left alone.
func (s *Store) PrependConversation(conv types.Conversation) bool {
	conv = conv.Clone()
	return s.update(func(next *Snapshot) bool {
		if next.index(conv.ID) >= 0 {
			return false
		}
		next.Conversations = append([]types.Conversation{conv}, next.Conversations...)
		return true
	})
}

// SetListCursor replaces the conversation-list cursor
func (s *Store) SetListCursor(c types.Cursor) {
	s.update(func(next *Snapshot) bool {
		if next.ListCursor == c {
			return false
		}
		next.ListCursor = c
		return true
	})
}

// AppendOlderConversations appends a page fetched with cursor from and installs cursor next.
// Nothing changes if the list cursor moved on since from was read; entries already held are skipped.
func (s *Store) AppendOlderConversations(from types.Cursor, list []types.Conversation, next types.Cursor) bool {
	return s.update(func(snap *Snapshot) bool {
		if snap.ListCursor != from {
			return false
		}
		for _, c := range list {
			if snap.index(c.ID) >= 0 {
				continue
			}
			snap.Conversations = append(snap.Conversations, c.Clone())
		}
		snap.ListCursor = next
		return true
	})
}

// PrependMessage adds msg as the newest message of convID.
// saved reports whether the conversation was already saved when msg went in.
func (s *Store) PrependMessage(convID string, msg types.Message) (saved, ok bool) {
	ok = s.updateConversation(convID, func(c *types.Conversation) bool {
		msgs := make([]types.Message, 0, len(c.Messages)+1)
		msgs = append(msgs, msg)
		c.Messages = append(msgs, c.Messages...)
		saved = c.IsSaved
		return true
	})
	return saved, ok
}

// AppendOlderMessages is the per-conversation counterpart of AppendOlderConversations.
// list is newest-first; messages whose backend id is already held are skipped.
func (s *Store) AppendOlderMessages(convID string, from types.Cursor, list []types.Message, next types.Cursor) bool {
	return s.updateConversation(convID, func(c *types.Conversation) bool {
		if c.MessageCursor != from {
			return false
		}
		held := make(map[string]struct{}, len(c.Messages))
		for _, m := range c.Messages {
			if m.ID != "" {
				held[m.ID] = struct{}{}
			}
		}
		msgs := make([]types.Message, len(c.Messages), len(c.Messages)+len(list))
		copy(msgs, c.Messages)
		for _, m := range list {
			if _, dup := held[m.ID]; dup && m.ID != "" {
				continue
			}
			msgs = append(msgs, m)
		}
		c.Messages = msgs
		c.MessageCursor = next
		return true
	})
}

// SetConversationCursor replaces the message cursor of convID
func (s *Store) SetConversationCursor(convID string, cursor types.Cursor) bool {
	return s.updateConversation(convID, func(c *types.Conversation) bool {
		c.MessageCursor = cursor
		return true
	})
}

// AssignMessageID records the backend id of the message with the given ref
func (s *Store) AssignMessageID(convID, ref, id string) bool {
	return s.updateConversation(convID, func(c *types.Conversation) bool {
		for i := range c.Messages {
			if c.Messages[i].Ref != ref {
				continue
			}
			if c.Messages[i].ID == id {
				return false
			}
			msgs := make([]types.Message, len(c.Messages))
			copy(msgs, c.Messages)
			msgs[i].ID = id
			c.Messages = msgs
			return true
		}
		return false
	})
}

// SetRemoteID records that the backend conversation record exists
func (s *Store) SetRemoteID(convID, remoteID string) bool {
	return s.updateConversation(convID, func(c *types.Conversation) bool {
		c.RemoteID = remoteID
		return true
	})
}

// MarkSaved flips convID to saved once every message it holds has a backend id.
// Otherwise nothing changes and the unpersisted messages come back oldest-first.
// ok is false with no pending messages when the conversation is gone or has no RemoteID.
// On success ID becomes RemoteID, and so does CurrentID if it pointed here.
func (s *Store) MarkSaved(convID string) (pending []types.Message, ok bool) {
	s.update(func(next *Snapshot) bool {
		i := next.index(convID)
		if i < 0 {
			return false
		}
		c := &next.Conversations[i]
		if c.IsSaved {
			ok = true
			return false
		}
		if c.RemoteID == "" {
			return false
		}

		for j := len(c.Messages) - 1; j >= 0; j-- {
			if c.Messages[j].ID == "" {
				pending = append(pending, c.Messages[j])
			}
		}
		if len(pending) > 0 {
			return false
		}

		oldID := c.ID
		if c.LocalID == "" {
			c.LocalID = oldID
		}
		c.ID = c.RemoteID
		c.IsSaved = true
		ok = true

		if next.CurrentID == oldID {
			next.CurrentID = c.ID
		}

		// a listed stub of the same backend record would now be a duplicate
		saved := *c
		kept := next.Conversations[:0:0]
		for k := range next.Conversations {
			if k != i && next.Conversations[k].ID == saved.ID {
				continue
			}
			kept = append(kept, next.Conversations[k])
		}
		next.Conversations = kept
		return true
	})
	return pending, ok
}

// Remove deletes convID and returns what was removed
func (s *Store) Remove(convID string) (removed types.Conversation, ok bool) {
	s.update(func(next *Snapshot) bool {
		i := next.index(convID)
		if i < 0 {
			return false
		}
		removed = next.Conversations[i]
		if removed.Matches(next.CurrentID) {
			next.CurrentID = ""
		}
		next.Conversations = append(next.Conversations[:i:i], next.Conversations[i+1:]...)
		ok = true
		return true
	})
	return removed, ok
}

// ClearAll drops everything and rewinds the list cursor, e.g. on sign-out
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Store(&Snapshot{ListCursor: types.Start()})
}
