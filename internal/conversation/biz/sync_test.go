package biz

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	ptypes "github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	"github.com/lk2023060901/consensus-backend/internal/conversation/store"
	"github.com/lk2023060901/consensus-backend/internal/conversation/types"
	apperrors "github.com/lk2023060901/consensus-backend/internal/pkg/errors"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newSync(f *fakeBackend, owner OwnerResolver, opts ...Option) *Sync {
	var backend *Backend
	if f != nil {
		backend = f.backend()
	}
	opts = append([]Option{WithOwnerResolver(owner), WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewSync(store.New(), backend, nil, logger.NewNop(), opts...)
}

func contents(c types.Conversation) []string {
	out := make([]string, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, m.Content)
	}
	return out
}

func TestCreateConversation(t *testing.T) {
	s := newSync(nil, anonymous)
	conv := s.CreateConversation(context.Background(), "quiz")

	assert.True(t, types.IsLocalID(conv.ID))
	assert.False(t, conv.IsSaved)
	assert.Equal(t, "Quiz · Mar 14, 2026", conv.Title)
	assert.Equal(t, conv.ID, s.Store().Snapshot().CurrentID)

	other := s.CreateConversation(context.Background(), "")
	assert.Equal(t, types.DefaultKind, other.Kind)
	assert.NotEqual(t, conv.ID, other.ID)
	assert.Equal(t, other.ID, s.Store().Snapshot().Conversations[0].ID, "newest first")
}

func TestAddMessage_Validation(t *testing.T) {
	s := newSync(nil, anonymous)
	ctx := context.Background()
	conv := s.CreateConversation(ctx, "chat")

	_, err := s.AddMessage(ctx, conv.ID, "system", "hi", "", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRole))

	_, err = s.AddMessage(ctx, conv.ID, types.RoleUser, "   ", "", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrEmptyContent))

	_, err = s.AddMessage(ctx, "nope", types.RoleUser, "hi", "", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrConversationNotFound))
}

func TestUnauthenticated_IsLocalOnly(t *testing.T) {
	f := newFakeBackend()
	s := newSync(f, anonymous)
	ctx := context.Background()

	conv := s.CreateConversation(ctx, "chat")
	id, err := s.AddMessage(ctx, conv.ID, types.RoleUser, "hello", "", "")
	require.NoError(t, err)
	assert.Empty(t, id)

	saved, err := s.SaveConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, saved)

	require.NoError(t, s.LoadOlderConversations(ctx))
	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	assert.Zero(t, f.convCreates)
	assert.Zero(t, f.msgCreates)
	assert.Empty(t, f.listCalls)
}

func TestAddMessage_UnsavedStaysLocal(t *testing.T) {
	f := newFakeBackend()
	s := newSync(f, signedIn)
	ctx := context.Background()

	conv := s.CreateConversation(ctx, "chat")
	id, err := s.AddMessage(ctx, conv.ID, types.RoleUser, "hello", "", "")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Zero(t, f.msgCreates)
}

func TestLoadOlderConversations_Cursor(t *testing.T) {
	f := newFakeBackend()
	for i := 1; i <= 5; i++ {
		_, _ = convRepo{f}.Create(context.Background(), "user-1", types.ConversationRecord{Title: fmt.Sprint(i)})
	}
	s := newSync(f, signedIn, WithPageSize(2))
	ctx := context.Background()

	require.NoError(t, s.LoadOlderConversations(ctx))
	require.Equal(t, []string{""}, f.listCalls, "Start sends no resume token")
	assert.Equal(t, types.Token("2"), s.Store().Snapshot().ListCursor)

	require.NoError(t, s.LoadOlderConversations(ctx))
	require.NoError(t, s.LoadOlderConversations(ctx))
	assert.Equal(t, []string{"", "2", "4"}, f.listCalls)

	snap := s.Store().Snapshot()
	assert.Equal(t, types.NoMore(), snap.ListCursor)
	require.Len(t, snap.Conversations, 5)
	assert.Equal(t, "5", snap.Conversations[0].Title)
	assert.True(t, snap.Conversations[0].IsSaved)
	assert.Equal(t, types.Start(), snap.Conversations[0].MessageCursor)

	before := s.Store().Snapshot()
	require.NoError(t, s.LoadOlderConversations(ctx))
	assert.Len(t, f.listCalls, 3, "NoMore issues no backend call")
	assert.Same(t, before, s.Store().Snapshot())
}

func TestLoadOlderConversations_Failure(t *testing.T) {
	f := newFakeBackend()
	f.failList = errBackendDown
	s := newSync(f, signedIn)

	err := s.LoadOlderConversations(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrPersistenceFailed))
	assert.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, types.Start(), s.Store().Snapshot().ListCursor)
}

func TestLoadOlderMessages_Cursor(t *testing.T) {
	f := newFakeBackend()
	ctx := context.Background()
	remoteID, _ := convRepo{f}.Create(ctx, "user-1", types.ConversationRecord{Title: "saved"})
	for i := 1; i <= 5; i++ {
		_, _ = msgRepo{f}.Create(ctx, "user-1", remoteID, types.MessageRecord{Role: types.RoleUser, Content: fmt.Sprint(i)})
	}
	s := newSync(f, signedIn, WithPageSize(2))
	require.NoError(t, s.LoadOlderConversations(ctx))

	require.NoError(t, s.LoadOlderMessages(ctx, remoteID))
	require.Equal(t, []string{remoteID + "|"}, f.msgList, "Start sends no resume token")
	conv, _ := s.Store().Conversation(remoteID)
	assert.Equal(t, types.Token("2"), conv.MessageCursor)
	assert.Equal(t, []string{"5", "4"}, contents(conv))

	require.NoError(t, s.LoadOlderMessages(ctx, remoteID))
	require.NoError(t, s.LoadOlderMessages(ctx, remoteID))
	assert.Equal(t, []string{remoteID + "|", remoteID + "|2", remoteID + "|4"}, f.msgList)

	conv, _ = s.Store().Conversation(remoteID)
	assert.Equal(t, types.NoMore(), conv.MessageCursor)
	assert.Equal(t, []string{"5", "4", "3", "2", "1"}, contents(conv))

	before := s.Store().Snapshot()
	require.NoError(t, s.LoadOlderMessages(ctx, remoteID))
	assert.Len(t, f.msgList, 3, "NoMore issues no backend call")
	assert.Same(t, before, s.Store().Snapshot())
}

func TestLoadOlderMessages_EphemeralAndMissing(t *testing.T) {
	f := newFakeBackend()
	s := newSync(f, signedIn)
	ctx := context.Background()

	conv := s.CreateConversation(ctx, types.DefaultKind)
	require.NoError(t, s.LoadOlderMessages(ctx, conv.ID))
	assert.Empty(t, f.msgList, "an ephemeral conversation has nothing stored")

	err := s.LoadOlderMessages(ctx, "nope")
	assert.True(t, apperrors.Is(err, apperrors.ErrConversationNotFound))
	assert.Empty(t, f.msgList)
}

func TestLoadOlderMessages_Failure(t *testing.T) {
	f := newFakeBackend()
	ctx := context.Background()
	remoteID, _ := convRepo{f}.Create(ctx, "user-1", types.ConversationRecord{Title: "saved"})
	s := newSync(f, signedIn)
	require.NoError(t, s.LoadOlderConversations(ctx))

	f.failList = errBackendDown
	err := s.LoadOlderMessages(ctx, remoteID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrPersistenceFailed))

	conv, _ := s.Store().Conversation(remoteID)
	assert.Equal(t, types.Start(), conv.MessageCursor, "a failed load keeps the cursor")
}

func TestSave_GuardKeyScopedToSession(t *testing.T) {
	f := newFakeBackend()
	guard := &recordingGuard{}
	w := NewWorkspaces(func(st *store.Store) *Sync {
		b := f.backend()
		b.Guard = guard
		return NewSync(st, b, nil, logger.NewNop(), WithOwnerResolver(signedIn))
	}, logger.NewNop())
	ctx := context.Background()

	s := w.Get(ctx, "session-1", "user-1")
	conv := s.CreateConversation(ctx, types.DefaultKind)
	_, err := s.SaveConversation(ctx, conv.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"session-1:" + conv.LocalID}, guard.keys)
}

func TestSave_RoundTrip(t *testing.T) {
	f := newFakeBackend()
	s := newSync(f, signedIn, WithPageSize(2))
	ctx := context.Background()

	conv := s.CreateConversation(ctx, "chat")
	for i := 1; i <= 3; i++ {
		_, err := s.AddMessage(ctx, conv.ID, types.RoleUser, fmt.Sprintf("m%d", i), "", "")
		require.NoError(t, err)
	}

	remoteID, err := s.SaveConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", remoteID)

	stored := f.msgs[remoteID]
	require.Len(t, stored, 3)
	assert.Equal(t, "m1", stored[0].Content, "persisted oldest-first")
	assert.Equal(t, "m3", stored[2].Content)

	saved, ok := s.Store().Conversation(conv.ID)
	require.True(t, ok)
	assert.True(t, saved.IsSaved)
	assert.Equal(t, remoteID, saved.ID)
	assert.Equal(t, remoteID, s.Store().Snapshot().CurrentID)

	// a fresh session reconstructs the same newest-first order
	fresh := newSync(f, signedIn, WithPageSize(2))
	require.NoError(t, fresh.LoadOlderConversations(ctx))
	require.NoError(t, fresh.LoadOlderMessages(ctx, remoteID))
	require.NoError(t, fresh.LoadOlderMessages(ctx, remoteID))

	loaded, ok := fresh.Store().Conversation(remoteID)
	require.True(t, ok)
	assert.Equal(t, contents(saved), contents(loaded))
	assert.Equal(t, []string{"m3", "m2", "m1"}, contents(loaded))
	assert.False(t, loaded.MessageCursor.HasMore())

	// saved conversations persist new messages right away
	id, err := s.AddMessage(ctx, remoteID, types.RoleAssistant, "m4", "gpt", "gpt-4o")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 4, f.messageCount(remoteID))
}

func TestSave_Idempotent(t *testing.T) {
	f := newFakeBackend()
	s := newSync(f, signedIn)
	ctx := context.Background()

	conv := s.CreateConversation(ctx, "chat")
	_, _ = s.AddMessage(ctx, conv.ID, types.RoleUser, "hello", "", "")

	first, err := s.SaveConversation(ctx, conv.ID)
	require.NoError(t, err)
	second, err := s.SaveConversation(ctx, conv.ID)
	require.NoError(t, err)
	third, err := s.SaveConversation(ctx, first)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
	assert.Equal(t, 1, f.convCreates)
	assert.Equal(t, 1, f.msgCreates)
}

func TestSave_ConcurrentNoDuplicates(t *testing.T) {
	f := newFakeBackend()
	f.createDelay = 5 * time.Millisecond
	s := newSync(f, signedIn)
	ctx := context.Background()

	conv := s.CreateConversation(ctx, "chat")
	for i := 0; i < 3; i++ {
		_, _ = s.AddMessage(ctx, conv.ID, types.RoleUser, fmt.Sprint(i), "", "")
	}

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.SaveConversation(ctx, conv.ID)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.conversationCount())
	assert.Equal(t, 3, f.messageCount("conv-1"))
	for _, id := range ids {
		assert.Equal(t, "conv-1", id)
	}
}

func TestSave_MessageAddedDuringSave(t *testing.T) {
	f := newFakeBackend()
	f.createDelay = 5 * time.Millisecond
	s := newSync(f, signedIn)
	ctx := context.Background()

	conv := s.CreateConversation(ctx, "chat")
	_, _ = s.AddMessage(ctx, conv.ID, types.RoleUser, "first", "", "")

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(2 * time.Millisecond)
		_, err := s.AddMessage(ctx, conv.ID, types.RoleUser, "second", "", "")
		assert.NoError(t, err)
	}()

	remoteID, err := s.SaveConversation(ctx, conv.ID)
	require.NoError(t, err)
	<-done

	// whichever path picked it up, "second" is persisted exactly once
	assert.Eventually(t, func() bool { return f.messageCount(remoteID) == 2 }, time.Second, time.Millisecond)
	c, _ := s.Store().Conversation(remoteID)
	for _, m := range c.Messages {
		assert.True(t, m.Persisted(), m.Content)
	}
}

func TestSave_FailureResumes(t *testing.T) {
	f := newFakeBackend()
	f.failMsgCreate = func(n int) error {
		if n == 2 {
			return errBackendDown
		}
		return nil
	}
	s := newSync(f, signedIn)
	ctx := context.Background()

	conv := s.CreateConversation(ctx, "chat")
	for i := 1; i <= 3; i++ {
		_, _ = s.AddMessage(ctx, conv.ID, types.RoleUser, fmt.Sprintf("m%d", i), "", "")
	}

	_, err := s.SaveConversation(ctx, conv.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrPersistenceFailed))

	local, _ := s.Store().Conversation(conv.ID)
	assert.False(t, local.IsSaved)
	assert.Len(t, local.Messages, 3, "local state untouched")

	id, err := s.SaveConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.convCreates, "retry reuses the backend record")

	var got []string
	for _, m := range f.msgs[id] {
		got = append(got, m.Content)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, got)
}

func TestAddMessage_PersistenceFailureKeepsLocal(t *testing.T) {
	f := newFakeBackend()
	s := newSync(f, signedIn)
	ctx := context.Background()

	conv := s.CreateConversation(ctx, "chat")
	id, err := s.SaveConversation(ctx, conv.ID)
	require.NoError(t, err)

	f.failMsgCreate = func(int) error { return errBackendDown }
	_, err = s.AddMessage(ctx, id, types.RoleUser, "still here", "", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrPersistenceFailed))

	c, _ := s.Store().Conversation(id)
	assert.Equal(t, []string{"still here"}, contents(c))
	assert.False(t, c.Messages[0].Persisted())
}

func TestDeleteConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("ephemeral", func(t *testing.T) {
		f := newFakeBackend()
		s := newSync(f, signedIn)
		conv := s.CreateConversation(ctx, "chat")
		_, _ = s.AddMessage(ctx, conv.ID, types.RoleUser, "hi", "", "")

		require.NoError(t, s.DeleteConversation(ctx, conv.ID))
		assert.Empty(t, f.deletes)
		_, ok := s.Store().Conversation(conv.ID)
		assert.False(t, ok)
	})

	t.Run("saved", func(t *testing.T) {
		f := newFakeBackend()
		s := newSync(f, signedIn)
		conv := s.CreateConversation(ctx, "chat")
		_, _ = s.AddMessage(ctx, conv.ID, types.RoleUser, "a", "", "")
		_, _ = s.AddMessage(ctx, conv.ID, types.RoleUser, "b", "", "")
		id, err := s.SaveConversation(ctx, conv.ID)
		require.NoError(t, err)

		require.NoError(t, s.DeleteConversation(ctx, id))
		assert.ElementsMatch(t, []string{"msg-2", "msg-3", "conv-1"}, f.deletes)
		assert.Zero(t, f.conversationCount())
	})

	t.Run("backend failure still removes locally", func(t *testing.T) {
		f := newFakeBackend()
		s := newSync(f, signedIn)
		conv := s.CreateConversation(ctx, "chat")
		_, _ = s.AddMessage(ctx, conv.ID, types.RoleUser, "a", "", "")
		id, err := s.SaveConversation(ctx, conv.ID)
		require.NoError(t, err)

		f.failDelete = errBackendDown
		err = s.DeleteConversation(ctx, id)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrPersistenceFailed))
		_, ok := s.Store().Conversation(id)
		assert.False(t, ok)
	})

	t.Run("unknown", func(t *testing.T) {
		s := newSync(nil, anonymous)
		err := s.DeleteConversation(ctx, "ghost")
		assert.True(t, apperrors.Is(err, apperrors.ErrConversationNotFound))
	})
}

func TestAsk(t *testing.T) {
	inv := &fakeInvoker{
		specs: map[string]ptypes.Spec{
			"gpt":   {ID: "gpt", Name: "ChatGPT", Model: "gpt-4o"},
			"flaky": {ID: "flaky", Name: "Flaky"},
			"mute":  {ID: "mute", Name: "Mute"},
		},
		replies: map[string]string{"gpt": "  4\n", "mute": "   "},
		errs: map[string]error{
			"flaky": ptypes.NewProviderError("Flaky", 503, "service unavailable", nil),
		},
	}
	s := NewSync(store.New(), nil, inv, logger.NewNop(), WithOwnerResolver(anonymous))
	ctx := context.Background()
	conv := s.CreateConversation(ctx, "chat")

	reply, err := s.Ask(ctx, conv.ID, "gpt", "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAssistant, reply.Role)
	assert.Equal(t, "4", reply.Content)
	assert.Equal(t, types.Metadata{Provider: "ChatGPT", Model: "gpt-4o"}, reply.Metadata)

	reply, err = s.Ask(ctx, conv.ID, "flaky", "hello?")
	require.NoError(t, err)
	assert.Equal(t, "⚠ Flaky failed: service unavailable", reply.Content)

	reply, err = s.Ask(ctx, conv.ID, "mute", "hello?")
	require.NoError(t, err)
	assert.Equal(t, "⚠ Mute failed: empty response", reply.Content)

	c, _ := s.Store().Conversation(conv.ID)
	assert.Len(t, c.Messages, 6)
	assert.Equal(t, types.RoleUser, c.Messages[5].Role)

	_, err = s.Ask(ctx, conv.ID, "ghost", "hi")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnknownProvider))
}
