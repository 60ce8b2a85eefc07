package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	ptypes "github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	"github.com/lk2023060901/consensus-backend/internal/auth"
	"github.com/lk2023060901/consensus-backend/internal/conversation/store"
	"github.com/lk2023060901/consensus-backend/internal/conversation/types"
	apperrors "github.com/lk2023060901/consensus-backend/internal/pkg/errors"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultPageSize = 20

// ProviderInvoker answers prompts and describes the catalog
type ProviderInvoker interface {
	ptypes.Invoker
	Spec(id string) (ptypes.Spec, bool)
}

// Backend bundles the durable collaborators. A Sync without one is local-only.
type Backend struct {
	Conversations ConversationRepo
	Messages      MessageRepo
	Guard         SaveGuard // optional
}

// Sync keeps one Store in step with the durable backend
type Sync struct {
	store    *store.Store
	backend  *Backend
	invoker  ProviderInvoker
	owner    OwnerResolver
	session  string // set by Workspaces
	pageSize int
	now      func() time.Time
	logger   *logger.Logger

	loads singleflight.Group
	saves singleflight.Group
}

type Option func(*Sync)

func WithOwnerResolver(r OwnerResolver) Option {
	return func(s *Sync) { s.owner = r }
}

func WithPageSize(n int) Option {
	return func(s *Sync) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sync) { s.now = now }
}

// NewSync wires st to backend. backend may be nil.
func NewSync(st *store.Store, backend *Backend, invoker ProviderInvoker, log *logger.Logger, opts ...Option) *Sync {
	if log == nil {
		log = logger.L()
	}
	s := &Sync{
		store:    st,
		backend:  backend,
		invoker:  invoker,
		owner:    auth.OwnerFromContext,
		pageSize: DefaultPageSize,
		now:      time.Now,
		logger:   log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sync) Store() *store.Store { return s.store }

// resolveOwner returns the owner when backend calls are possible at all
func (s *Sync) resolveOwner(ctx context.Context) (string, bool) {
	if s.backend == nil || s.backend.Conversations == nil || s.backend.Messages == nil {
		return "", false
	}
	return s.owner(ctx)
}

// CreateConversation starts an ephemeral conversation and makes it current
func (s *Sync) CreateConversation(ctx context.Context, kind string) types.Conversation {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = types.DefaultKind
	}

	now := s.now()
	id := types.NewLocalID()
	conv := types.Conversation{
		ID:            id,
		LocalID:       id,
		Kind:          kind,
		Title:         titleFor(kind, now),
		MessageCursor: types.NoMore(),
		CreatedAt:     now,
	}

	s.store.PrependConversation(conv)
	s.store.SetCurrent(id)

	s.logger.WithContext(ctx).Debug("conversation created", zap.String("conversation_id", id), zap.String("kind", kind))
	return conv
}

func titleFor(kind string, now time.Time) string {
	r, size := utf8.DecodeRuneInString(kind)
	return fmt.Sprintf("%c%s · %s", unicode.ToUpper(r), kind[size:], now.Format("Jan 2, 2006"))
}

// AddMessage appends locally and, for saved conversations, persists. It returns the backend id
// or "" when the message stays local. A failed write keeps the local message and is returned.
func (s *Sync) AddMessage(ctx context.Context, convID string, role types.Role, content, provider, model string) (string, error) {
	msg, err := s.addMessage(ctx, convID, role, content, provider, model)
	return msg.ID, err
}

func (s *Sync) addMessage(ctx context.Context, convID string, role types.Role, content, provider, model string) (types.Message, error) {
	if !role.Valid() {
		return types.Message{}, apperrors.New(apperrors.ErrInvalidRole, string(role))
	}
	if strings.TrimSpace(content) == "" {
		return types.Message{}, apperrors.New(apperrors.ErrEmptyContent)
	}

	msg := types.Message{
		Ref:       types.NewRef(),
		Role:      role,
		Content:   content,
		Metadata:  types.Metadata{Provider: provider, Model: model},
		CreatedAt: s.now(),
	}

	saved, ok := s.store.PrependMessage(convID, msg)
	if !ok {
		return types.Message{}, apperrors.New(apperrors.ErrConversationNotFound, convID)
	}
	if !saved {
		return msg, nil
	}

	owner, ok := s.resolveOwner(ctx)
	if !ok {
		return msg, nil
	}

	conv, ok := s.store.Conversation(convID)
	if !ok {
		return msg, nil
	}

	id, err := s.backend.Messages.Create(ctx, owner, conv.RemoteID, msg.Record())
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to persist message",
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
		return msg, apperrors.Wrap(err, apperrors.ErrPersistenceFailed, "create message")
	}

	s.store.AssignMessageID(convID, msg.Ref, id)
	msg.ID = id
	return msg, nil
}

// LoadOlderConversations fetches the next page of the owner's conversation list
func (s *Sync) LoadOlderConversations(ctx context.Context) error {
	owner, ok := s.resolveOwner(ctx)
	if !ok {
		return nil
	}

	from := s.store.Snapshot().ListCursor
	if !from.HasMore() {
		return nil
	}

	_, err, _ := s.loads.Do("conversations|"+from.String(), func() (interface{}, error) {
		page, err := s.backend.Conversations.List(ctx, owner, from.ResumeToken(), s.pageSize)
		if err != nil {
			return nil, err
		}

		stubs := make([]types.Conversation, 0, len(page.Records))
		for _, rec := range page.Records {
			stubs = append(stubs, rec.Stub())
		}
		s.store.AppendOlderConversations(from, stubs, types.FromBackend(page.Next))
		return nil, nil
	})
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to load conversations", zap.Error(err))
		return apperrors.Wrap(err, apperrors.ErrPersistenceFailed, "list conversations")
	}
	return nil
}

// LoadOlderMessages fetches the next page of convID's messages
func (s *Sync) LoadOlderMessages(ctx context.Context, convID string) error {
	conv, ok := s.store.Conversation(convID)
	if !ok {
		return apperrors.New(apperrors.ErrConversationNotFound, convID)
	}

	owner, ok := s.resolveOwner(ctx)
	if !ok {
		return nil
	}

	from := conv.MessageCursor
	if !from.HasMore() || conv.RemoteID == "" {
		return nil
	}

	_, err, _ := s.loads.Do("messages|"+conv.RemoteID+"|"+from.String(), func() (interface{}, error) {
		page, err := s.backend.Messages.List(ctx, owner, conv.RemoteID, from.ResumeToken(), s.pageSize)
		if err != nil {
			return nil, err
		}

		msgs := make([]types.Message, 0, len(page.Records))
		for _, rec := range page.Records {
			msgs = append(msgs, rec.Message())
		}
		s.store.AppendOlderMessages(convID, from, msgs, types.FromBackend(page.Next))
		return nil, nil
	})
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to load messages",
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
		return apperrors.Wrap(err, apperrors.ErrPersistenceFailed, "list messages")
	}
	return nil
}

// SaveConversation persists convID and all its messages oldest-first, then marks it saved.
// It returns the conversation's id afterwards, "" when there was nothing to save.
// Concurrent and repeated calls never create duplicate backend records.
func (s *Sync) SaveConversation(ctx context.Context, convID string) (string, error) {
	owner, ok := s.resolveOwner(ctx)
	if !ok {
		return "", nil
	}

	conv, ok := s.store.Conversation(convID)
	if !ok {
		return "", nil
	}
	if conv.IsSaved {
		return conv.ID, nil
	}

	key := conv.LocalID
	if key == "" {
		key = conv.ID
	}
	guardKey := key
	if s.session != "" {
		// the local id is only meaningful within its session, which processes share
		guardKey = s.session + ":" + key
	}

	v, err, shared := s.saves.Do(key, func() (interface{}, error) {
		var id string
		run := func() error {
			var err error
			id, err = s.save(ctx, owner, key)
			return err
		}
		var err error
		if s.backend.Guard != nil {
			err = s.backend.Guard.Guard(ctx, guardKey, run)
		} else {
			err = run()
		}
		return id, err
	})
	if shared {
		s.logger.WithContext(ctx).Debug("joined in-flight save", zap.String("conversation_id", key))
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Sync) save(ctx context.Context, owner, key string) (string, error) {
	log := s.logger.WithContext(ctx).With(zap.String("conversation_id", key))

	conv, ok := s.store.Conversation(key)
	if !ok {
		return "", apperrors.New(apperrors.ErrConversationNotFound, key)
	}
	if conv.IsSaved {
		return conv.ID, nil
	}

	remoteID := conv.RemoteID
	if remoteID == "" {
		id, err := s.backend.Conversations.Create(ctx, owner, types.ConversationRecord{
			Title:     conv.Title,
			Kind:      conv.Kind,
			CreatedAt: conv.CreatedAt,
		})
		if err != nil {
			log.Error("failed to persist conversation", zap.Error(err))
			return "", apperrors.Wrap(err, apperrors.ErrPersistenceFailed, "create conversation")
		}
		remoteID = id
		if !s.store.SetRemoteID(key, remoteID) {
			return "", s.orphaned(ctx, owner, key, remoteID)
		}
	}

	for {
		pending, saved := s.store.MarkSaved(key)
		if saved {
			break
		}
		if len(pending) == 0 {
			return "", s.orphaned(ctx, owner, key, remoteID)
		}

		for _, m := range pending {
			id, err := s.backend.Messages.Create(ctx, owner, remoteID, m.Record())
			if err != nil {
				log.Error("failed to persist message during save", zap.Error(err))
				return "", apperrors.Wrap(err, apperrors.ErrPersistenceFailed, "create message")
			}
			s.store.AssignMessageID(key, m.Ref, id)
		}
	}

	log.Info("conversation saved", zap.String("remote_id", remoteID))
	return remoteID, nil
}

// orphaned cleans up after a conversation deleted while its save was running
func (s *Sync) orphaned(ctx context.Context, owner, key, remoteID string) error {
	if err := s.backend.Conversations.Delete(ctx, owner, remoteID); err != nil {
		s.logger.WithContext(ctx).Warn("failed to delete orphaned conversation",
			zap.String("remote_id", remoteID),
			zap.Error(err))
	}
	return apperrors.New(apperrors.ErrConversationNotFound, key)
}

// DeleteConversation removes convID locally and deletes whatever the backend holds of it.
// The local removal happens even when backend deletes fail.
func (s *Sync) DeleteConversation(ctx context.Context, convID string) error {
	conv, ok := s.store.Remove(convID)
	if !ok {
		return apperrors.New(apperrors.ErrConversationNotFound, convID)
	}

	if conv.RemoteID == "" {
		return nil
	}
	owner, ok := s.resolveOwner(ctx)
	if !ok {
		return nil
	}

	var errs error
	for _, m := range conv.Messages {
		if !m.Persisted() {
			continue
		}
		errs = multierr.Append(errs, s.backend.Messages.Delete(ctx, owner, conv.RemoteID, m.ID))
	}
	errs = multierr.Append(errs, s.backend.Conversations.Delete(ctx, owner, conv.RemoteID))

	if errs != nil {
		s.logger.WithContext(ctx).Error("failed to delete conversation from backend",
			zap.String("conversation_id", conv.ID),
			zap.Int("failures", len(multierr.Errors(errs))),
			zap.Error(errs))
		return apperrors.Wrap(errs, apperrors.ErrPersistenceFailed, "delete conversation")
	}
	return nil
}

// Ask sends content to providerID as a user message and appends the reply.
// A failed provider call produces a visible error reply instead of an error.
func (s *Sync) Ask(ctx context.Context, convID, providerID, content string) (types.Message, error) {
	if s.invoker == nil {
		return types.Message{}, apperrors.New(apperrors.ErrNoProvidersEnabled)
	}
	spec, ok := s.invoker.Spec(providerID)
	if !ok {
		return types.Message{}, apperrors.New(apperrors.ErrUnknownProvider, providerID)
	}

	var persistErr error
	if _, err := s.addMessage(ctx, convID, types.RoleUser, content, "", ""); err != nil {
		if !apperrors.Is(err, apperrors.ErrPersistenceFailed) {
			return types.Message{}, err
		}
		persistErr = err
	}

	reply, err := s.invoker.Invoke(ctx, providerID, content, ptypes.Options{})
	reply = strings.TrimSpace(reply)
	switch {
	case err != nil:
		reply = failureText(spec.Name, reason(err))
	case reply == "":
		reply = failureText(spec.Name, "empty response")
	}

	msg, err := s.addMessage(ctx, convID, types.RoleAssistant, reply, spec.Name, spec.Model)
	if err != nil && !apperrors.Is(err, apperrors.ErrPersistenceFailed) {
		return types.Message{}, err
	}
	return msg, multierr.Combine(persistErr, err)
}

func failureText(provider, reason string) string {
	return fmt.Sprintf("⚠ %s failed: %s", provider, reason)
}

func reason(err error) string {
	var pe *ptypes.ProviderError
	if errors.As(err, &pe) {
		return pe.Reason()
	}
	return err.Error()
}
