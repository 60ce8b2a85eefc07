package biz

import (
	"context"
	"sync"
	"time"

	"github.com/lk2023060901/consensus-backend/internal/conversation/store"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// SyncFactory builds a Sync around a fresh store
type SyncFactory func(st *store.Store) *Sync

// SessionState is one session's store as shared between processes
type SessionState struct {
	Owner    string          `json:"owner"`
	Revision int64           `json:"revision"`
	Snapshot *store.Snapshot `json:"snapshot"`
}

// SessionCache shares session stores between processes serving the same sessions.
// Load returns nil, nil for an unknown session.
type SessionCache interface {
	Load(ctx context.Context, sessionID string) (*SessionState, error)
	Save(ctx context.Context, sessionID string, state SessionState) error
}

type workspace struct {
	sync      *Sync
	owner     string
	lastSeen  time.Time
	revision  int64           // of the state last written or restored
	published *store.Snapshot // the snapshot that revision describes
}

// Workspaces keeps one Store+Sync per client session
type Workspaces struct {
	mu      sync.Mutex
	items   map[string]*workspace
	factory SyncFactory
	cache   SessionCache
	now     func() time.Time
	logger  *logger.Logger
}

type WorkspacesOption func(*Workspaces)

// WithSessionCache makes sessions follow their clients across processes
func WithSessionCache(c SessionCache) WorkspacesOption {
	return func(w *Workspaces) { w.cache = c }
}

func NewWorkspaces(factory SyncFactory, log *logger.Logger, opts ...WorkspacesOption) *Workspaces {
	if log == nil {
		log = logger.L()
	}
	w := &Workspaces{
		items:   make(map[string]*workspace),
		factory: factory,
		now:     time.Now,
		logger:  log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Get returns the session's Sync, creating it on first use. When the owner of a session
// changes (sign-out, or a different account signing in) the session's store is cleared.
// With a session cache, state another process wrote since this one last saw it replaces
// the local store.
func (w *Workspaces) Get(ctx context.Context, sessionID, owner string) *Sync {
	shared := w.load(ctx, sessionID)

	w.mu.Lock()
	defer w.mu.Unlock()

	ws, ok := w.items[sessionID]
	if !ok {
		st := store.New()
		ws = &workspace{sync: w.factory(st), owner: owner, published: st.Snapshot()}
		ws.sync.session = sessionID
		w.items[sessionID] = ws
		w.logger.Debug("workspace created", zap.String("session_id", sessionID))
	} else if ws.owner != owner {
		ws.sync.Store().ClearAll()
		ws.owner = owner
		w.logger.Info("workspace owner changed, store cleared", zap.String("session_id", sessionID))
	}

	if shared != nil && shared.Snapshot != nil && shared.Owner == owner && shared.Revision != ws.revision {
		ws.sync.Store().Restore(shared.Snapshot)
		ws.revision = shared.Revision
		ws.published = ws.sync.Store().Snapshot()
		w.logger.Debug("workspace restored from session cache",
			zap.String("session_id", sessionID),
			zap.Int64("revision", shared.Revision))
	}

	ws.lastSeen = w.now()
	return ws.sync
}

func (w *Workspaces) load(ctx context.Context, sessionID string) *SessionState {
	if w.cache == nil {
		return nil
	}
	state, err := w.cache.Load(ctx, sessionID)
	if err != nil {
		w.logger.WithContext(ctx).Warn("failed to load session state", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	return state
}

// Persist writes the session's store to the session cache if it changed since it was last
// written or restored.
func (w *Workspaces) Persist(ctx context.Context, sessionID string) error {
	if w.cache == nil {
		return nil
	}

	w.mu.Lock()
	ws, ok := w.items[sessionID]
	if !ok {
		w.mu.Unlock()
		return nil
	}
	snap := ws.sync.Store().Snapshot()
	if snap == ws.published {
		w.mu.Unlock()
		return nil
	}
	rev := w.now().UnixNano()
	if rev <= ws.revision {
		rev = ws.revision + 1
	}
	ws.revision = rev
	ws.published = snap
	state := SessionState{Owner: ws.owner, Revision: rev, Snapshot: snap}
	w.mu.Unlock()

	return w.cache.Save(ctx, sessionID, state)
}

// Drop forgets a session locally; a cached copy expires on its own
func (w *Workspaces) Drop(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.items, sessionID)
}

// Len returns the number of live sessions
func (w *Workspaces) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// EvictIdle drops sessions not seen for maxIdle and returns how many went
func (w *Workspaces) EvictIdle(maxIdle time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-maxIdle)
	n := 0
	for id, ws := range w.items {
		if ws.lastSeen.Before(cutoff) {
			delete(w.items, id)
			n++
		}
	}
	if n > 0 {
		w.logger.Info("evicted idle workspaces", zap.Int("count", n))
	}
	return n
}
