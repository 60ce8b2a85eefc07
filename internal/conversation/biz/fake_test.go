package biz

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	ptypes "github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	"github.com/lk2023060901/consensus-backend/internal/conversation/types"
)

var errBackendDown = errors.New("backend down")

// fakeBackend is an in-memory ConversationRepo + MessageRepo with offset tokens
type fakeBackend struct {
	mu    sync.Mutex
	seq   int
	convs []types.ConversationRecord
	msgs  map[string][]types.MessageRecord

	convCreates int
	msgCreates  int
	listCalls   []string // resume tokens seen by conversation List
	msgList     []string // conversation id and resume token seen by message List, "id|token"
	deletes     []string

	createDelay   time.Duration
	failMsgCreate func(n int) error // n counts message creates, from 1
	failDelete    error
	failList      error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{msgs: make(map[string][]types.MessageRecord)}
}

func (f *fakeBackend) backend() *Backend {
	return &Backend{Conversations: convRepo{f}, Messages: msgRepo{f}}
}

func (f *fakeBackend) nextID(prefix string) string {
	f.seq++
	return prefix + strconv.Itoa(f.seq)
}

func (f *fakeBackend) messageCount(convID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs[convID])
}

func (f *fakeBackend) conversationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.convs)
}

func page[T any](newestFirst []T, after string, limit int) ([]T, *string) {
	start, _ := strconv.Atoi(after)
	if start > len(newestFirst) {
		start = len(newestFirst)
	}
	end := start + limit
	if end >= len(newestFirst) {
		return newestFirst[start:], nil
	}
	next := strconv.Itoa(end)
	return newestFirst[start:end], &next
}

func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

type convRepo struct{ f *fakeBackend }

func (r convRepo) Create(_ context.Context, _ string, rec types.ConversationRecord) (string, error) {
	if r.f.createDelay > 0 {
		time.Sleep(r.f.createDelay)
	}
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.convCreates++
	rec.ID = r.f.nextID("conv-")
	r.f.convs = append(r.f.convs, rec)
	return rec.ID, nil
}

func (r convRepo) List(_ context.Context, _ string, after string, limit int) (types.ConversationPage, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.listCalls = append(r.f.listCalls, after)
	if r.f.failList != nil {
		return types.ConversationPage{}, r.f.failList
	}
	recs, next := page(reversed(r.f.convs), after, limit)
	return types.ConversationPage{Records: recs, Next: next}, nil
}

func (r convRepo) Delete(_ context.Context, _ string, id string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.deletes = append(r.f.deletes, id)
	if r.f.failDelete != nil {
		return r.f.failDelete
	}
	for i, c := range r.f.convs {
		if c.ID == id {
			r.f.convs = append(r.f.convs[:i], r.f.convs[i+1:]...)
			break
		}
	}
	delete(r.f.msgs, id)
	return nil
}

type msgRepo struct{ f *fakeBackend }

func (r msgRepo) Create(_ context.Context, _ string, convID string, rec types.MessageRecord) (string, error) {
	if r.f.createDelay > 0 {
		time.Sleep(r.f.createDelay)
	}
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.msgCreates++
	if r.f.failMsgCreate != nil {
		if err := r.f.failMsgCreate(r.f.msgCreates); err != nil {
			return "", err
		}
	}
	rec.ID = r.f.nextID("msg-")
	r.f.msgs[convID] = append(r.f.msgs[convID], rec)
	return rec.ID, nil
}

func (r msgRepo) List(_ context.Context, _ string, convID, after string, limit int) (types.MessagePage, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.msgList = append(r.f.msgList, convID+"|"+after)
	if r.f.failList != nil {
		return types.MessagePage{}, r.f.failList
	}
	recs, next := page(reversed(r.f.msgs[convID]), after, limit)
	return types.MessagePage{Records: recs, Next: next}, nil
}

func (r msgRepo) Delete(_ context.Context, _ string, _, id string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.deletes = append(r.f.deletes, id)
	return r.f.failDelete
}

// fakeInvoker answers from a fixed table
type fakeInvoker struct {
	specs   map[string]ptypes.Spec
	replies map[string]string
	errs    map[string]error
}

func (f *fakeInvoker) Spec(id string) (ptypes.Spec, bool) {
	s, ok := f.specs[id]
	return s, ok
}

func (f *fakeInvoker) Invoke(_ context.Context, id, _ string, _ ptypes.Options) (string, error) {
	if err := f.errs[id]; err != nil {
		return "", err
	}
	return f.replies[id], nil
}

// recordingGuard runs fn inline and remembers the keys it was asked for
type recordingGuard struct {
	mu   sync.Mutex
	keys []string
}

func (g *recordingGuard) Guard(_ context.Context, key string, fn func() error) error {
	g.mu.Lock()
	g.keys = append(g.keys, key)
	g.mu.Unlock()
	return fn()
}

// memoryCache is a SessionCache shared by several Workspaces, like redis between replicas
type memoryCache struct {
	mu     sync.Mutex
	states map[string]SessionState
	saves  int
	err    error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{states: make(map[string]SessionState)}
}

func (c *memoryCache) Load(_ context.Context, sessionID string) (*SessionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	st, ok := c.states[sessionID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (c *memoryCache) Save(_ context.Context, sessionID string, state SessionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	c.states[sessionID] = state
	return nil
}

func signedIn(context.Context) (string, bool) { return "user-1", true }

func anonymous(context.Context) (string, bool) { return "", false }
