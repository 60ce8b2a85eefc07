// Package board holds the live questions and serializes writes per question.
package board

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ptypes "github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	apperrors "github.com/lk2023060901/consensus-backend/internal/pkg/errors"
	"github.com/lk2023060901/consensus-backend/internal/quiz/types"
)

// Outcome is what a merge did to the board
type Outcome string

const (
	Created   Outcome = "created"
	Joined    Outcome = "joined"
	Duplicate Outcome = "duplicate"
	Dropped   Outcome = "dropped"
)

// Ref names one submission of a question. Gen tells a resubmitted text apart from the one it replaced.
type Ref struct {
	Text string
	Gen  uint64
}

type slot struct {
	gen     uint64
	mu      sync.Mutex // single writer
	current atomic.Pointer[types.Question]
	removed atomic.Bool
}

// Board is the set of live questions, newest first
type Board struct {
	mu    sync.RWMutex
	slots map[string]*slot
	order []string
	gen   atomic.Uint64
	now   func() time.Time
}

func New() *Board {
	return &Board{
		slots: make(map[string]*slot),
		now:   time.Now,
	}
}

// Add puts q on the board. A question with the same text is replaced and its late results dropped.
func (b *Board) Add(q types.Question) (Ref, error) {
	if strings.TrimSpace(q.Text) == "" {
		return Ref{}, apperrors.New(apperrors.ErrEmptyQuestion)
	}
	q = q.Clone()
	q.Answers = q.Answers[:0]
	q.TotalProviders = 0
	if q.CreatedAt.IsZero() {
		q.CreatedAt = b.now()
	}

	s := &slot{gen: b.gen.Add(1)}
	s.current.Store(&q)

	b.mu.Lock()
	old, replaced := b.slots[q.Text]
	b.slots[q.Text] = s
	if replaced {
		b.order = without(b.order, q.Text)
	}
	b.order = append([]string{q.Text}, b.order...)
	b.mu.Unlock()

	if replaced {
		old.retire()
	}
	return Ref{Text: q.Text, Gen: s.gen}, nil
}

// Remove takes text off the board. In-flight results for it are dropped.
func (b *Board) Remove(text string) bool {
	b.mu.Lock()
	s, ok := b.slots[text]
	if ok {
		delete(b.slots, text)
		b.order = without(b.order, text)
	}
	b.mu.Unlock()

	if ok {
		s.retire()
	}
	return ok
}

// Get returns a copy of the current state of text
func (b *Board) Get(text string) (types.Question, bool) {
	s := b.lookup(text)
	if s == nil {
		return types.Question{}, false
	}
	return s.current.Load().Clone(), true
}

// List returns every question, newest first
func (b *Board) List() []types.Question {
	b.mu.RLock()
	slots := make([]*slot, 0, len(b.order))
	for _, text := range b.order {
		slots = append(slots, b.slots[text])
	}
	b.mu.RUnlock()

	out := make([]types.Question, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.current.Load().Clone())
	}
	return out
}

func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// Update applies fn to a private copy of text and publishes it unless fn fails.
// Updates of the same question never interleave.
func (b *Board) Update(text string, fn func(q *types.Question) error) (types.Question, error) {
	return b.update(Ref{Text: text}, fn)
}

func (b *Board) update(ref Ref, fn func(q *types.Question) error) (types.Question, error) {
	s := b.lookup(ref.Text)
	if s == nil || (ref.Gen != 0 && s.gen != ref.Gen) {
		return types.Question{}, apperrors.New(apperrors.ErrQuestionNotFound, ref.Text)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed.Load() {
		return types.Question{}, apperrors.New(apperrors.ErrQuestionNotFound, ref.Text)
	}

	next := s.current.Load().Clone()
	if err := fn(&next); err != nil {
		return types.Question{}, err
	}
	s.current.Store(&next)
	return next.Clone(), nil
}

// Merge folds one provider's answer into the question with text
func (b *Board) Merge(text string, provider ptypes.Provider, answer, key string) Outcome {
	return b.MergeAt(Ref{Text: text}, provider, answer, key)
}

// MergeAt is Merge restricted to one submission; a replaced submission drops the result
func (b *Board) MergeAt(ref Ref, provider ptypes.Provider, answer, key string) Outcome {
	outcome := Dropped
	_, err := b.update(ref, func(q *types.Question) error {
		outcome = merge(q, provider, answer, key)
		return nil
	})
	if err != nil {
		return Dropped
	}
	return outcome
}

func merge(q *types.Question, provider ptypes.Provider, answer, key string) Outcome {
	if i := q.Find(answer); i >= 0 {
		if q.Answers[i].HasProvider(provider.Name) {
			return Duplicate
		}
		q.Answers[i].Providers = append(q.Answers[i].Providers, provider)
		q.TotalProviders++
		return Joined
	}

	q.Answers = append(q.Answers, types.Answer{
		Text:      answer,
		Providers: []ptypes.Provider{provider},
		Key:       key,
	})
	q.TotalProviders++
	return Created
}

func (b *Board) lookup(text string) *slot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.slots[text]
}

// retire waits out an in-flight write so nothing lands after removal
func (s *slot) retire() {
	s.mu.Lock()
	s.removed.Store(true)
	s.mu.Unlock()
}

func without(list []string, text string) []string {
	out := make([]string, 0, len(list))
	for _, t := range list {
		if t != text {
			out = append(out, t)
		}
	}
	return out
}
