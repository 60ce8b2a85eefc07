package biz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ptypes "github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	apperrors "github.com/lk2023060901/consensus-backend/internal/pkg/errors"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"github.com/lk2023060901/consensus-backend/internal/pkg/sse"
	"github.com/lk2023060901/consensus-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/consensus-backend/internal/quiz/board"
	"github.com/lk2023060901/consensus-backend/internal/quiz/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type cannedReply struct {
	text  string
	err   error
	gate  chan struct{} // when set, the reply waits for it
	delay time.Duration
}

type fakeCatalog struct {
	specs   []ptypes.Spec
	replies map[string]cannedReply

	mu      sync.Mutex
	prompts map[string]string
	opts    map[string]ptypes.Options
}

func newFakeCatalog(replies map[string]cannedReply, ids ...string) *fakeCatalog {
	c := &fakeCatalog{replies: replies, prompts: map[string]string{}, opts: map[string]ptypes.Options{}}
	for _, id := range ids {
		c.specs = append(c.specs, ptypes.Spec{ID: id, Name: id, URL: "https://" + id + ".example"})
	}
	return c
}

func (c *fakeCatalog) Catalog() []ptypes.Spec { return c.specs }

func (c *fakeCatalog) Invoke(ctx context.Context, id, prompt string, opts ptypes.Options) (string, error) {
	c.mu.Lock()
	c.prompts[id] = prompt
	c.opts[id] = opts
	c.mu.Unlock()

	r := c.replies[id]
	if r.gate != nil {
		<-r.gate
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.text, r.err
}

type countingMerges struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMerges) RecordMerge(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[outcome]++
}

func newAggregator(t *testing.T, catalog Catalog) (*Aggregator, *countingMerges) {
	t.Helper()
	pool, err := workerpool.New(&workerpool.Config{Workers: 8, QueueSize: 64}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Shutdown(time.Second) })

	merges := &countingMerges{}
	return NewAggregator(board.New(), catalog, pool, merges, nil, logger.NewNop()), merges
}

func submitAndWait(t *testing.T, a *Aggregator, in Input) *Fanout {
	t.Helper()
	f, err := a.Submit(context.Background(), in)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx))
	return f
}

func TestAggregator_Scenario(t *testing.T) {
	catalog := newFakeCatalog(map[string]cannedReply{
		"a": {text: "4", delay: 3 * time.Millisecond},
		"b": {text: " 4\n"},
		"c": {text: "Four", delay: time.Millisecond},
	}, "a", "b", "c")
	a, merges := newAggregator(t, catalog)

	f := submitAndWait(t, a, Input{Text: "What is 2+2?"})
	assert.Equal(t, 3, f.Providers)

	view, err := a.View("What is 2+2?", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, view.TotalProviders)
	require.Len(t, view.Answers, 2)

	byText := map[string]AnswerView{}
	for _, av := range view.Answers {
		byText[av.Text] = av
	}
	assert.Equal(t, 2, byText["4"].Count)
	assert.True(t, byText["4"].Winning)
	assert.Equal(t, 67, byText["4"].Percentage)
	assert.Equal(t, 1, byText["Four"].Count)
	assert.False(t, byText["Four"].Winning)
	assert.Equal(t, 33, byText["Four"].Percentage)
	assert.Empty(t, view.Rows)

	assert.Equal(t, map[string]int{"created": 2, "joined": 1}, merges.counts)
	assert.Equal(t, "What is 2+2?", catalog.prompts["a"])
	assert.False(t, catalog.opts["a"].JSON)
}

func TestAggregator_FailuresAreIsolated(t *testing.T) {
	catalog := newFakeCatalog(map[string]cannedReply{
		"ok":    {text: "Paris"},
		"down":  {err: errors.New("boom")},
		"empty": {text: "   "},
	}, "ok", "down", "empty")
	a, merges := newAggregator(t, catalog)

	submitAndWait(t, a, Input{Text: "Capital of France?"})

	q, err := a.Get("Capital of France?")
	require.NoError(t, err)
	require.Len(t, q.Answers, 1)
	assert.Equal(t, 1, q.TotalProviders)
	assert.Equal(t, 1, merges.counts["discarded"])
}

func TestAggregator_Choices(t *testing.T) {
	catalog := newFakeCatalog(map[string]cannedReply{
		"key":     {text: `{"key": "b", "answer": "whatever"}`},
		"fenced":  {text: "```json\n{\"key\": \"B\", \"answer\": \"Lyon\"}\n```"},
		"by-text": {text: `{"answer": "paris"}`},
		"garbage": {text: "I think it is Lyon"},
	}, "key", "fenced", "by-text", "garbage")
	a, merges := newAggregator(t, catalog)

	submitAndWait(t, a, Input{
		Text:      "Which city is in Auvergne-Rhône-Alpes?",
		Number:    "3",
		Choices:   []types.Choice{{Text: "Paris"}, {Text: "Lyon"}},
		Grounding: true,
	})

	q, err := a.Get("Which city is in Auvergne-Rhône-Alpes?")
	require.NoError(t, err)
	assert.Equal(t, []types.Choice{{Key: "A", Text: "Paris"}, {Key: "B", Text: "Lyon"}}, q.Choices)
	assert.Equal(t, 3, q.TotalProviders)
	lyon := q.Answers[q.Find("Lyon")]
	assert.Len(t, lyon.Providers, 2)
	assert.Equal(t, "B", lyon.Key)
	assert.Equal(t, "A", q.Answers[q.Find("Paris")].Key)
	assert.Equal(t, 1, merges.counts["discarded"])

	prompt := catalog.prompts["key"]
	assert.Contains(t, prompt, "3. Which city")
	assert.Contains(t, prompt, "A. Paris\nB. Lyon\n")
	assert.Equal(t, ptypes.Options{Grounding: true, JSON: true}, catalog.opts["key"])
}

func TestAggregator_RemovedBeforeAnswer(t *testing.T) {
	gate := make(chan struct{})
	catalog := newFakeCatalog(map[string]cannedReply{"slow": {text: "late", gate: gate}}, "slow")
	a, merges := newAggregator(t, catalog)

	f, err := a.Submit(context.Background(), Input{Text: "q"})
	require.NoError(t, err)
	require.NoError(t, a.Remove("q"))
	close(gate)
	require.NoError(t, f.Wait(context.Background()))

	_, err = a.Get("q")
	assert.True(t, apperrors.Is(err, apperrors.ErrQuestionNotFound))
	assert.Equal(t, 1, merges.counts["dropped"])
}

func TestAggregator_ResubmitDropsOldResults(t *testing.T) {
	gate := make(chan struct{})
	catalog := newFakeCatalog(map[string]cannedReply{"p": {text: "x", gate: gate}}, "p")
	a, _ := newAggregator(t, catalog)

	first, err := a.Submit(context.Background(), Input{Text: "q"})
	require.NoError(t, err)
	second, err := a.Submit(context.Background(), Input{Text: "q"})
	require.NoError(t, err)
	close(gate)
	require.NoError(t, first.Wait(context.Background()))
	require.NoError(t, second.Wait(context.Background()))

	q, err := a.Get("q")
	require.NoError(t, err)
	assert.Equal(t, 1, q.TotalProviders, "only the live submission counts")
}

func TestAggregator_SubmitValidation(t *testing.T) {
	a, _ := newAggregator(t, newFakeCatalog(nil))

	_, err := a.Submit(context.Background(), Input{Text: "q"})
	assert.True(t, apperrors.Is(err, apperrors.ErrNoProvidersEnabled))

	_, err = a.Submit(context.Background(), Input{Text: " "})
	assert.True(t, apperrors.Is(err, apperrors.ErrEmptyQuestion))
}

func TestAggregator_WaitHonoursContext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	a, _ := newAggregator(t, newFakeCatalog(map[string]cannedReply{"p": {gate: gate}}, "p"))

	f, err := a.Submit(context.Background(), Input{Text: "q"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)
}

func TestAggregator_SetAnswerKeyAndView(t *testing.T) {
	catalog := newFakeCatalog(map[string]cannedReply{
		"a": {text: "Paris"},
		"b": {text: "Lyon", delay: 2 * time.Millisecond},
	}, "a", "b")
	a, _ := newAggregator(t, catalog)
	submitAndWait(t, a, Input{Text: "q"})

	q, _ := a.Get("q")
	key := "b"
	_, err := a.SetAnswerKey("q", q.Find("Paris"), &key)
	require.NoError(t, err)

	view, err := a.View("q", 10)
	require.NoError(t, err)
	require.Len(t, view.Answers, 2)
	assert.Equal(t, "Lyon", view.Answers[0].Text)
	assert.Equal(t, "A", view.Answers[0].DisplayKey)
	assert.Equal(t, "Paris", view.Answers[1].Text)
	assert.Equal(t, "B", view.Answers[1].DisplayKey)
	assert.Len(t, view.Rows, 2, "narrow budget still places every card")

	bad := "bb"
	_, err = a.SetAnswerKey("q", 0, &bad)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAnswerKey))
	_, err = a.SetAnswerKey("missing", 0, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrQuestionNotFound))
}

func TestAggregator_PublishesChanges(t *testing.T) {
	catalog := newFakeCatalog(map[string]cannedReply{
		"a": {text: "4"},
		"b": {text: "5"},
	}, "a", "b")
	a, _ := newAggregator(t, catalog)

	hub := sse.NewHub()
	watcher := &sse.Client{ID: "w", Topic: QuestionTopic("2+2?"), Channel: make(chan sse.Event, 8)}
	hub.Register(watcher)
	a.SetPublisher(hub)

	submitAndWait(t, a, Input{Text: "2+2?"})
	require.NoError(t, a.Remove("2+2?"))

	var got []string
	for len(watcher.Channel) > 0 {
		got = append(got, (<-watcher.Channel).Type)
	}
	assert.Equal(t, []string{
		EventQuestionCreated,
		EventQuestionUpdated,
		EventQuestionUpdated,
		EventQuestionRemoved,
	}, got)
}
