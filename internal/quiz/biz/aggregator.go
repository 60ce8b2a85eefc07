package biz

import (
	"context"
	"strings"
	"sync"
	"time"

	ptypes "github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	apperrors "github.com/lk2023060901/consensus-backend/internal/pkg/errors"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"github.com/lk2023060901/consensus-backend/internal/pkg/sse"
	"github.com/lk2023060901/consensus-backend/internal/quiz/answerkey"
	"github.com/lk2023060901/consensus-backend/internal/quiz/board"
	"github.com/lk2023060901/consensus-backend/internal/quiz/layout"
	"github.com/lk2023060901/consensus-backend/internal/quiz/types"
	"go.uber.org/zap"
)

const outcomeDiscarded = "discarded"

// Events published for board changes
const (
	EventQuestionCreated = "question.created"
	EventQuestionUpdated = "question.updated"
	EventQuestionRemoved = "question.removed"
)

// QuestionTopic is the event topic of one question
func QuestionTopic(text string) string {
	return "question:" + text
}

// Catalog is the fixed set of providers a question fans out to
type Catalog interface {
	ptypes.Invoker
	Catalog() []ptypes.Spec
}

// Submitter runs fan-out tasks
type Submitter interface {
	Submit(task func()) error
}

// MergeRecorder counts merge outcomes
type MergeRecorder interface {
	RecordMerge(outcome string)
}

// Publisher is told about every board change
type Publisher interface {
	Publish(topic string, event sse.Event)
}

// Input is a question as the pre-processor hands it over
type Input struct {
	Text      string
	Number    string
	Choices   []types.Choice
	Grounding bool
}

// Aggregator fans questions out to every provider and folds the answers into the board
type Aggregator struct {
	board   *board.Board
	catalog Catalog
	pool    Submitter
	merges  MergeRecorder
	layout  *layout.Engine
	events  Publisher
	logger  *logger.Logger
}

func NewAggregator(b *board.Board, catalog Catalog, pool Submitter, merges MergeRecorder, engine *layout.Engine, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.L()
	}
	if engine == nil {
		engine = layout.NewEngine(layout.DefaultMetrics())
	}
	return &Aggregator{
		board:   b,
		catalog: catalog,
		pool:    pool,
		merges:  merges,
		layout:  engine,
		logger:  log,
	}
}

// SetPublisher routes board changes to p; nil turns publishing off
func (a *Aggregator) SetPublisher(p Publisher) {
	a.events = p
}

// Fanout tracks one submission until every provider has answered or failed
type Fanout struct {
	Ref       board.Ref
	Providers int
	done      chan struct{}
}

func (f *Fanout) Done() <-chan struct{} { return f.done }

// Wait blocks until the fan-out settles or ctx ends. The fan-out itself keeps going.
func (f *Fanout) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit puts the question on the board and dispatches it to every provider.
// It returns once dispatch is done; results land on the board as they arrive.
func (a *Aggregator) Submit(ctx context.Context, in Input) (*Fanout, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, apperrors.New(apperrors.ErrEmptyQuestion)
	}
	specs := a.catalog.Catalog()
	if len(specs) == 0 {
		return nil, apperrors.New(apperrors.ErrNoProvidersEnabled)
	}

	q := types.Question{
		Text:    text,
		Number:  strings.TrimSpace(in.Number),
		Choices: answerkey.ChoiceKeys(in.Choices),
	}
	ref, err := a.board.Add(q)
	if err != nil {
		return nil, err
	}
	a.publish(EventQuestionCreated, text)

	prompt := BuildPrompt(q)
	opts := ptypes.Options{Grounding: in.Grounding, JSON: len(q.Choices) > 0}
	log := a.logger.WithContext(ctx).With(zap.String("question", text), zap.Uint64("gen", ref.Gen))

	// results outlive the request that submitted them
	bg := context.WithoutCancel(ctx)
	f := &Fanout{Ref: ref, Providers: len(specs), done: make(chan struct{})}

	var wg sync.WaitGroup
	for _, spec := range specs {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			a.collect(bg, log, ref, q.Choices, spec, prompt, opts)
		}
		if err := a.pool.Submit(task); err != nil {
			wg.Done()
			log.Warn("failed to dispatch provider", zap.String("provider", spec.ID), zap.Error(err))
		}
	}

	go func() {
		wg.Wait()
		close(f.done)
		log.Debug("fan-out settled")
	}()

	log.Info("question dispatched", zap.Int("providers", len(specs)))
	return f, nil
}

func (a *Aggregator) collect(ctx context.Context, log *logger.Logger, ref board.Ref, choices []types.Choice, spec ptypes.Spec, prompt string, opts ptypes.Options) {
	log = log.With(zap.String("provider", spec.ID))
	start := time.Now()

	reply, err := a.catalog.Invoke(ctx, spec.ID, prompt, opts)
	if err != nil {
		log.Warn("provider failed", zap.Error(err))
		return
	}

	text, key, ok := ParseResponse(reply, choices)
	if !ok {
		log.Warn("discarding provider response", zap.Int("length", len(reply)))
		a.record(outcomeDiscarded)
		return
	}

	outcome := a.board.MergeAt(ref, spec.Provider(), text, key)
	a.record(string(outcome))
	if outcome != board.Dropped {
		a.publish(EventQuestionUpdated, ref.Text)
	}
	log.Debug("answer merged",
		zap.String("outcome", string(outcome)),
		zap.Duration("elapsed", time.Since(start)))
}

func (a *Aggregator) record(outcome string) {
	if a.merges != nil {
		a.merges.RecordMerge(outcome)
	}
}

// publish sends the question's current state, or just its text once it is gone
func (a *Aggregator) publish(eventType, text string) {
	if a.events == nil {
		return
	}
	var data interface{} = map[string]string{"text": text}
	if eventType != EventQuestionRemoved {
		q, ok := a.board.Get(text)
		if !ok {
			return
		}
		data = BuildView(q, nil, 0)
	}
	a.events.Publish(QuestionTopic(text), sse.Event{Type: eventType, Data: data})
}

// Get returns the current state of a question
func (a *Aggregator) Get(text string) (types.Question, error) {
	q, ok := a.board.Get(text)
	if !ok {
		return types.Question{}, apperrors.New(apperrors.ErrQuestionNotFound, text)
	}
	return q, nil
}

// List returns every question, newest first
func (a *Aggregator) List() []types.Question {
	return a.board.List()
}

// Remove takes a question off the board; answers still in flight for it are dropped
func (a *Aggregator) Remove(text string) error {
	if !a.board.Remove(text) {
		return apperrors.New(apperrors.ErrQuestionNotFound, text)
	}
	a.publish(EventQuestionRemoved, text)
	return nil
}

// SetAnswerKey sets or clears the explicit key of one answer
func (a *Aggregator) SetAnswerKey(text string, index int, key *string) (types.Question, error) {
	q, err := a.board.Update(text, func(q *types.Question) error {
		return answerkey.SetAnswerKey(q, index, key)
	})
	if err != nil {
		return types.Question{}, err
	}
	a.publish(EventQuestionUpdated, text)
	return q, nil
}

// View derives the display state of a question; width <= 0 skips row packing
func (a *Aggregator) View(text string, width int) (QuestionView, error) {
	q, err := a.Get(text)
	if err != nil {
		return QuestionView{}, err
	}
	return BuildView(q, a.layout, width), nil
}
