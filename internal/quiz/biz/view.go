package biz

import (
	ptypes "github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	"github.com/lk2023060901/consensus-backend/internal/quiz/answerkey"
	"github.com/lk2023060901/consensus-backend/internal/quiz/layout"
	"github.com/lk2023060901/consensus-backend/internal/quiz/types"
)

// AnswerView is one answer as shown. Index points into Question.Answers.
type AnswerView struct {
	Index      int               `json:"index"`
	Text       string            `json:"text"`
	DisplayKey string            `json:"display_key"`
	Key        string            `json:"key,omitempty"`
	Providers  []ptypes.Provider `json:"providers"`
	Count      int               `json:"count"`
	Percentage int               `json:"percentage"`
	Winning    bool              `json:"winning"`
}

// QuestionView is the display state of a question. Answers are in display-key order and
// Rows index into Answers.
type QuestionView struct {
	Text           string         `json:"text"`
	Number         string         `json:"question_number,omitempty"`
	Choices        []types.Choice `json:"choices,omitempty"`
	TotalProviders int            `json:"total_providers"`
	Answers        []AnswerView   `json:"answers"`
	Rows           []layout.Row   `json:"rows,omitempty"`
}

// BuildView is computed fresh from q on every call
func BuildView(q types.Question, engine *layout.Engine, width int) QuestionView {
	winning := make(map[int]bool)
	for _, i := range q.Winning() {
		winning[i] = true
	}

	keyed := answerkey.Assign(q.Answers)
	answers := make([]AnswerView, 0, len(keyed))
	items := make([]layout.Item, 0, len(keyed))
	for _, k := range keyed {
		a := q.Answers[k.Index]
		answers = append(answers, AnswerView{
			Index:      k.Index,
			Text:       a.Text,
			DisplayKey: k.Key,
			Key:        a.Key,
			Providers:  a.Providers,
			Count:      len(a.Providers),
			Percentage: types.Percentage(len(a.Providers), q.TotalProviders),
			Winning:    winning[k.Index],
		})
		items = append(items, layout.Item{Text: a.Text, Key: k.Key, Winning: winning[k.Index]})
	}

	view := QuestionView{
		Text:           q.Text,
		Number:         q.Number,
		Choices:        q.Choices,
		TotalProviders: q.TotalProviders,
		Answers:        answers,
	}
	if width > 0 && engine != nil {
		view.Rows = engine.Pack(items, width)
	}
	return view
}
