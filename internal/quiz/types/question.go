package types

import (
	"math"
	"time"

	ptypes "github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
)

// Choice is one option of a graded question. Key is a single letter once normalized.
type Choice struct {
	Key  string `json:"key,omitempty"`
	Text string `json:"text"`
}

// Answer is one distinct answer text and the providers that gave it
type Answer struct {
	Text      string            `json:"text"`
	Providers []ptypes.Provider `json:"providers"`
	Key       string            `json:"key,omitempty"`
}

// HasProvider reports whether name already contributed to a
func (a Answer) HasProvider(name string) bool {
	for _, p := range a.Providers {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Question is a prompt and the answers folded into it so far.
// TotalProviders always equals the sum of len(Providers) over Answers.
type Question struct {
	Text           string    `json:"text"`
	Number         string    `json:"question_number,omitempty"`
	Choices        []Choice  `json:"choices,omitempty"`
	Answers        []Answer  `json:"answers"`
	TotalProviders int       `json:"total_providers"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clone deep-copies q so the copy can be mutated freely
func (q Question) Clone() Question {
	out := q
	out.Choices = append([]Choice(nil), q.Choices...)
	out.Answers = make([]Answer, len(q.Answers))
	for i, a := range q.Answers {
		a.Providers = append([]ptypes.Provider(nil), a.Providers...)
		out.Answers[i] = a
	}
	return out
}

// Find returns the index of the answer with exactly text, or -1
func (q Question) Find(text string) int {
	for i, a := range q.Answers {
		if a.Text == text {
			return i
		}
	}
	return -1
}

// Winning returns the indexes of answers tied for the most providers
func (q Question) Winning() []int {
	best := 0
	for _, a := range q.Answers {
		best = max(best, len(a.Providers))
	}
	if best == 0 {
		return nil
	}

	var out []int
	for i, a := range q.Answers {
		if len(a.Providers) == best {
			out = append(out, i)
		}
	}
	return out
}

// Percentage is round(count/total*100), 0 when total is 0
func Percentage(count, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(count) * 100 / float64(total)))
}
