// Package answerkey derives the display letter of every answer.
package answerkey

import (
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/lk2023060901/consensus-backend/internal/pkg/errors"
	"github.com/lk2023060901/consensus-backend/internal/quiz/types"
)

// Placeholder is shown once the alphabet is used up
const Placeholder = "?"

// Keyed pairs an answer index with its display key
type Keyed struct {
	Index int
	Key   string
}

// NormalizeKey accepts "" or one letter A-Z in either case and returns it uppercased
func NormalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil
	}
	if len(key) != 1 {
		return "", apperrors.New(apperrors.ErrInvalidAnswerKey, key)
	}
	c := key[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'Z' {
		return "", apperrors.New(apperrors.ErrInvalidAnswerKey, key)
	}
	return string(c), nil
}

// Assign gives every answer a display key and returns them in display order.
// Explicit keys are kept; blank ones take the next free letter in input order.
func Assign(answers []types.Answer) []Keyed {
	var used [26]bool
	keys := make([]string, len(answers))
	for i, a := range answers {
		k, err := NormalizeKey(a.Key)
		if err != nil || k == "" {
			continue
		}
		keys[i] = k
		used[k[0]-'A'] = true
	}

	next := 0
	for i := range answers {
		if keys[i] != "" {
			continue
		}
		for next < len(used) && used[next] {
			next++
		}
		if next == len(used) {
			keys[i] = Placeholder
			continue
		}
		used[next] = true
		keys[i] = string(rune('A' + next))
		next++
	}

	out := make([]Keyed, len(answers))
	for i, k := range keys {
		out[i] = Keyed{Index: i, Key: k}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].Key, out[j].Key)
	})
	return out
}

// placeholders sort after letters
func less(a, b string) bool {
	if a == Placeholder || b == Placeholder {
		return a != Placeholder && b == Placeholder
	}
	return a < b
}

// SetAnswerKey sets or, with nil or "", clears the explicit key of q.Answers[index].
// A letter already held by another answer of q is rejected.
func SetAnswerKey(q *types.Question, index int, key *string) error {
	if index < 0 || index >= len(q.Answers) {
		return apperrors.New(apperrors.ErrAnswerIndexRange, strconv.Itoa(index))
	}

	var k string
	if key != nil {
		var err error
		if k, err = NormalizeKey(*key); err != nil {
			return err
		}
	}

	if k != "" {
		for i, a := range q.Answers {
			if i == index {
				continue
			}
			if other, _ := NormalizeKey(a.Key); other == k {
				return apperrors.New(apperrors.ErrInvalidAnswerKey, k+" is already used")
			}
		}
	}

	q.Answers[index].Key = k
	return nil
}

// ChoiceKeys fills in missing choice letters the same way Assign does and normalizes the rest.
// Choices keep their input order.
func ChoiceKeys(choices []types.Choice) []types.Choice {
	answers := make([]types.Answer, len(choices))
	for i, c := range choices {
		answers[i] = types.Answer{Text: c.Text, Key: c.Key}
	}

	out := append([]types.Choice(nil), choices...)
	for _, k := range Assign(answers) {
		out[k.Index].Key = k.Key
	}
	return out
}
