package biz

import (
	"strings"

	"github.com/lk2023060901/consensus-backend/internal/quiz/answerkey"
	"github.com/lk2023060901/consensus-backend/internal/quiz/types"
	"github.com/tidwall/gjson"
)

const choiceInstruction = `Reply with only a JSON object of the form {"key": "<letter>", "answer": "<text of the chosen option>"}.`

// BuildPrompt renders q for a provider. Questions with choices ask for a JSON reply.
func BuildPrompt(q types.Question) string {
	var b strings.Builder
	if q.Number != "" {
		b.WriteString(q.Number)
		b.WriteString(". ")
	}
	b.WriteString(strings.TrimSpace(q.Text))

	if len(q.Choices) == 0 {
		return b.String()
	}

	b.WriteString("\n\nOptions:\n")
	for _, c := range q.Choices {
		b.WriteString(c.Key)
		b.WriteString(". ")
		b.WriteString(c.Text)
		b.WriteByte('\n')
	}
	b.WriteString("\n")
	b.WriteString(choiceInstruction)
	return b.String()
}

// ParseResponse turns a provider reply into answer text and, for a matched choice, its key.
// ok is false when the reply has to be discarded.
func ParseResponse(reply string, choices []types.Choice) (text, key string, ok bool) {
	reply = strings.TrimSpace(reply)
	if len(choices) == 0 {
		return reply, "", reply != ""
	}

	body := stripFences(reply)
	if !gjson.Valid(body) {
		return "", "", false
	}
	res := gjson.Parse(body)
	if !res.IsObject() {
		return "", "", false
	}

	if k, err := answerkey.NormalizeKey(res.Get("key").String()); err == nil && k != "" {
		for _, c := range choices {
			if c.Key == k {
				return c.Text, c.Key, true
			}
		}
	}

	answer := strings.TrimSpace(res.Get("answer").String())
	if answer == "" {
		return "", "", false
	}
	for _, c := range choices {
		if strings.EqualFold(strings.TrimSpace(c.Text), answer) {
			return c.Text, c.Key, true
		}
	}
	return answer, "", true
}

// stripFences removes a surrounding ``` block, with or without a language tag
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
