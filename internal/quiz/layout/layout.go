// Package layout packs answer cards into rows for a given width budget.
package layout

import (
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
)

// Metrics are the card measurements, in pixels
type Metrics struct {
	Base             int // padding and border of a card
	KeyWidth         int // the key badge
	WinningBonus     int // the winner marker
	Gap              int // between cards in a row
	CharWidth        int // per display column up to WrapThreshold
	WrapThreshold    int // columns that fit on the first line
	WrappedCharWidth int // per display column past WrapThreshold
}

func DefaultMetrics() Metrics {
	return Metrics{
		Base:             24,
		KeyWidth:         28,
		WinningBonus:     20,
		Gap:              8,
		CharWidth:        8,
		WrapThreshold:    18,
		WrappedCharWidth: 4,
	}
}

// Item is one card
type Item struct {
	Text    string
	Key     string
	Winning bool
}

// Row holds indexes into the packed items and the width they take
type Row struct {
	Items []int `json:"items"`
	Width int   `json:"width"`
}

// TextWidth grows linearly with display columns; text past the threshold wraps and counts less
func (m Metrics) TextWidth(text string) int {
	cols := runewidth.StringWidth(text)
	if cols <= m.WrapThreshold {
		return cols * m.CharWidth
	}
	return m.WrapThreshold*m.CharWidth + (cols-m.WrapThreshold)*m.WrappedCharWidth
}

// Width is the space one card needs
func (m Metrics) Width(it Item) int {
	w := m.Base + m.KeyWidth + m.TextWidth(it.Text)
	if it.Winning {
		w += m.WinningBonus
	}
	return w
}

// Pack fills rows left to right. Every row holds at least one item, even one wider than budget.
func Pack(items []Item, budget int, m Metrics) []Row {
	var rows []Row
	var cur Row
	for i, it := range items {
		w := m.Width(it)
		if len(cur.Items) > 0 {
			if cur.Width+m.Gap+w > budget {
				rows = append(rows, cur)
				cur = Row{}
			} else {
				w += m.Gap
			}
		}
		cur.Items = append(cur.Items, i)
		cur.Width += w
	}
	if len(cur.Items) > 0 {
		rows = append(rows, cur)
	}
	return rows
}

const maxCached = 256

// Engine memoizes Pack by its inputs
type Engine struct {
	metrics Metrics
	mu      sync.Mutex
	cache   map[string][]Row
}

func NewEngine(m Metrics) *Engine {
	return &Engine{metrics: m, cache: make(map[string][]Row)}
}

func (e *Engine) Metrics() Metrics { return e.metrics }

// Pack returns the rows for items at budget. The result must not be modified.
func (e *Engine) Pack(items []Item, budget int) []Row {
	key := fingerprint(items, budget)

	e.mu.Lock()
	defer e.mu.Unlock()
	if rows, ok := e.cache[key]; ok {
		return rows
	}
	if len(e.cache) >= maxCached {
		clear(e.cache)
	}
	rows := Pack(items, budget, e.metrics)
	e.cache[key] = rows
	return rows
}

// fingerprint length-prefixes every field so no answer text can spell another item list
func fingerprint(items []Item, budget int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(budget))
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(len(items)))
	for _, it := range items {
		b.WriteByte('|')
		writeField(&b, it.Key)
		if it.Winning {
			b.WriteByte('*')
		} else {
			b.WriteByte('-')
		}
		writeField(&b, it.Text)
	}
	return b.String()
}

func writeField(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}
