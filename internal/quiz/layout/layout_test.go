package layout

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextWidth(t *testing.T) {
	m := DefaultMetrics()

	assert.Equal(t, 0, m.TextWidth(""))
	assert.Equal(t, 8, m.TextWidth("4"))
	assert.Equal(t, 18*8, m.TextWidth(strings.Repeat("x", 18)))
	assert.Equal(t, 18*8+2*4, m.TextWidth(strings.Repeat("x", 20)))
	assert.Equal(t, 2*8, m.TextWidth("中"), "wide runes take two columns")
}

func TestWidth(t *testing.T) {
	m := DefaultMetrics()
	assert.Equal(t, 24+28+8, m.Width(Item{Text: "4"}))
	assert.Equal(t, 24+28+8+20, m.Width(Item{Text: "4", Winning: true}))
}

func TestPack_Greedy(t *testing.T) {
	m := DefaultMetrics()
	items := []Item{{Text: "a"}, {Text: "b"}, {Text: "c"}}
	// each card is 60 wide; two fit with a gap in 128
	rows := Pack(items, 128, m)

	require.Len(t, rows, 2)
	assert.Equal(t, []int{0, 1}, rows[0].Items)
	assert.Equal(t, 128, rows[0].Width)
	assert.Equal(t, []int{2}, rows[1].Items)
	assert.Equal(t, 60, rows[1].Width)

	rows = Pack(items, 127, m)
	assert.Len(t, rows, 3)
}

func TestPack_BudgetSmallerThanAnyItem(t *testing.T) {
	items := []Item{{Text: "long answer"}, {Text: "x"}, {Text: "another one", Winning: true}}
	rows := Pack(items, 10, DefaultMetrics())

	require.Len(t, rows, len(items))
	for i, r := range rows {
		assert.Equal(t, []int{i}, r.Items)
	}
}

func TestPack_Empty(t *testing.T) {
	assert.Empty(t, Pack(nil, 500, DefaultMetrics()))
}

func TestEngine_Memoizes(t *testing.T) {
	e := NewEngine(DefaultMetrics())
	items := []Item{{Text: "a", Key: "A"}, {Text: "b", Key: "B", Winning: true}}

	first := e.Pack(items, 200)
	second := e.Pack(items, 200)
	require.NotEmpty(t, first)
	assert.Same(t, &first[0], &second[0])

	narrow := e.Pack(items, 60)
	assert.Len(t, narrow, 2, "budget change recomputes")

	items[1].Winning = false
	assert.Equal(t, Pack(items, 200, DefaultMetrics()), e.Pack(items, 200))
}

func TestEngine_ControlBytesInTextDoNotCollide(t *testing.T) {
	e := NewEngine(DefaultMetrics())
	two := []Item{{Text: "x", Key: "A"}, {Text: "y", Key: "B"}}
	require.Len(t, e.Pack(two, 10), 2)

	one := []Item{{Text: "x\x00B\x01y", Key: "A"}}
	rows := e.Pack(one, 10)
	assert.Equal(t, Pack(one, 10, DefaultMetrics()), rows)
	require.Len(t, rows, 1)
	assert.Equal(t, []int{0}, rows[0].Items)

	// a separator inside a field
	assert.NotEqual(t,
		fingerprint([]Item{{Text: "a|1:b-", Key: "A"}}, 10),
		fingerprint([]Item{{Text: "a", Key: "A"}, {Text: "", Key: "b"}}, 10))
}
