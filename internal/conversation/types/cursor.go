package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CursorKind tells the three cursor states apart
type CursorKind uint8

const (
	// CursorNoMore is terminal: nothing further to load. It is the zero value.
	CursorNoMore CursorKind = iota
	// CursorStart means the first page has not been fetched yet
	CursorStart
	// CursorToken carries the backend's opaque resume point
	CursorToken
)

// Cursor is a pagination position. Compare with ==.
type Cursor struct {
	kind  CursorKind
	token string
}

func NoMore() Cursor { return Cursor{kind: CursorNoMore} }

func Start() Cursor { return Cursor{kind: CursorStart} }

// Token wraps a backend resume token. An empty token means there is nothing to resume from.
func Token(t string) Cursor {
	if t == "" {
		return NoMore()
	}
	return Cursor{kind: CursorToken, token: t}
}

// FromBackend converts the next-page value reported by a list call
func FromBackend(next *string) Cursor {
	if next == nil {
		return NoMore()
	}
	return Token(*next)
}

func (c Cursor) Kind() CursorKind { return c.kind }

// HasMore reports whether a load could return data
func (c Cursor) HasMore() bool { return c.kind != CursorNoMore }

// ResumeToken is the value to pass to the backend; empty for Start and NoMore
func (c Cursor) ResumeToken() string { return c.token }

func (c Cursor) String() string {
	switch c.kind {
	case CursorStart:
		return "start"
	case CursorToken:
		return "token:" + c.token
	default:
		return "no-more"
	}
}

func (c Cursor) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON reads the String form back
func (c *Cursor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch {
	case s == "start":
		*c = Start()
	case s == "no-more":
		*c = NoMore()
	case strings.HasPrefix(s, "token:"):
		*c = Token(strings.TrimPrefix(s, "token:"))
	default:
		return fmt.Errorf("invalid cursor %q", s)
	}
	return nil
}
