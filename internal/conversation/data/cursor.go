package data

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/lk2023060901/consensus-backend/internal/pkg/errors"
)

// conversationKey 对话在倒序分页中的 keyset 位置
type conversationKey struct {
	CreatedAt time.Time
	ID        string
}

func encodeConversationKey(k conversationKey) string {
	raw := strconv.FormatInt(k.CreatedAt.UnixMicro(), 10) + "," + k.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeConversationKey(token string) (conversationKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return conversationKey{}, invalidCursor(token)
	}
	ts, id, ok := strings.Cut(string(raw), ",")
	if !ok || id == "" {
		return conversationKey{}, invalidCursor(token)
	}
	micros, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return conversationKey{}, invalidCursor(token)
	}
	return conversationKey{CreatedAt: time.UnixMicro(micros).UTC(), ID: id}, nil
}

func encodeMessageKey(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte("seq:" + strconv.FormatInt(seq, 10)))
}

func decodeMessageKey(token string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, invalidCursor(token)
	}
	s, ok := strings.CutPrefix(string(raw), "seq:")
	if !ok {
		return 0, invalidCursor(token)
	}
	seq, err := strconv.ParseInt(s, 10, 64)
	if err != nil || seq <= 0 {
		return 0, invalidCursor(token)
	}
	return seq, nil
}

func invalidCursor(token string) error {
	return apperrors.New(apperrors.ErrInvalidParams, fmt.Sprintf("invalid cursor %q", token))
}
