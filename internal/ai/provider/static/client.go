package static

import (
	"context"

	"github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
)

// Client 返回固定回复，未配置回复时原样返回 prompt
type Client struct {
	reply string
}

func New(spec types.Spec) *Client {
	return &Client{reply: spec.Reply}
}

func (c *Client) Complete(ctx context.Context, prompt string, _ types.Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.reply == "" {
		return prompt, nil
	}
	return c.reply, nil
}
