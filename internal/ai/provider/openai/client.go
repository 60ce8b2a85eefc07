package openai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultTimeout = 60 * time.Second

// Client 兼容 OpenAI chat completions 接口的客户端
type Client struct {
	spec   types.Spec
	client *goopenai.Client
	logger *logger.Logger
}

// New 创建 OpenAI 兼容客户端
func New(spec types.Spec, log *logger.Logger) (*Client, error) {
	if spec.Model == "" {
		return nil, types.ErrMissingModel
	}
	if log == nil {
		log = logger.L()
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cfg := goopenai.DefaultConfig(spec.APIKey)
	if spec.BaseURL != "" {
		cfg.BaseURL = spec.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	log.Info("openai-compatible provider created",
		zap.String("provider", spec.ID),
		zap.String("model", spec.Model),
		zap.Duration("timeout", timeout))

	return &Client{
		spec:   spec,
		client: goopenai.NewClientWithConfig(cfg),
		logger: log,
	}, nil
}

// Complete 以单条 user 消息发送 prompt
func (c *Client) Complete(ctx context.Context, prompt string, opts types.Options) (string, error) {
	req := buildRequest(c.spec, prompt, opts)

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", types.NewProviderError(c.spec.Name, 0, "empty response", types.ErrEmptyResponse)
	}

	c.logger.Debug("provider completion received",
		zap.String("provider", c.spec.ID),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return resp.Choices[0].Message.Content, nil
}

func buildRequest(spec types.Spec, prompt string, opts types.Options) goopenai.ChatCompletionRequest {
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if opts.Grounding && spec.Grounding {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: types.GroundingInstruction,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := goopenai.ChatCompletionRequest{
		Model:    spec.Model,
		Messages: messages,
	}
	if opts.JSON {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func (c *Client) wrapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return types.NewProviderError(c.spec.Name, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return types.NewProviderError(c.spec.Name, reqErr.HTTPStatusCode, "request failed", err)
	}

	return types.NewProviderError(c.spec.Name, 0, "request failed", err)
}
