package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 1024
	apiVersion       = "2023-06-01"

	// JSONInstruction 替代 OpenAI 的 response_format，Messages API 没有对应参数
	JSONInstruction = "Reply with a single JSON object and nothing else."
)

// Client Anthropic Messages API 客户端（直接处理协议转换）
type Client struct {
	spec    types.Spec
	baseURL string
	client  *http.Client
	logger  *logger.Logger
}

// New 创建 Anthropic 客户端
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
	baseURL := strings.TrimRight(spec.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	log.Info("anthropic provider created",
		zap.String("provider", spec.ID),
		zap.String("model", spec.Model),
		zap.Duration("timeout", timeout))

	return &Client{
		spec:    spec,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}, nil
}

// Anthropic 请求结构
type messagesRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Anthropic 响应结构
type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Complete 以单条 user 消息发送 prompt，返回拼接后的文本块
func (c *Client) Complete(ctx context.Context, prompt string, opts types.Options) (string, error) {
	body, err := json.Marshal(buildRequest(c.spec, prompt, opts))
	if err != nil {
		return "", types.NewProviderError(c.spec.Name, 0, "marshal request failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", types.NewProviderError(c.spec.Name, 0, "create request failed", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", types.NewProviderError(c.spec.Name, 0, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewProviderError(c.spec.Name, resp.StatusCode, "read response failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", types.NewProviderError(c.spec.Name, resp.StatusCode, errorMessage(resp.StatusCode, raw), nil)
	}

	var out messagesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", types.NewProviderError(c.spec.Name, resp.StatusCode, "unmarshal response failed", err)
	}

	text := joinText(out.Content)
	if text == "" {
		return "", types.NewProviderError(c.spec.Name, 0, "empty response", types.ErrEmptyResponse)
	}

	c.logger.Debug("provider completion received",
		zap.String("provider", c.spec.ID),
		zap.String("stop_reason", out.StopReason),
		zap.Int("input_tokens", out.Usage.InputTokens),
		zap.Int("output_tokens", out.Usage.OutputTokens))

	return text, nil
}

// setHeaders 设置认证和版本 headers
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.spec.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
}

// buildRequest grounding 和 JSON 都只能通过 system prompt 表达
func buildRequest(spec types.Spec, prompt string, opts types.Options) messagesRequest {
	var system []string
	if opts.Grounding && spec.Grounding {
		system = append(system, types.GroundingInstruction)
	}
	if opts.JSON {
		system = append(system, JSONInstruction)
	}

	return messagesRequest{
		Model:     spec.Model,
		System:    strings.Join(system, "\n"),
		Messages:  []message{{Role: "user", Content: prompt}},
		MaxTokens: defaultMaxTokens,
	}
}

func joinText(blocks []contentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// errorMessage 提取 {"type":"error","error":{"message":...}}，取不到时返回状态码
func errorMessage(status int, body []byte) string {
	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		return msg
	}
	return fmt.Sprintf("API error: status %d", status)
}
