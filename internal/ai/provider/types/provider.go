package types

import (
	"context"
	"time"
)

// Kind 决定目录项使用的客户端实现
type Kind string

const (
	KindOpenAI    Kind = "openai"    // 任意兼容 OpenAI 的 chat completions 接口
	KindAnthropic Kind = "anthropic" // Anthropic Messages API
	KindStatic    Kind = "static"    // 固定回复，用于演示和测试
)

// GroundingInstruction 请求 grounding 时作为 system prompt 发送
const GroundingInstruction = "Ground your answer in current web search results. " +
	"Answer with the final result only, without citations or commentary."

// Provider 答案引用的 Provider 信息
type Provider struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Spec Provider 目录项
type Spec struct {
	ID        string
	Name      string
	URL       string
	Kind      Kind
	Model     string
	BaseURL   string
	APIKey    string
	Grounding bool // 是否支持基于搜索的 grounding 模式
	Timeout   time.Duration
	Reply     string // 仅 KindStatic 使用
}

// Provider 返回目录项的公开身份
func (s Spec) Provider() Provider {
	return Provider{Name: s.Name, URL: s.URL}
}

// Options 单次请求的选项
type Options struct {
	// Grounding 要求支持 grounding 的 Provider 基于搜索结果回答
	Grounding bool
	// JSON 要求 Provider 返回 JSON 对象
	JSON bool
}

// Client 向单个 Provider 发送一次 prompt
type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// Invoker 按 providerID 分发 prompt
type Invoker interface {
	Invoke(ctx context.Context, providerID, prompt string, opts Options) (string, error)
}
