package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lk2023060901/consensus-backend/internal/ai/provider/anthropic"
	"github.com/lk2023060901/consensus-backend/internal/ai/provider/openai"
	"github.com/lk2023060901/consensus-backend/internal/ai/provider/static"
	"github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// MetricsCollector 记录每次调用
type MetricsCollector interface {
	RecordRequest(provider string)
	RecordLatency(provider string, d time.Duration)
	RecordError(provider string, errType types.ErrorType)
}

// Registry 固定的 Provider 目录，构建后只读
type Registry struct {
	specs   []types.Spec
	index   map[string]int
	clients map[string]types.Client
	metrics MetricsCollector
	logger  *logger.Logger
}

// New 为每个 spec 创建客户端，保持目录顺序
func New(specs []types.Spec, metrics MetricsCollector, log *logger.Logger) (*Registry, error) {
	if log == nil {
		log = logger.L()
	}

	r := &Registry{
		specs:   make([]types.Spec, 0, len(specs)),
		index:   make(map[string]int, len(specs)),
		clients: make(map[string]types.Client, len(specs)),
		metrics: metrics,
		logger:  log,
	}

	for _, spec := range specs {
		if spec.Name == "" {
			spec.Name = spec.ID
		}
		client, err := newClient(spec, log)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", spec.ID, err)
		}
		if err := r.register(spec, client); err != nil {
			return nil, err
		}
	}

	log.Info("provider registry ready", zap.Int("providers", len(r.specs)))
	return r, nil
}

// NewWithClients 使用已创建的客户端构建 Registry，按 spec id 匹配
func NewWithClients(specs []types.Spec, clients map[string]types.Client, metrics MetricsCollector, log *logger.Logger) (*Registry, error) {
	if log == nil {
		log = logger.L()
	}
	r := &Registry{
		index:   make(map[string]int, len(specs)),
		clients: make(map[string]types.Client, len(specs)),
		metrics: metrics,
		logger:  log,
	}
	for _, spec := range specs {
		if spec.Name == "" {
			spec.Name = spec.ID
		}
		client, ok := clients[spec.ID]
		if !ok {
			return nil, fmt.Errorf("provider %s: no client", spec.ID)
		}
		if err := r.register(spec, client); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(spec types.Spec, client types.Client) error {
	if spec.ID == "" {
		return errors.New("provider id is required")
	}
	if _, dup := r.index[spec.ID]; dup {
		return fmt.Errorf("duplicate provider id %q", spec.ID)
	}
	r.index[spec.ID] = len(r.specs)
	r.specs = append(r.specs, spec)
	r.clients[spec.ID] = client
	return nil
}

func newClient(spec types.Spec, log *logger.Logger) (types.Client, error) {
	switch spec.Kind {
	case types.KindOpenAI, "":
		return openai.New(spec, log)
	case types.KindAnthropic:
		return anthropic.New(spec, log)
	case types.KindStatic:
		return static.New(spec), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", spec.Kind)
	}
}

// Catalog 按配置顺序返回目录
func (r *Registry) Catalog() []types.Spec {
	out := make([]types.Spec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Spec 查找目录项
func (r *Registry) Spec(id string) (types.Spec, bool) {
	i, ok := r.index[id]
	if !ok {
		return types.Spec{}, false
	}
	return r.specs[i], true
}

// Invoke 向 providerID 发送 prompt，失败统一返回 *types.ProviderError
func (r *Registry) Invoke(ctx context.Context, providerID, prompt string, opts types.Options) (string, error) {
	spec, ok := r.Spec(providerID)
	if !ok {
		return "", types.NewProviderError(providerID, 0, "unknown provider", types.ErrUnknownProvider)
	}
	client := r.clients[providerID]

	if r.metrics != nil {
		r.metrics.RecordRequest(spec.ID)
	}
	start := time.Now()

	text, err := client.Complete(ctx, prompt, opts)

	if r.metrics != nil {
		r.metrics.RecordLatency(spec.ID, time.Since(start))
	}

	if err != nil {
		var pe *types.ProviderError
		if !errors.As(err, &pe) {
			pe = types.NewProviderError(spec.Name, 0, err.Error(), err)
		}
		if r.metrics != nil {
			r.metrics.RecordError(spec.ID, pe.Type)
		}
		r.logger.WithContext(ctx).Warn("provider invocation failed",
			zap.String("provider", spec.Name),
			zap.String("error_type", string(pe.Type)),
			zap.Error(err))
		return "", pe
	}

	return text, nil
}
