package sse

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Stream SSE 流(封装 Client 和 Context)
type Stream struct {
	client    *Client
	ctx       *gin.Context
	hub       *Hub
	heartbeat time.Duration
	onError   func(error)
}

// StreamBuilder 构建器
type StreamBuilder struct {
	ginCtx     *gin.Context
	hub        *Hub
	topic      string
	bufferSize int
	heartbeat  time.Duration
	onError    func(error)
}

// NewStream 创建 Stream 构建器
func NewStream(c *gin.Context, hub *Hub) *StreamBuilder {
	return &StreamBuilder{
		ginCtx:     c,
		hub:        hub,
		topic:      AllTopics,
		bufferSize: 16,
		heartbeat:  30 * time.Second,
	}
}

// WithTopic 设置订阅的 topic
func (b *StreamBuilder) WithTopic(topic string) *StreamBuilder {
	if topic != "" {
		b.topic = topic
	}
	return b
}

// WithBufferSize 设置 Channel 缓冲区大小
func (b *StreamBuilder) WithBufferSize(size int) *StreamBuilder {
	if size > 0 {
		b.bufferSize = size
	}
	return b
}

// WithHeartbeat 设置心跳间隔(0 表示禁用心跳)
func (b *StreamBuilder) WithHeartbeat(interval time.Duration) *StreamBuilder {
	b.heartbeat = interval
	return b
}

// OnError 设置错误处理钩子
func (b *StreamBuilder) OnError(fn func(error)) *StreamBuilder {
	b.onError = fn
	return b
}

// Build 构建 Stream
func (b *StreamBuilder) Build() *Stream {
	return &Stream{
		client: &Client{
			ID:      uuid.New().String(),
			Topic:   b.topic,
			Channel: make(chan Event, b.bufferSize),
		},
		ctx:       b.ginCtx,
		hub:       b.hub,
		heartbeat: b.heartbeat,
		onError:   b.onError,
	}
}

// ClientID 获取客户端 ID
func (s *Stream) ClientID() string {
	return s.client.ID
}

// Serve 持续写出事件，直到客户端断开或被 Hub 注销
// 所有写操作都在调用方 goroutine 中完成
func (s *Stream) Serve() {
	s.ctx.Header("Content-Type", "text/event-stream")
	s.ctx.Header("Cache-Control", "no-cache")
	s.ctx.Header("Connection", "keep-alive")
	s.ctx.Header("X-Accel-Buffering", "no")

	s.hub.Register(s.client)
	defer s.hub.Unregister(s.client)

	connected := Event{
		Type: "connected",
		Data: map[string]string{
			"client_id": s.client.ID,
			"topic":     s.client.Topic,
		},
	}
	if !s.write(connected.FormatSSE()) {
		return
	}

	var beat <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		beat = ticker.C
	}

	clientGone := s.ctx.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-beat:
			if !s.write(": heartbeat\n\n") {
				return
			}
		case event, ok := <-s.client.Channel:
			if !ok {
				return
			}
			if !s.write(event.FormatSSE()) {
				return
			}
		}
	}
}

func (s *Stream) write(frame string) bool {
	if _, err := fmt.Fprint(s.ctx.Writer, frame); err != nil {
		if s.onError != nil {
			s.onError(err)
		}
		return false
	}
	s.ctx.Writer.Flush()
	return true
}
