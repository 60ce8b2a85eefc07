package sse

import (
	"encoding/json"
	"sync"
)

// AllTopics 订阅全部事件的 topic
const AllTopics = "*"

// Event SSE 事件
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client 单个订阅连接
type Client struct {
	ID      string
	Topic   string
	Channel chan Event
}

// Hub 按 topic 向订阅者分发事件
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.Topic] == nil {
		h.clients[client.Topic] = make(map[*Client]struct{})
	}
	h.clients[client.Topic][client] = struct{}{}
}

// Unregister 注销客户端并关闭其 Channel，重复调用无副作用
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.Channel)
	if len(clients) == 0 {
		delete(h.clients, client.Topic)
	}
}

// Publish 向 topic 的订阅者以及 AllTopics 订阅者推送事件
// 缓冲区已满的客户端会丢失本次事件
func (h *Hub) Publish(topic string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.deliver(h.clients[topic], event)
	if topic != AllTopics {
		h.deliver(h.clients[AllTopics], event)
	}
}

func (h *Hub) deliver(clients map[*Client]struct{}, event Event) {
	for client := range clients {
		select {
		case client.Channel <- event:
		default:
		}
	}
}

// ClientCount 获取订阅指定 topic 的客户端数量
func (h *Hub) ClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// EventError Data 无法序列化时替代原事件发出
const EventError = "error"

// FormatSSE 格式化为 SSE 消息格式
// Data 序列化失败时返回 error 事件，data 中带上原事件类型和错误信息
func (e Event) FormatSSE() string {
	data, err := json.Marshal(e.Data)
	if err != nil {
		data, _ = json.Marshal(map[string]string{
			"event": e.Type,
			"error": err.Error(),
		})
		return frame(EventError, data)
	}
	return frame(e.Type, data)
}

func frame(eventType string, data []byte) string {
	return "event: " + eventType + "\ndata: " + string(data) + "\n\n"
}
