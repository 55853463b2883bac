package livequery

import (
	"context"
	"sync"

	"CrateFM/store"
)

// Event 是一次写入的变更通知，跨进程只传集合与键，不传实体内容。
type Event struct {
	Collection store.Collection `json:"collection"`
	Key        string           `json:"key"`
	Origin     string           `json:"origin,omitempty"` // 发布方实例ID，用于过滤自己发出的通知
}

// Broadcaster 把变更通知广播给同一数据域的其他进程。
// Publish 是 fire-and-forget 语义；Start 开始接收远端通知并回调 onEvent。
type Broadcaster interface {
	Publish(ctx context.Context, ev Event) error
	Start(ctx context.Context, onEvent func(Event)) error
	Close() error
}

// MemoryBus 在进程内连接多个 Hub，模拟跨进程通道。
// 用于测试和不需要 Redis 的单进程部署。
type MemoryBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(Event)
}

// NewMemoryBus 创建一个空总线
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[int]func(Event))}
}

// Attach 返回挂在该总线上的一个 Broadcaster 端点
func (b *MemoryBus) Attach() Broadcaster {
	return &memoryEndpoint{bus: b, id: -1}
}

type memoryEndpoint struct {
	bus *MemoryBus
	mu  sync.Mutex
	id  int
}

func (e *memoryEndpoint) Publish(_ context.Context, ev Event) error {
	e.mu.Lock()
	self := e.id
	e.mu.Unlock()

	e.bus.mu.RLock()
	defer e.bus.mu.RUnlock()
	for id, h := range e.bus.handlers {
		if id == self {
			continue // 不回送给自己
		}
		h(ev)
	}
	return nil
}

func (e *memoryEndpoint) Start(_ context.Context, onEvent func(Event)) error {
	e.bus.mu.Lock()
	id := e.bus.nextID
	e.bus.nextID++
	e.bus.handlers[id] = onEvent
	e.bus.mu.Unlock()

	e.mu.Lock()
	e.id = id
	e.mu.Unlock()
	return nil
}

func (e *memoryEndpoint) Close() error {
	e.mu.Lock()
	id := e.id
	e.id = -1
	e.mu.Unlock()

	if id >= 0 {
		e.bus.mu.Lock()
		delete(e.bus.handlers, id)
		e.bus.mu.Unlock()
	}
	return nil
}
