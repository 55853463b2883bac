package livequery

import (
	"context"
	"fmt"
	"sync"

	"CrateFM/logger"
	"CrateFM/model"
	"CrateFM/store"
)

// Entity 是可被实时查询扫描的记录
type Entity interface {
	EntityID() string
}

// Query 描述一个实时查询：集合 + 可选过滤 + 可选字段投影 + 可选条数上限。
// Filter 为 nil 表示全量；Fields 为空表示整条记录；Limit 为 0 表示不限。
type Query struct {
	Collection store.Collection
	Filter     func(Entity) bool
	Fields     []string
	Limit      int
}

// Hub 是进程内的实时查询注册表。它由应用启动时构造并按引用传给所有订阅方，
// 不使用包级全局状态。每次写入提交后，Hub 同步重算本进程的相关订阅，
// 并把变更通知异步广播给其他进程。
type Hub struct {
	store       store.Store
	broadcaster Broadcaster

	mu     sync.RWMutex
	subs   map[int64]*Subscription
	nextID int64
}

// NewHub 创建查询中枢。broadcaster 可以为 nil（纯单进程模式）。
func NewHub(st store.Store, broadcaster Broadcaster) *Hub {
	return &Hub{
		store:       st,
		broadcaster: broadcaster,
		subs:        make(map[int64]*Subscription),
	}
}

// Start 开始接收跨进程变更通知
func (h *Hub) Start(ctx context.Context) error {
	if h.broadcaster == nil {
		return nil
	}
	return h.broadcaster.Start(ctx, func(ev Event) {
		h.refresh(context.Background(), ev.Collection)
	})
}

// Close 关闭跨进程通道
func (h *Hub) Close() error {
	if h.broadcaster == nil {
		return nil
	}
	return h.broadcaster.Close()
}

// Subscribe 注册一个实时查询并立即做一次全量扫描作为初始值
func (h *Hub) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if q.Collection != store.Playlists && q.Collection != store.Songs {
		return nil, fmt.Errorf("unknown collection %q", q.Collection)
	}

	sub := &Subscription{hub: h, query: q}
	if err := sub.derive(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	h.mu.Unlock()
	return sub, nil
}

// Notify 在一次写入提交后调用：先同步重算本进程所有相关订阅
// （调用方继续执行前即可读到自己的写入），再异步广播跨进程通知。
func (h *Hub) Notify(ctx context.Context, ev Event) {
	h.refresh(ctx, ev.Collection)

	if h.broadcaster != nil {
		go func() {
			if err := h.broadcaster.Publish(context.Background(), ev); err != nil {
				logger.Warn("广播变更通知失败",
					logger.String("collection", string(ev.Collection)),
					logger.String("key", ev.Key),
					logger.ErrorField(err))
			}
		}()
	}
}

// refresh 重算某个集合下的全部订阅。单个订阅重算失败只记日志，
// 不能让触发写入的一方崩溃。
func (h *Hub) refresh(ctx context.Context, collection store.Collection) {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.query.Collection == collection {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if err := sub.derive(ctx); err != nil {
			logger.Warn("订阅视图重算失败",
				logger.String("collection", string(collection)),
				logger.Int64("subscription", sub.id),
				logger.ErrorField(err))
		}
	}
}

// scan 拉取集合的全部实体
func (h *Hub) scan(ctx context.Context, collection store.Collection) ([]Entity, error) {
	switch collection {
	case store.Playlists:
		playlists, err := h.store.GetAllPlaylists(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Entity, len(playlists))
		for i, p := range playlists {
			out[i] = p
		}
		return out, nil
	case store.Songs:
		songs, err := h.store.GetAllSongs(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Entity, len(songs))
		for i, s := range songs {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
}

func (h *Hub) remove(id int64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// 编译期检查：两种实体都实现 Entity
var (
	_ Entity = (*model.Playlist)(nil)
	_ Entity = (*model.Song)(nil)
)
