package library

import (
	"context"

	"CrateFM/core/livequery"
	"CrateFM/model"
	"CrateFM/store"
)

// Mutator 实现写入-通知协议：每次写都是针对单条记录的
// 读-改-写事务，提交后先同步重算本进程订阅，再异步广播跨进程通知。
// 实体只能经由 Mutator 变更，绕过通知直接写存储是违例。
type Mutator struct {
	store store.Store
	hub   *livequery.Hub
}

// NewMutator 创建写入协调器
func NewMutator(st store.Store, hub *livequery.Hub) *Mutator {
	return &Mutator{store: st, hub: hub}
}

// MutatePlaylist 在一个事务里执行 fn(current)->next 并存储 next 的完整内容。
// current 为 nil 表示记录不存在；fn 返回错误则事务不提交、不发通知。
// 没有隐式深合并，部分更新由 fn 自己基于 current 计算。
func (m *Mutator) MutatePlaylist(ctx context.Context, id string, fn func(current *model.Playlist) (*model.Playlist, error)) (*model.Playlist, error) {
	var result *model.Playlist
	err := m.store.Transact(ctx, func(tx store.Store) error {
		current, err := tx.GetPlaylist(ctx, id)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		result = next
		return tx.PutPlaylist(ctx, next)
	})
	if err != nil {
		return nil, err
	}
	m.hub.Notify(ctx, livequery.Event{Collection: store.Playlists, Key: id})
	return result, nil
}

// MutateSong 与 MutatePlaylist 相同，作用于歌曲集合
func (m *Mutator) MutateSong(ctx context.Context, id string, fn func(current *model.Song) (*model.Song, error)) (*model.Song, error) {
	var result *model.Song
	err := m.store.Transact(ctx, func(tx store.Store) error {
		current, err := tx.GetSong(ctx, id)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		result = next
		return tx.PutSong(ctx, next)
	})
	if err != nil {
		return nil, err
	}
	m.hub.Notify(ctx, livequery.Event{Collection: store.Songs, Key: id})
	return result, nil
}

// DeletePlaylist 删除播放列表记录并触发两条通知路径。
// 级联删除歌曲由上层先行完成，保证观察者不会看到引用已删歌曲的列表。
func (m *Mutator) DeletePlaylist(ctx context.Context, id string) error {
	err := m.store.Transact(ctx, func(tx store.Store) error {
		return tx.DeletePlaylist(ctx, id)
	})
	if err != nil {
		return err
	}
	m.hub.Notify(ctx, livequery.Event{Collection: store.Playlists, Key: id})
	return nil
}

// DeleteSong 删除歌曲记录并触发两条通知路径
func (m *Mutator) DeleteSong(ctx context.Context, id string) error {
	err := m.store.Transact(ctx, func(tx store.Store) error {
		return tx.DeleteSong(ctx, id)
	})
	if err != nil {
		return err
	}
	m.hub.Notify(ctx, livequery.Event{Collection: store.Songs, Key: id})
	return nil
}

// DeleteSongs 在一个事务里删除一批歌曲，提交后逐条发通知。
// 用于删除播放列表前的级联清理。
func (m *Mutator) DeleteSongs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := m.store.Transact(ctx, func(tx store.Store) error {
		for _, id := range ids {
			if err := tx.DeleteSong(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		m.hub.Notify(ctx, livequery.Event{Collection: store.Songs, Key: id})
	}
	return nil
}
