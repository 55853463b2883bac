package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CrateFM/logger"
	"CrateFM/model"
	"CrateFM/storage"
	"CrateFM/store"
)

// ErrPayloadFetch 表示负载拉取失败。实体保持待加载状态不变，
// 调用方可以稍后重试；加载器本身不做自动重试。
var ErrPayloadFetch = errors.New("payload fetch failed")

// PayloadKind 区分音频负载与封面图片负载
type PayloadKind string

const (
	KindAudio PayloadKind = "audio"
	KindCover PayloadKind = "cover"
)

// PayloadRef 指向某个实体的某种负载
type PayloadRef struct {
	Collection store.Collection `json:"collection"`
	Key        string           `json:"key"`
	Kind       PayloadKind      `json:"kind"`
}

func (r PayloadRef) String() string {
	return string(r.Collection) + "/" + r.Key + "/" + string(r.Kind)
}

// Loader 按需物化单个实体的二进制负载。加载成功后经由 Mutator 写回
// 实体（挂上 blob 键并清掉待加载标记），因此恰好通知该实体的观察者，
// 不打扰无关订阅。对已加载实体重复调用是快速空操作，不会重新拉取。
type Loader struct {
	store   store.Store
	mutator *Mutator
	blobs   storage.BlobStore
	fetcher Fetcher

	// 在途定位符守卫：同一实体并发触发的重复拉取只执行一次，
	// 其余调用等首个拉取结束后重查状态
	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// NewLoader 创建懒加载器
func NewLoader(st store.Store, mut *Mutator, blobs storage.BlobStore, fetcher Fetcher) *Loader {
	return &Loader{
		store:    st,
		mutator:  mut,
		blobs:    blobs,
		fetcher:  fetcher,
		inflight: make(map[string]chan struct{}),
	}
}

// LoadPayload 物化 ref 指向的负载。幂等：已加载时直接返回成功。
func (l *Loader) LoadPayload(ctx context.Context, ref PayloadRef) error {
	key := ref.String()
	for {
		loaded, locator, err := l.state(ctx, ref)
		if err != nil {
			return err
		}
		if loaded {
			return nil
		}

		ch, leader := l.acquire(key)
		if !leader {
			// 别处正在拉同一个负载，等它结束再重查
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ch:
			}
			continue
		}

		// 成为执行者后重查一次：上一个执行者可能在我们首查之后刚完成
		loaded, locator, err = l.state(ctx, ref)
		if err != nil || loaded {
			l.release(key)
			return err
		}

		err = l.fetchAndAttach(ctx, ref, locator)
		l.release(key)
		return err
	}
}

func (l *Loader) acquire(key string) (chan struct{}, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.inflight[key]; ok {
		return ch, false
	}
	ch := make(chan struct{})
	l.inflight[key] = ch
	return ch, true
}

func (l *Loader) release(key string) {
	l.mu.Lock()
	ch := l.inflight[key]
	delete(l.inflight, key)
	l.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// state 读取实体当前的加载状态和定位符
func (l *Loader) state(ctx context.Context, ref PayloadRef) (loaded bool, locator string, err error) {
	switch ref.Collection {
	case store.Playlists:
		if ref.Kind != KindCover {
			return false, "", fmt.Errorf("playlist %s has no %s payload", ref.Key, ref.Kind)
		}
		p, err := l.store.GetPlaylist(ctx, ref.Key)
		if err != nil {
			return false, "", err
		}
		if p == nil {
			return false, "", fmt.Errorf("load payload for playlist %s: %w", ref.Key, store.ErrNotFound)
		}
		return p.CoverKey != "" && !p.NeedsPayloadLoad, p.PayloadLocator, nil
	case store.Songs:
		s, err := l.store.GetSong(ctx, ref.Key)
		if err != nil {
			return false, "", err
		}
		if s == nil {
			return false, "", fmt.Errorf("load payload for song %s: %w", ref.Key, store.ErrNotFound)
		}
		switch ref.Kind {
		case KindAudio:
			return s.HasAudio() && !s.NeedsPayloadLoad, s.PayloadLocator, nil
		case KindCover:
			return s.CoverKey != "", s.PayloadLocator, nil
		default:
			return false, "", fmt.Errorf("unknown payload kind %q", ref.Kind)
		}
	default:
		return false, "", fmt.Errorf("unknown collection %q", ref.Collection)
	}
}

// fetchAndAttach 拉取字节、落 blob、写回实体
func (l *Loader) fetchAndAttach(ctx context.Context, ref PayloadRef, locator string) error {
	if locator == "" {
		return fmt.Errorf("%w: entity %s has no payload locator", ErrPayloadFetch, ref)
	}

	start := time.Now()
	data, contentType, err := l.fetcher.Fetch(ctx, locator)
	if err != nil {
		logger.Warn("负载拉取失败",
			logger.String("ref", ref.String()),
			logger.String("locator", locator),
			logger.ErrorField(err))
		return fmt.Errorf("%w: %v", ErrPayloadFetch, err)
	}

	var blobKey string
	switch ref.Kind {
	case KindAudio:
		blobKey = audioBlobKey(ref.Key)
	case KindCover:
		blobKey = coverBlobKey(ref.Key)
	}
	if err := l.blobs.Put(ctx, blobKey, data, contentType); err != nil {
		return fmt.Errorf("%w: store payload: %v", ErrPayloadFetch, err)
	}

	now := time.Now()
	switch ref.Collection {
	case store.Playlists:
		_, err = l.mutator.MutatePlaylist(ctx, ref.Key, func(current *model.Playlist) (*model.Playlist, error) {
			if current == nil {
				return nil, fmt.Errorf("playlist %s: %w", ref.Key, store.ErrNotFound)
			}
			next := current.Clone()
			next.CoverKey = blobKey
			next.CoverMime = contentType
			next.NeedsPayloadLoad = false
			next.UpdatedAt = now
			return next, nil
		})
	case store.Songs:
		_, err = l.mutator.MutateSong(ctx, ref.Key, func(current *model.Song) (*model.Song, error) {
			if current == nil {
				return nil, fmt.Errorf("song %s: %w", ref.Key, store.ErrNotFound)
			}
			next := current.Clone()
			if ref.Kind == KindAudio {
				next.AudioKey = blobKey
				next.FileSize = int64(len(data))
				next.NeedsPayloadLoad = false
			} else {
				next.CoverKey = blobKey
				next.CoverMime = contentType
			}
			next.UpdatedAt = now
			return next, nil
		})
	}
	if err != nil {
		return err
	}

	logger.Debug("负载已物化",
		logger.String("ref", ref.String()),
		logger.Int("bytes", len(data)),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}
