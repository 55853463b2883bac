package library

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"CrateFM/logger"
	"CrateFM/model"
)

// Watcher 监听一个投递目录，丢进来的 *.json 包文件自动走合并导入。
// 导入失败只记日志，监听继续。
type Watcher struct {
	manager *Manager
	dir     string
	watcher *fsnotify.Watcher
}

// NewWatcher 创建包投递目录监听器
func NewWatcher(manager *Manager, dir string) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{manager: manager, dir: dir, watcher: fw}, nil
}

// Run 阻塞处理目录事件直到 ctx 取消
func (w *Watcher) Run(ctx context.Context) {
	logger.Info("包投递目录监听已启动", logger.String("dir", w.dir))
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			// 等写入方落完盘再读
			time.Sleep(200 * time.Millisecond)
			w.importFile(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("目录监听错误", logger.ErrorField(err))
		}
	}
}

// Close 停止监听
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("读取包文件失败", logger.String("path", path), logger.ErrorField(err))
		return
	}
	var bundle model.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		logger.Warn("包文件不是合法JSON", logger.String("path", path), logger.ErrorField(err))
		return
	}
	result, err := w.manager.ImportBundle(ctx, &bundle)
	if err != nil {
		logger.Warn("包导入失败", logger.String("path", path), logger.ErrorField(err))
		return
	}
	logger.Info("投递包已导入",
		logger.String("file", filepath.Base(path)),
		logger.String("playlistId", result.Playlist.ID),
		logger.Int64("rev", result.Playlist.Rev),
		logger.Int("songs", len(result.Songs)))
}
