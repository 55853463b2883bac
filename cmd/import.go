package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"CrateFM/config"
	"CrateFM/core/library"
	"CrateFM/core/livequery"
	"CrateFM/db"
	"CrateFM/logger"
	"CrateFM/model"
	"CrateFM/storage"
	"CrateFM/store"
)

var importCmd = &cobra.Command{
	Use:   "import <bundle.json>",
	Short: "导入一个播放列表包",
	Long:  `按 rev 与内容哈希合并一个包文件：rev 未增长整包跳过，哈希相同的歌保留本地负载`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger.InitLogger(logger.Config{Level: logger.LogLevel(cfg.LogLevel)})

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read bundle file: %w", err)
		}
		var bundle model.Bundle
		if err := json.Unmarshal(data, &bundle); err != nil {
			return fmt.Errorf("invalid bundle file: %w", err)
		}

		gormDB, err := db.ConnectGormDB(cfg)
		if err != nil {
			return err
		}
		defer db.CloseGormDB()

		st := store.NewGormStore(gormDB)
		if err := st.Migrate(); err != nil {
			return err
		}

		// 一次性导入也要把变更广播给正在运行的服务进程
		redisClient, err := db.ConnectRedis(cfg)
		if err != nil {
			return err
		}
		defer db.CloseRedis()

		var blobs storage.BlobStore
		if cfg.MinioEndpoint != "" {
			blobs, err = storage.NewMinioStore(cfg)
		} else {
			blobs, err = storage.NewLocalStore(cfg.BlobDir)
		}
		if err != nil {
			return err
		}

		hub := livequery.NewHub(st, livequery.NewRedisBroadcaster(redisClient, cfg.RedisChannel))
		manager := library.NewManager(st, hub, blobs, library.NewLocatorFetcher(cfg.FetchTimeout, blobs))

		result, err := manager.ImportBundle(context.Background(), &bundle)
		if err != nil {
			return err
		}
		fmt.Printf("imported playlist %s (rev %d, %d songs)\n",
			result.Playlist.ID, result.Playlist.Rev, len(result.Songs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
