package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"CrateFM/config"
	"CrateFM/db"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "检查Redis连接",
	Long:  `连接Redis并做一次PING，验证跨进程通知通道可用`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		client, err := db.ConnectRedis(cfg)
		if err != nil {
			return err
		}
		defer db.CloseRedis()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pong, err := client.Ping(ctx).Result()
		if err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		fmt.Printf("redis ok: %s (channel %s)\n", pong, cfg.RedisChannel)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
