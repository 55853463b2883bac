package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"CrateFM/config"
	"CrateFM/storage"
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "检查MinIO连接",
	Long:  `初始化MinIO客户端并写读删一个探针对象，验证负载存储可用`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is not configured")
		}
		blobs, err := storage.NewMinioStore(cfg)
		if err != nil {
			return err
		}

		ctx := context.Background()
		probe := "probe/connection-check"
		if err := blobs.Put(ctx, probe, []byte("ok"), "text/plain"); err != nil {
			return err
		}
		if _, err := blobs.Get(ctx, probe); err != nil {
			return err
		}
		if err := blobs.Delete(ctx, probe); err != nil {
			return err
		}
		fmt.Printf("minio ok: bucket %s\n", cfg.MinioBucket)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
}
