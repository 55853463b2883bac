package cmd

import (
	"github.com/spf13/cobra"

	"CrateFM/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动CrateFM服务器",
	Long:  `启动资料库HTTP服务器，提供播放列表API、实时订阅推送和包导入导出`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
