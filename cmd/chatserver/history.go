package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chat-relay/internal/config"
	"chat-relay/internal/logger"
	"chat-relay/internal/services"
)

func newHistoryCommand(configPath *string) *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stored message history as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("无法加载配置: %w", err)
			}
			// 日志写到 stderr，stdout 只输出 JSON
			logger.SetupWithWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)

			store, err := openMessageStore(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("无法初始化消息存储: %w", err)
			}
			defer store.Close()

			messages, err := services.NewHistoryService(store, nil).History(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(messages)
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "缩进输出")
	return cmd
}
