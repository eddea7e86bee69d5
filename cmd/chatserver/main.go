package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewChatServerCommand builds the root command. Running it without a
// subcommand starts the relay.
func NewChatServerCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "chatserver",
		Short:         "Real-time chat relay over WebSocket",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径 (默认查找 ./config/config.yaml)")

	cmd.AddCommand(
		newServeCommand(&configPath),
		newHistoryCommand(&configPath),
	)
	return cmd
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket relay and HTTP endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := NewChatServerCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("chatserver 退出")
		stop()
		os.Exit(1)
	}
}
