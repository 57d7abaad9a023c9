// Command docqa 是文档问答的命令行入口：上传 PDF、提问、检索、清除当前文档。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"docqa-go/internal/app"
	"docqa-go/internal/config"
	"docqa-go/pkg/log"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "docqa",
		Short:         "Ask questions about a PDF document",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./configs/config.yaml", "Path to config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level")

	cmd.AddCommand(
		newIngestCommand(opts),
		newAskCommand(opts),
		newSearchCommand(opts),
		newClearCommand(opts),
		newListCommand(opts),
		newHistoryCommand(opts),
	)
	return cmd
}

// setup 加载配置并组装依赖。命令行不启动 Kafka 消费者。
func setup(cmd *cobra.Command, opts *rootOptions) (*app.App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	return app.New(cmd.Context(), cfg, app.Options{})
}
