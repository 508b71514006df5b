package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	ctxPkg "github.com/yeisme/exambridge/pkg/context"
	"github.com/yeisme/exambridge/pkg/internal/service"
	"github.com/yeisme/exambridge/pkg/internal/storage"
)

var (
	queueCmd = &cobra.Command{
		Use:   "queue",
		Short: "Retry queue related commands",
	}

	queueDrainCmd = &cobra.Command{
		Use:   "drain",
		Short: "drain one batch of due retry items",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := storageContext()
			if err != nil {
				return err
			}

			svc := service.NewRetryService(ctx)

			stats, err := svc.Drain(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d succeeded=%d requeued=%d failed=%d\n",
				stats.Processed, stats.Succeeded, stats.Requeued, stats.Failed)

			return nil
		},
	}

	queueDepthCmd = &cobra.Command{
		Use:   "depth",
		Short: "print the number of queued retry items",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := storageContext()
			if err != nil {
				return err
			}

			svc := service.NewRetryService(ctx)

			depth, err := svc.Depth(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), depth)

			return nil
		},
	}
)

// storageContext 构造携带存储管理器的上下文，供离线命令使用.
func storageContext() (context.Context, error) {
	ctx := context.Background()

	manager, err := storage.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	return ctxPkg.WithStorageManager(ctx, manager), nil
}

// registerQueueCommands 注册重试队列相关命令.
func registerQueueCommands() {
	rootCmd.AddCommand(queueCmd)

	queueCmd.AddCommand(queueDrainCmd)
	queueCmd.AddCommand(queueDepthCmd)
}
