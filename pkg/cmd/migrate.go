package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/storage/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "run database migrations for all workflow models",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := db.New(context.Background())
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}

		if err := client.AutoMigrate(model.AllModels()...); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "database schema is up to date")

		return nil
	},
}

// registerMigrateCommands 注册迁移命令.
func registerMigrateCommands() {
	rootCmd.AddCommand(migrateCmd)
}
