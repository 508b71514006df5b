// Package cmd contains the command line applications for the project.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yeisme/exambridge/pkg/app"
	"github.com/yeisme/exambridge/pkg/configs"
	"github.com/yeisme/exambridge/pkg/log"
)

var (
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "exambridge",
		Short: "Bridge scanned exam artifacts into a remote learning platform",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.InitConfig(configPath); err != nil {
				return err
			}

			log.Init()

			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP service with background retry jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.NewApp(configPath).Run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "config file or directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose config debugging output")

	rootCmd.AddCommand(serveCmd)

	registerConfigsCommands()
	registerDBCommands()
	registerKVCommands()
	registerMQCommands()
	registerMigrateCommands()
	registerQueueCommands()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
