package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"turtle-internet/config"
	awsinfra "turtle-internet/internal/infrastructure/aws"
	ddb "turtle-internet/internal/infrastructure/aws/dynamodb"
	"turtle-internet/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			slog.SetDefault(server.NewLogger(os.Stderr, cfg.IsProduction()))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := server.NewDependencies(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			srv, err := server.New(cfg, deps)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}

func newCreateTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-tables",
		Short: "Create the DynamoDB tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			awsCfg, err := awsinfra.NewAWSConfig(ctx, cfg.AWSRegion, cfg.AWSEndpointURL)
			if err != nil {
				return fmt.Errorf("load aws config: %w", err)
			}
			if err := ddb.NewDynamoDBService(awsCfg.DynamoDB).CreateTables(ctx, cfg.GamesTable, cfg.CategoriesTable); err != nil {
				return err
			}
			slog.Info("tables ready", "games", cfg.GamesTable, "categories", cfg.CategoriesTable)
			return nil
		},
	}
}
