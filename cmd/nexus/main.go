package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/platforma-dev/nexus/application"
	"github.com/platforma-dev/nexus/config"
	"github.com/platforma-dev/nexus/database"
	"github.com/platforma-dev/nexus/log"
	"github.com/platforma-dev/nexus/migration"
)

// commands finishing without migrations are still reported when slower than this
const slowCommandThreshold = 5 * time.Second

var (
	cfg      config.Config
	diffPath string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic
	}
}

var rootCmd = &cobra.Command{
	Use:               "nexus",
	Short:             "Schema migration tool",
	Long:              `Generate, apply and roll back schema migrations tracked in the nexus_migrations table.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runCommand(application.CommandMigrate),
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <id>",
	Short: "Roll back migrations applied after <id>",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommand(application.CommandRollback),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runCommand(application.CommandStatus),
}

var generateCmd = &cobra.Command{
	Use:   "generate <name>",
	Short: "Generate a migration from a schema diff file",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&diffPath, "diff", "", "Path to the schema diff YAML document")
	_ = generateCmd.MarkFlagRequired("diff")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(generateCmd)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	cfg = config.Read()

	// generate only writes files and runs without a database
	if cmd != generateCmd {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	log.SetDefault(log.New(os.Stderr, cfg.LogFormat, log.ParseLevel(cfg.LogLevel), nil))
	return nil
}

func runCommand(command string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		catalog, err := migration.LoadMigrations(os.DirFS(cfg.MigrationsDir))
		if err != nil {
			return fmt.Errorf("failed to load migrations: %w", err)
		}

		db, err := database.Open(ctx, cfg.Database())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() { _ = db.Close() }()

		log.InfoContext(ctx, "connected to database", "driver", cfg.Driver, "migrations", len(catalog))

		app := application.New(db, catalog, application.WithOutput(cmd.OutOrStdout()), application.WithEventLogger(eventLogger()))
		return app.Run(ctx, command, args...)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	app := application.New(nil, nil, application.WithOutput(cmd.OutOrStdout()), application.WithEventLogger(eventLogger()))
	return app.Run(cmd.Context(), application.CommandGenerate, args[0], diffPath, cfg.MigrationsDir)
}

func eventLogger() *log.EventLogger {
	return log.NewEventLogger(os.Stderr, log.NewDefaultSampler(slowCommandThreshold), cfg.LogFormat)
}
