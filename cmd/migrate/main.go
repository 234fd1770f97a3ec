package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vaidashi/freight-exchange/internal/auth"
	"github.com/vaidashi/freight-exchange/internal/config"
	"github.com/vaidashi/freight-exchange/internal/database"
	"github.com/vaidashi/freight-exchange/internal/repository"
	"github.com/vaidashi/freight-exchange/internal/service"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

// rootOptions holds flags shared by every command
type rootOptions struct {
	LogLevel string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the freight exchange database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	cmd.AddCommand(newUpCommand(opts))
	cmd.AddCommand(newDownCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newSeedAdminCommand(opts))

	return cmd
}

// withDatabase loads configuration, connects and always closes the connection
func withDatabase(opts *rootOptions, fn func(db *database.Database, cfg *config.Config, l logger.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("migrations need STORE_DRIVER=%s, got %q", config.StoreDriverPostgres, cfg.StoreDriver)
	}

	l := logger.NewLogger(opts.LogLevel)
	db, err := database.New(cfg, l)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(db, cfg, l)
}

func newUpCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(opts, func(db *database.Database, _ *config.Config, _ logger.Logger) error {
				return db.RunMigrations()
			})
		},
	}
}

func newDownCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(opts, func(db *database.Database, _ *config.Config, _ logger.Logger) error {
				return db.RollbackMigration()
			})
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the applied state of every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(opts, func(db *database.Database, _ *config.Config, _ logger.Logger) error {
				return db.MigrationStatus()
			})
		},
	}
}

func newSeedAdminCommand(opts *rootOptions) *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create a platform administrator",
		Long: `Create a platform administrator and, on first use, the platform company.

Running it again with the same email is a no-op. The password may also be
given through ADMIN_PASSWORD to keep it out of shell history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password (or ADMIN_PASSWORD) are required")
			}

			return withDatabase(opts, func(db *database.Database, cfg *config.Config, l logger.Logger) error {
				if err := db.RunMigrations(); err != nil {
					return err
				}

				companies := service.NewCompanyService(repository.NewPostgresStore(db, l),
					auth.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL), l)
				admin, err := companies.BootstrapAdmin(cmd.Context(), email, password, name)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "admin %s ready (id %s)\n", admin.Email, admin.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password (min 8 characters)")
	cmd.Flags().StringVar(&name, "name", "Platform Admin", "admin display name")

	return cmd
}
