package cli

import (
	"context"
	"fmt"
	"time"

	"sheetsync/internal/config"
	"sheetsync/internal/database"
	"sheetsync/internal/domain"
	"sheetsync/internal/google"
	"sheetsync/internal/logging"
	"sheetsync/internal/repository"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Timeout    time.Duration
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Backends opens the stores commands talk to. Each opener returns a release
// func that must be called when the command is done.
type Backends struct {
	RemoteStore func(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.RemoteStore, error)
	Snapshots   func(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.SnapshotStore, func(), error)
	Archive     func(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.OperationArchive, func(), error)
	LoadConfig  func(path string) (*config.Config, error)
}

// DefaultBackends wires the production Sheets, Redis and SQLite stores.
func DefaultBackends() Backends {
	return Backends{
		RemoteStore: func(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.RemoteStore, error) {
			return google.NewSheetsStore(ctx, google.StoreOptions{
				CredentialsFile: cfg.Google.CredentialsFile,
				RequestsPerSec:  cfg.Google.RateLimit.RPS,
				Burst:           cfg.Google.RateLimit.Burst,
			}, logger)
		},
		Snapshots: func(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.SnapshotStore, func(), error) {
			if cfg.Redis.Address == "" {
				return nil, nil, fmt.Errorf("redis.address is not configured")
			}
			client := repository.NewRedisClient(cfg.Redis)
			if err := repository.Ping(ctx, client); err != nil {
				_ = client.Close()
				return nil, nil, err
			}
			ttl := time.Duration(cfg.Redis.SnapshotTTL) * time.Second
			return repository.NewRedisSnapshotStore(client, cfg.Redis.SnapshotKey, ttl), func() { _ = repository.Close(client) }, nil
		},
		Archive: func(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.OperationArchive, func(), error) {
			db, err := database.NewDB(cfg.Database.Path, logger)
			if err != nil {
				return nil, nil, err
			}
			return db, func() { _ = db.Close() }, nil
		},
		LoadConfig: config.Load,
	}
}

// NewRootCommand creates the syncctl root command with production backends.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(DefaultBackends())
}

// NewRootCommandWith creates the root command over the given backends.
func NewRootCommandWith(backends Backends) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "syncctl - operate spreadsheet sync jobs",
		Long:  "Read, write and reconcile spreadsheet ranges, and inspect the sync daemon's state.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "configs/config.yaml", "path to config file")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "overall command timeout")

	app := &app{opts: opts, backends: backends}
	cmd.AddCommand(newReadCommand(app))
	cmd.AddCommand(newWriteCommand(app, "write"))
	cmd.AddCommand(newWriteCommand(app, "append"))
	cmd.AddCommand(newReconcileCommand(app))
	cmd.AddCommand(newStatusCommand(app))
	cmd.AddCommand(newHistoryCommand(app))

	return cmd
}

// app carries what every subcommand needs.
type app struct {
	opts     *RootOptions
	backends Backends
}

func (a *app) setup(cmd *cobra.Command) (context.Context, context.CancelFunc, *config.Config, *zerolog.Logger, error) {
	logger := logging.NewCLI(cmd.ErrOrStderr(), a.opts.Verbose)
	cfg, err := a.backends.LoadConfig(a.opts.ConfigPath)
	if err != nil {
		return nil, nil, nil, nil, WrapExitError(ExitCommandError, "load config", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), a.opts.Timeout)
	return ctx, cancel, cfg, logger, nil
}

func (a *app) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: a.opts.Format, Writer: cmd.OutOrStdout()}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
