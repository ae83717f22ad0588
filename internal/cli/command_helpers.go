package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/folio-blog/folioctl/internal/apiclient"
	"github.com/folio-blog/folioctl/internal/config"
	"github.com/folio-blog/folioctl/internal/logging"
	"github.com/folio-blog/folioctl/internal/session"
	"github.com/folio-blog/folioctl/internal/state"
)

// newGroupCommand builds a cobra.Command that groups subcommands.
func newGroupCommand(use, short string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}
	if len(subcommands) > 0 {
		cmd.AddCommand(subcommands...)
	}
	return cmd
}

// runtime bundles the collaborators most commands need.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	api     *apiclient.Client
	durable state.Store
	session *session.Session
}

// newRuntime loads configuration, opens durable storage and hydrates the
// session. The caller must Close the runtime.
func newRuntime(ctx context.Context, cmd *cobra.Command, opts *Options) (*runtime, error) {
	logger := LoggerFromContext(ctx)

	cfg, err := config.Load(opts.ConfigPath, config.LoadOptions{
		AllowMissing: !cmd.Flags().Changed("config"),
	})
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" && !cmd.Flags().Changed("log-level") {
		opts.LogLevel = logging.ParseLevel(cfg.LogLevel)
		logger = logging.NewLogger(os.Stderr, opts.LogLevel)
	}

	api, err := apiclient.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	durable, err := state.Open(ctx, cfg.State, logger)
	if err != nil {
		return nil, fmt.Errorf("open session storage: %w", err)
	}

	sess, err := session.New(session.Options{
		API:     api,
		Durable: durable,
		OAuth:   session.NewOAuthConfig(cfg.OAuth),
		Logger:  logger,
	})
	if err != nil {
		_ = durable.Close()
		return nil, err
	}
	if err := sess.Init(ctx); err != nil {
		_ = durable.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		api:     api,
		durable: durable,
		session: sess,
	}, nil
}

// Close releases the storage backend.
func (r *runtime) Close() {
	if err := r.durable.Close(); err != nil {
		r.logger.Warn("failed to close session storage", "error", err)
	}
}

// withRuntime wraps a command body with runtime setup and teardown.
func withRuntime(opts *Options, run func(cmd *cobra.Command, args []string, rt *runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context(), cmd, opts)
		if err != nil {
			return err
		}
		defer rt.Close()
		return run(cmd, args, rt)
	}
}
