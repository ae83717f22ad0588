package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/folio-blog/folioctl/internal/apiclient"
	"github.com/folio-blog/folioctl/internal/apierr"
	"github.com/folio-blog/folioctl/internal/config"
	"github.com/folio-blog/folioctl/internal/session"
	"github.com/folio-blog/folioctl/internal/state"
)

// newDoctorCommand creates the "doctor" subcommand that runs preflight checks
// against the configuration, the session storage and the API.
func newDoctorCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage and API connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			cfg, err := config.Load(opts.ConfigPath, config.LoadOptions{
				AllowMissing: !cmd.Flags().Changed("config"),
			})
			if err != nil {
				logger.Error("doctor check failed: configuration", "path", opts.ConfigPath, "error", err)
				return err
			}
			logger.Info("doctor check ok", "check", "config", "apiBaseURL", cfg.APIBaseURL)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := runDoctorChecks(ctx, logger, cfg); err != nil {
				return err
			}

			logger.Info("doctor checks completed successfully")
			return nil
		},
	}

	return cmd
}

func runDoctorChecks(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	var fatalErrs []error

	store, err := state.Open(ctx, cfg.State, logger)
	if err != nil {
		logger.Error("doctor check failed: state storage", "backend", cfg.State.Backend, "error", err)
		fatalErrs = append(fatalErrs, err)
	} else {
		defer func() { _ = store.Close() }()
		if err := checkStore(ctx, store); err != nil {
			logger.Error("doctor check failed: state storage", "backend", cfg.State.Backend, "error", err)
			fatalErrs = append(fatalErrs, err)
		} else {
			logger.Info("doctor check ok", "check", "state", "backend", cfg.State.Backend)
		}
	}

	api, err := apiclient.NewFromConfig(cfg, logger)
	if err != nil {
		return errors.Join(append(fatalErrs, err)...)
	}
	if _, err := api.ListPosts(ctx, 1, 1); err != nil {
		logger.Error("doctor check failed: API unreachable", "apiBaseURL", cfg.APIBaseURL, "error", err)
		fatalErrs = append(fatalErrs, err)
	} else {
		logger.Info("doctor check ok", "check", "api", "apiBaseURL", cfg.APIBaseURL)
	}

	if store != nil {
		if token, ok, _ := store.Get(ctx, session.KeyToken); ok && token != "" {
			profile, err := api.FetchProfile(ctx, token)
			switch {
			case apierr.IsAuthRequired(err):
				logger.Warn("stored session is no longer valid; run \"folioctl auth login\"")
			case err != nil:
				logger.Warn("could not verify stored session", "error", err)
			default:
				logger.Info("doctor check ok", "check", "session", "login", profile.Login)
			}
		} else {
			logger.Info("no stored session")
		}
	}

	if cfg.OAuth.ClientID == "" {
		logger.Warn("oauth.clientID is not set; \"auth login\" will not work")
	}
	if err := checkCallbackPort(cfg.OAuth.CallbackURL); err != nil {
		logger.Warn("callback address is not available", "callbackURL", cfg.OAuth.CallbackURL, "error", err)
	} else {
		logger.Info("doctor check ok", "check", "callback", "callbackURL", cfg.OAuth.CallbackURL)
	}

	if len(fatalErrs) > 0 {
		return fmt.Errorf("doctor found %d problem(s): %w", len(fatalErrs), errors.Join(fatalErrs...))
	}
	return nil
}

// checkStore round-trips a throwaway key through the store.
func checkStore(ctx context.Context, store state.Store) error {
	key := "folio.doctor." + uuid.NewString()
	if err := store.Set(ctx, key, "ok"); err != nil {
		return fmt.Errorf("write probe key: %w", err)
	}
	defer func() { _ = store.Delete(ctx, key) }()

	v, ok, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read probe key: %w", err)
	}
	if !ok || v != "ok" {
		return fmt.Errorf("probe key did not round-trip")
	}
	return nil
}

// checkCallbackPort reports whether the callback listener could bind.
func checkCallbackPort(callbackURL string) error {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return err
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return err
	}
	return ln.Close()
}
