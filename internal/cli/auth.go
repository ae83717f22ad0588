package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/folio-blog/folioctl/internal/oauthcb"
)

// newAuthCommand creates the "auth" group for session management.
func newAuthCommand(opts *Options) *cobra.Command {
	return newGroupCommand("auth", "Manage the GitHub sign-in session",
		newAuthLoginCommand(opts),
		newAuthLogoutCommand(opts),
		newAuthStatusCommand(opts),
	)
}

// newAuthLoginCommand creates "auth login", which runs the OAuth handshake
// through a local callback listener.
func newAuthLoginCommand(opts *Options) *cobra.Command {
	var (
		returnPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with GitHub",
		RunE: withRuntime(opts, func(cmd *cobra.Command, _ []string, rt *runtime) error {
			out := cmd.OutOrStdout()
			if profile, ok := rt.session.Profile(); ok && rt.session.IsAuthenticated() && !force {
				_, err := fmt.Fprintf(out, "Already signed in as %s (use --force to sign in again)\n", profile.Login)
				return err
			}

			srv, err := oauthcb.New(oauthcb.Options{
				Session:            rt.session,
				CallbackURL:        rt.cfg.OAuth.CallbackURL,
				SiteURL:            rt.cfg.SiteURL,
				ErrorRedirectDelay: rt.cfg.OAuth.ErrorRedirectDelay,
				Logger:             rt.logger,
			})
			if err != nil {
				return err
			}

			authURL, err := rt.session.BeginLogin(cmd.Context(), returnPath)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(out, "Open this URL in your browser to sign in:\n\n  %s\n\n", authURL); err != nil {
				return err
			}
			rt.logger.Info("waiting for login callback", "addr", srv.Addr(), "timeout", rt.cfg.OAuth.LoginTimeout)

			ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.OAuth.LoginTimeout)
			defer cancel()
			res, err := srv.Run(ctx)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(out, "Signed in as %s\n", res.Profile.Ref().DisplayName())
			return err
		}),
	}

	cmd.Flags().StringVar(&returnPath, "return-path", "/", "Site path the browser is sent to after signing in")
	cmd.Flags().BoolVar(&force, "force", false, "Sign in again even when a session exists")

	return cmd
}

// newAuthLogoutCommand creates "auth logout".
func newAuthLogoutCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: withRuntime(opts, func(cmd *cobra.Command, _ []string, rt *runtime) error {
			if err := rt.session.Logout(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return err
		}),
	}
}

// newAuthStatusCommand creates "auth status".
func newAuthStatusCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show who is signed in",
		RunE: withRuntime(opts, func(cmd *cobra.Command, _ []string, rt *runtime) error {
			out := cmd.OutOrStdout()
			profile, ok := rt.session.Profile()
			if !rt.session.IsAuthenticated() || !ok {
				_, err := fmt.Fprintln(out, "Not signed in")
				return err
			}
			if _, err := fmt.Fprintf(out, "Signed in as %s (%s)\n", profile.Login, profile.Ref().DisplayName()); err != nil {
				return err
			}
			if profile.Email != "" {
				if _, err := fmt.Fprintf(out, "Email: %s\n", profile.Email); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}
