package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Phone    string
	Password string
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session for the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(ctx context.Context, a *app) error {
				session, err := a.rec.Login(ctx, opts.Phone, opts.Password)
				if err != nil {
					return err
				}
				snap := a.rec.Snapshot()
				fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s): %d mosques, %d lessons, %d posts\n",
					session.Name, session.UserID, len(snap.Mosques), len(snap.Lessons), len(snap.Posts))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone number (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (required)")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(ctx context.Context, a *app) error {
				if err := a.rec.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "signed out")
				return nil
			})
		},
	}
}

// withApp runs fn against a bootstrapped reconciler without the push
// channel.
func withApp(ctx context.Context, opts *RootOptions, fn func(context.Context, *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, opts.cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	stop := a.start(ctx)
	defer stop()
	return fn(ctx, a)
}
