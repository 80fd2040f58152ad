package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"reminderd/internal/app"
	"reminderd/internal/config"
	"reminderd/internal/httpapi"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts app.Options

	root := &cobra.Command{
		Use:           "reminderd",
		Short:         "Water reminder scheduler and notification dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "./config.yaml", "path to config (yaml or json)")
	root.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading secrets")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the API server and reminder scheduler",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "check-config",
			Short: "Validate the config file and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				if _, err := config.NewManager(opts.ConfigPath).Load(); err != nil {
					return err
				}
				if _, err := config.LoadSecrets(opts.EnvFile); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "config ok:", opts.ConfigPath)
				return nil
			},
		},
		tokenCmd(&opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "reminderd", version)
			},
		},
	)
	return root
}

func tokenCmd(opts *app.Options) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a user token signed with JWT_SECRET (local testing)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sec, err := config.LoadSecrets(opts.EnvFile)
			if err != nil {
				return err
			}
			if sec.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			tok, err := httpapi.IssueUserToken([]byte(sec.JWTSecret), args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime; 0 for no expiry")
	return cmd
}

func serve(parent context.Context, opts app.Options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, opts)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}
	// No-op outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout()+5*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}
