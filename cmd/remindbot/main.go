package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"remindbot/internal/app"
	"remindbot/pkg/systemd"

	_ "time/tzdata"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	serve := newServeCmd(&cfgPath)
	root := &cobra.Command{
		Use:           "remindbot",
		Short:         "Telegram reminder bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config (json or yaml)")
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(
		serve,
		newRescheduleCmd(&cfgPath),
		newPlanCmd(&cfgPath),
		newListCmd(&cfgPath),
	)
	return root
}

func newServeCmd(cfgPath *string) *cobra.Command {
	var reschedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(*cfgPath, app.Options{RescheduleOnStart: reschedule})
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer stopCancel()
				_ = a.Stop(stopCtx, app.StopFatalError)
				return fmt.Errorf("start: %w", err)
			}
			systemd.Ready()
			go systemd.Watchdog(ctx)

			reason := app.StopSignal
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = app.StopFatalError
			}
			systemd.Stopping()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer stopCancel()
			if err := a.Stop(stopCtx, reason); err != nil {
				return err
			}
			if reason == app.StopFatalError {
				return a.Err()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reschedule, "reschedule", false, "rebuild all triggers from the reminder store on start")
	return cmd
}

func withTools(cfgPath string, fn func(ctx context.Context, t *app.Tools) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	t, err := app.OpenTools(cfgPath)
	if err != nil {
		return err
	}
	return errors.Join(fn(ctx, t), t.Close())
}

func newRescheduleCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule",
		Short: "Rebuild every trigger from the reminder store without serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTools(*cfgPath, func(ctx context.Context, t *app.Tools) error {
				rep, err := t.Reschedule(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"reminders: %d\ntriggers: %d\ndormant: %d\nremoved: %d\nfailed: %d\ncleared: %d\ntook: %s\n",
					rep.Reminders, rep.Scheduled, rep.Dormant, rep.Removed, rep.Failed, rep.Cleared, rep.Took.Round(time.Millisecond))
				if rep.Failed > 0 {
					return fmt.Errorf("%d reminder(s) failed to reschedule", rep.Failed)
				}
				return nil
			})
		},
	}
}

func newPlanCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <id>",
		Short: "Print the triggers a reminder would get right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTools(*cfgPath, func(ctx context.Context, t *app.Tools) error {
				r, res, err := t.Plan(ctx, strings.TrimSpace(args[0]), time.Now())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "reminder %s in chat %d (%s)\n", r.ID, r.ChatID, res.Location)
				for _, w := range res.Warnings {
					fmt.Fprintf(out, "warning: %v\n", w)
				}
				if len(res.Triggers) == 0 {
					fmt.Fprintln(out, "no triggers (reminder is dormant)")
					return nil
				}
				for _, tr := range res.Triggers {
					fmt.Fprintf(out, "%-40s %s\n", tr.Name(), tr.Describe())
				}
				return nil
			})
		},
	}
}

func newListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List reminders in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTools(*cfgPath, func(ctx context.Context, t *app.Tools) error {
				rs, err := t.Reminders(ctx)
				if err != nil {
					return err
				}
				return printReminders(cmd.OutOrStdout(), rs, time.Now())
			})
		},
	}
}
