package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/garden-companion/internal/config"
	"github.com/sakif/garden-companion/internal/server"
)

// newRootCmd builds the command tree. Output goes to out so tests can
// capture it.
func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "garden",
		Short:         "Gardening companion backend: weather, plant catalog and personal garden",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.AddCommand(newServeCmd(), newWeatherCmd(), newPlantsCmd(), newTasksCmd())
	return root
}

// withApp loads the configuration, builds the App and closes it when fn
// returns. Every subcommand goes through here.
func withApp(ctx context.Context, fn func(ctx context.Context, app *server.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("closing app", "error", err)
		}
	}()

	return fn(ctx, app)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			// signal.NotifyContext cancels ctx on Ctrl+C or a container stop,
			// which starts the graceful shutdown in server.Run.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, func(ctx context.Context, app *server.App) error {
				return server.New(app).Run(ctx, app.Config.Addr())
			})
		},
	}
}

func newWeatherCmd() *cobra.Command {
	weatherCmd := &cobra.Command{Use: "weather", Short: "Weather cache maintenance"}

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete cached weather snapshots older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive, got %s", olderThan)
			}
			return withApp(cmd.Context(), func(ctx context.Context, app *server.App) error {
				n, err := app.Weather.Prune(ctx, olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d weather snapshots\n", n)
				return nil
			})
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "minimum age of snapshots to delete")
	weatherCmd.AddCommand(pruneCmd)

	return weatherCmd
}

func newPlantsCmd() *cobra.Command {
	plantsCmd := &cobra.Command{Use: "plants", Short: "Plant catalog maintenance"}

	plantsCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every cached plant record (gardens refetch on next read)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *server.App) error {
				n, err := app.Plants.ClearCatalog(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d catalog records\n", n)
				return nil
			})
		},
	})

	return plantsCmd
}

func newTasksCmd() *cobra.Command {
	var (
		userID string
		limit  int
	)
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Print the pending care tasks for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative, got %d", limit)
			}
			return withApp(cmd.Context(), func(ctx context.Context, app *server.App) error {
				tasks, err := app.Garden.Tasks(ctx, userID, limit)
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to do")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "PRIORITY\tKIND\tPLANT\tDUE")
				for _, t := range tasks {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", t.Priority, t.Kind, t.Name, t.Due)
				}
				return tw.Flush()
			})
		},
	}
	tasksCmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	tasksCmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of tasks (0 for all)")
	_ = tasksCmd.MarkFlagRequired("user")

	return tasksCmd
}
