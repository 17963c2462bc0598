package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wurt83ow/tablekeeper/pkg/client"
	"github.com/wurt83ow/tablekeeper/pkg/render"
	"github.com/wurt83ow/tablekeeper/pkg/tablestate"
)

// NewCachedCommand creates the cached command.
func NewCachedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cached",
		Short: "Show the raw local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				entries, err := a.svc.Cached(ctx)
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				return render.Table(cmd.OutOrStdout(), a.svc.Columns(), entries)
			})
		},
	}
}

// NewClearDeletedCommand creates the clear-deleted command.
func NewClearDeletedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-deleted",
		Short: "Forget deleted ids so remote entries show again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				if err := a.svc.ClearDeleted(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Deleted ids cleared.")
				return nil
			})
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache size and last sync time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				st, err := a.svc.Stats(ctx)
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), st)
				}
				client.PrintStatus(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
}

// NewShellCommand creates the interactive shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Browse the table interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				tk := client.NewClient(a.svc, tablestate.New(), cmd.OutOrStdout(), a.log)
				return tk.Start(ctx, filepath.Join(a.cfg.DataDir, "history"))
			})
		},
	}
}
