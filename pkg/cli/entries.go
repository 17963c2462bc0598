package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wurt83ow/tablekeeper/pkg/client"
	"github.com/wurt83ow/tablekeeper/pkg/models"
)

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "create --set key=value ...",
		Short: "Create an entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := client.ParseAssignments(sets)
			if err != nil {
				return err
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				e, err := a.svc.Create(ctx, fields)
				if err != nil {
					return err
				}
				return printEntry(cmd, rootOpts, "created", e)
			})
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value, repeatable")
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "update ID --set key=value ...",
		Short: "Update fields of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			fields, err := client.ParseAssignments(sets)
			if err != nil {
				return err
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				e, err := a.svc.Update(ctx, id, fields)
				if err != nil {
					return err
				}
				return printEntry(cmd, rootOpts, "updated", e)
			})
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value, repeatable")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an entry and keep it hidden",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				if err := a.svc.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %d deleted.\n", id)
				return nil
			})
		},
	}
}

func printEntry(cmd *cobra.Command, opts *RootOptions, verb string, e models.Entry) error {
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), e)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Entry %d %s.\n", e.ID, verb)
	return err
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", s, models.ErrInvalidID)
	}
	return id, nil
}
