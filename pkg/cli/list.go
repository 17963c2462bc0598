package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wurt83ow/tablekeeper/pkg/models"
	"github.com/wurt83ow/tablekeeper/pkg/render"
	"github.com/wurt83ow/tablekeeper/pkg/tablestate"
)

type listOptions struct {
	page   int
	limit  int
	search string
	sort   string
	order  string
	where  string
	hide   []string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	lo := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one page of the merged collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				return runList(ctx, cmd, rootOpts, a, lo)
			})
		},
	}
	cmd.Flags().IntVar(&lo.page, "page", models.DefaultPage, "page number")
	cmd.Flags().IntVar(&lo.limit, "limit", models.DefaultLimit, "entries per page")
	cmd.Flags().StringVarP(&lo.search, "search", "q", "", "search text")
	cmd.Flags().StringVar(&lo.sort, "sort", "", "column to sort by")
	cmd.Flags().StringVar(&lo.order, "order", string(models.Asc), "sort order (asc|desc)")
	cmd.Flags().StringVar(&lo.where, "where", "", `filter expression, e.g. 'status == "Active"'`)
	cmd.Flags().StringSliceVar(&lo.hide, "hide", nil, "columns to hide")
	return cmd
}

func runList(ctx context.Context, cmd *cobra.Command, opts *RootOptions, a *app, lo *listOptions) error {
	if lo.order != string(models.Asc) && lo.order != string(models.Desc) {
		return fmt.Errorf("invalid order %q: must be asc or desc", lo.order)
	}
	order := models.SortOrder(lo.order)

	state := tablestate.New()
	state.SetFilters(tablestate.FilterPatch{
		Search:    &lo.search,
		SortBy:    &lo.sort,
		SortOrder: &order,
		Page:      &lo.page,
		Limit:     &lo.limit,
		Where:     &lo.where,
	})
	for _, key := range lo.hide {
		state.ToggleColumnVisibility(key)
	}

	filters, gen := state.Begin()
	page, err := a.svc.GetPage(ctx, filters)
	if err != nil {
		return err
	}
	state.Publish(gen, page)

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), page)
	}
	cols := state.VisibleColumns(a.svc.Columns())
	return render.Page(cmd.OutOrStdout(), cols, page, state.Window(page.Total))
}
