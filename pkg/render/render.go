// Package render prints entries as a plain text table.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/wurt83ow/tablekeeper/pkg/models"
	"github.com/wurt83ow/tablekeeper/pkg/tablestate"
)

// Table writes the id column followed by columns, one row per entry.
func Table(w io.Writer, columns []models.Column, entries []models.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No entries found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := make([]string, 0, len(columns)+1)
	header = append(header, "ID")
	for _, c := range columns {
		header = append(header, c.Label)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, e := range entries {
		row := make([]string, 0, len(columns)+1)
		row = append(row, strconv.Itoa(e.ID))
		for _, c := range columns {
			row = append(row, clean(e.Fields[c.Key]))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// Page writes the table and the "Showing X to Y of Z entries" footer.
func Page(w io.Writer, columns []models.Column, page models.Page, win tablestate.PageWindow) error {
	if err := Table(w, columns, page.Data); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n", Footer(win))
	return err
}

func Footer(win tablestate.PageWindow) string {
	s := fmt.Sprintf("Showing %d to %d of %d entries", win.From, win.To, win.Total)
	if win.Pages > 1 {
		s += fmt.Sprintf(" (page %d of %d)", win.Page, win.Pages)
	}
	return s
}

// clean keeps a cell on one line so the columns stay aligned.
func clean(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", "").Replace(s)
}
