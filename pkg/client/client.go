package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/wurt83ow/tablekeeper/pkg/appcontext"
	"github.com/wurt83ow/tablekeeper/pkg/logger"
	"github.com/wurt83ow/tablekeeper/pkg/models"
	"github.com/wurt83ow/tablekeeper/pkg/render"
	"github.com/wurt83ow/tablekeeper/pkg/services"
	"github.com/wurt83ow/tablekeeper/pkg/tablestate"
)

// ErrQuit is returned by Exec when the user asks to leave the shell.
var ErrQuit = errors.New("quit")

const helpText = `Commands:
  list                 show the current page
  next | prev          move one page
  page N               go to page N
  limit N              entries per page (5, 10, 20, 50, 100)
  search [TEXT]        search text, empty clears it
  sort COLUMN          sort by column, again to reverse
  where [EXPR]         filter expression, e.g. status == "Active"
  add [key=value ...]  create an entry, prompts for fields when none given
  edit ID key=value    update fields of an entry
  delete ID            delete an entry
  cols                 list columns and their visibility
  toggle COLUMN        show or hide a column
  cached               show the raw local cache
  clear-deleted        forget deleted ids
  reset                reset filters
  status               cache and sync status
  quit                 leave`

type TableKeeper struct {
	svc   *services.Service
	state *tablestate.Store
	out   io.Writer
	log   logger.LoggerInterface
	rl    *readline.Instance
}

func NewClient(svc *services.Service, state *tablestate.Store, out io.Writer, log logger.LoggerInterface) *TableKeeper {
	if log == nil {
		log = logger.Discard()
	}
	return &TableKeeper{svc: svc, state: state, out: out, log: log}
}

// Start runs the interactive loop until quit, EOF or ctx is done.
func (tk *TableKeeper) Start(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer(tk.svc.Columns()),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	tk.rl = rl
	tk.out = rl.Stdout()
	defer tk.Close()

	if err := tk.Exec(ctx, "list"); err != nil {
		tk.printErr(err)
	}
	for ctx.Err() == nil {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		err = tk.Exec(ctx, line)
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			tk.printErr(err)
		}
	}
	return ctx.Err()
}

func (tk *TableKeeper) Close() {
	if tk.rl != nil {
		tk.rl.Close()
	}
}

// Exec runs one command line.
func (tk *TableKeeper) Exec(ctx context.Context, line string) error {
	args, err := splitArgs(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	// search and where take the rest of the line verbatim so quotes survive.
	_, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	ctx, reqID := appcontext.EnsureRequestID(ctx)
	tk.log.Debug("command", "cmd", args[0], "request_id", reqID)

	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "list", "ls", "refresh":
		return tk.refresh(ctx)
	case "next":
		page := tk.state.Filters().Normalized().Page + 1
		tk.state.SetFilters(tablestate.FilterPatch{Page: &page})
		return tk.refresh(ctx)
	case "prev":
		page := max(tk.state.Filters().Normalized().Page-1, 1)
		tk.state.SetFilters(tablestate.FilterPatch{Page: &page})
		return tk.refresh(ctx)
	case "page":
		n, err := intArg(args, "page N")
		if err != nil {
			return err
		}
		tk.state.SetFilters(tablestate.FilterPatch{Page: &n})
		return tk.refresh(ctx)
	case "limit":
		n, err := intArg(args, "limit N")
		if err != nil {
			return err
		}
		if !slices.Contains(tablestate.Limits, n) {
			return fmt.Errorf("limit must be one of %v", tablestate.Limits)
		}
		tk.state.SetLimit(n)
		return tk.refresh(ctx)
	case "search":
		q := rest
		first := models.DefaultPage
		tk.state.SetFilters(tablestate.FilterPatch{Search: &q, Page: &first})
		return tk.refresh(ctx)
	case "sort":
		if len(args) != 1 {
			return errors.New("usage: sort COLUMN")
		}
		tk.state.ToggleSort(args[0])
		return tk.refresh(ctx)
	case "where":
		first := models.DefaultPage
		tk.state.SetFilters(tablestate.FilterPatch{Where: &rest, Page: &first})
		return tk.refresh(ctx)
	case "reset":
		tk.state.ResetFilters()
		return tk.refresh(ctx)
	case "add", "create":
		return tk.create(ctx, args)
	case "edit", "update":
		return tk.update(ctx, args)
	case "delete", "rm":
		id, err := intArg(args, "delete ID")
		if err != nil {
			return err
		}
		if err := tk.svc.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(tk.out, "Entry %d deleted.\n", id)
		return tk.refresh(ctx)
	case "cols", "columns":
		for _, c := range tk.svc.Columns() {
			mark := "x"
			if !tk.state.IsVisible(c.Key) {
				mark = " "
			}
			fmt.Fprintf(tk.out, "[%s] %s (%s)\n", mark, c.Label, c.Key)
		}
		return nil
	case "toggle":
		if len(args) != 1 {
			return errors.New("usage: toggle COLUMN")
		}
		tk.state.ToggleColumnVisibility(args[0])
		page, _ := tk.state.Current()
		return tk.show(page)
	case "cached":
		entries, err := tk.svc.Cached(ctx)
		if err != nil {
			return err
		}
		return render.Table(tk.out, tk.svc.Columns(), entries)
	case "clear-deleted":
		if err := tk.svc.ClearDeleted(ctx); err != nil {
			return err
		}
		fmt.Fprintln(tk.out, "Deleted ids cleared.")
		return tk.refresh(ctx)
	case "status":
		st, err := tk.svc.Stats(ctx)
		if err != nil {
			return err
		}
		PrintStatus(tk.out, st)
		return nil
	case "help", "?":
		fmt.Fprintln(tk.out, helpText)
		return nil
	case "quit", "exit", "q":
		return ErrQuit
	}
	return fmt.Errorf("unknown command %q, type help", cmd)
}

// refresh fetches the page for the current filters and shows it unless a
// newer result was published meanwhile.
func (tk *TableKeeper) refresh(ctx context.Context) error {
	filters, gen := tk.state.Begin()
	page, err := tk.svc.GetPage(ctx, filters)
	if err != nil {
		return err
	}
	if !tk.state.Publish(gen, page) {
		tk.log.Debug("dropping stale page", "generation", gen)
		return nil
	}
	return tk.show(page)
}

func (tk *TableKeeper) show(page models.Page) error {
	cols := tk.state.VisibleColumns(tk.svc.Columns())
	return render.Page(tk.out, cols, page, tk.state.Window(page.Total))
}

func (tk *TableKeeper) create(ctx context.Context, args []string) error {
	fields, err := ParseAssignments(args)
	if err != nil {
		return err
	}
	if len(fields) == 0 && tk.rl != nil {
		fields = tk.promptFields()
	}
	e, err := tk.svc.Create(ctx, fields)
	if err != nil {
		return err
	}
	fmt.Fprintf(tk.out, "Entry %d created.\n", e.ID)
	return tk.refresh(ctx)
}

func (tk *TableKeeper) update(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: edit ID key=value ...")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}
	fields, err := ParseAssignments(args[1:])
	if err != nil {
		return err
	}
	e, err := tk.svc.Update(ctx, id, fields)
	if err != nil {
		return err
	}
	fmt.Fprintf(tk.out, "Entry %d updated.\n", e.ID)
	return tk.refresh(ctx)
}

func (tk *TableKeeper) promptFields() map[string]string {
	fields := make(map[string]string)
	defer tk.rl.SetPrompt("> ")
	for _, c := range tk.svc.Columns() {
		tk.rl.SetPrompt(c.Label + ": ")
		v, err := tk.rl.Readline()
		if err != nil {
			break
		}
		fields[c.Key] = strings.TrimSpace(v)
	}
	return fields
}

func (tk *TableKeeper) printErr(err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields {
			fmt.Fprintf(tk.out, "  %s: %s\n", f.Key, f.Message)
		}
		return
	}
	fmt.Fprintf(tk.out, "Error: %v\n", err)
}

// PrintStatus writes the cache and sync summary.
func PrintStatus(w io.Writer, st services.Stats) {
	mode := "online"
	if !st.Online {
		mode = "offline"
	}
	fmt.Fprintf(w, "Mode:        %s\n", mode)
	fmt.Fprintf(w, "Cached:      %d\n", st.Cached)
	fmt.Fprintf(w, "Deleted ids: %d\n", st.Deleted)
	if st.Sync.LastSync.IsZero() {
		fmt.Fprintln(w, "Last sync:   never")
	} else {
		fmt.Fprintf(w, "Last sync:   %s\n", st.Sync.LastSync.Local().Format("2006-01-02 15:04:05"))
	}
	if st.Sync.Offline() {
		fmt.Fprintf(w, "Last error:  %s\n", st.Sync.LastError)
	}
}

// ParseAssignments turns key=value arguments into fields.
func ParseAssignments(args []string) (map[string]string, error) {
	fields := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		fields[k] = v
	}
	return fields, nil
}

func intArg(args []string, usage string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("usage: " + usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("usage: %s: %q is not a number", usage, args[0])
	}
	return n, nil
}

// splitArgs splits on spaces, keeping double-quoted parts together.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case (r == ' ' || r == '\t') && !quoted:
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if quoted {
		return nil, errors.New("unterminated quote")
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}

func completer(columns []models.Column) *readline.PrefixCompleter {
	colItems := make([]readline.PrefixCompleterInterface, 0, len(columns))
	for _, c := range columns {
		colItems = append(colItems, readline.PcItem(c.Key))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("list"),
		readline.PcItem("next"),
		readline.PcItem("prev"),
		readline.PcItem("page"),
		readline.PcItem("limit"),
		readline.PcItem("search"),
		readline.PcItem("sort", colItems...),
		readline.PcItem("where"),
		readline.PcItem("add"),
		readline.PcItem("edit"),
		readline.PcItem("delete"),
		readline.PcItem("cols"),
		readline.PcItem("toggle", colItems...),
		readline.PcItem("cached"),
		readline.PcItem("clear-deleted"),
		readline.PcItem("reset"),
		readline.PcItem("status"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}
