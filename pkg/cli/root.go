package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/wurt83ow/tablekeeper/pkg/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "text" | "json"

	// Config is resolved in PersistentPreRunE: defaults, file, env, then flags.
	Config *config.Options

	flags *config.Flags
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tablekeeper CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tablekeeper",
		Short: "Browse and edit a remote collection with an offline cache",
		Long: `tablekeeper pages, sorts and searches a remote REST collection and keeps
a local cache so that edits and deletions survive when the server is
unreachable. Local edits win over remote data and deleted ids stay hidden.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load(opts.ConfigPath, nil)
			if err != nil {
				return err
			}
			opts.flags.Apply(cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			opts.Config = cfg
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	opts.flags = config.BindFlags(cmd.PersistentFlags())

	// Add subcommands
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewCachedCommand(opts))
	cmd.AddCommand(NewClearDeletedCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewShellCommand(opts))

	return cmd
}
