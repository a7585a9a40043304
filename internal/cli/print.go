package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nathanielparke/cannoli/internal/tools"
)

func newPrintCommandCmd(a *app, registry *tools.Registry) *cobra.Command {
	parent := &cobra.Command{
		Use:   "print-command <tool>",
		Short: "Print the command a tool would run, without running it",
	}
	for _, name := range registry.Names() {
		tool, _ := registry.Get(name)
		_, takesArgs := tool.(tools.ArgTaker)
		args := cobra.NoArgs
		use := name
		if takesArgs {
			args = cobra.ArbitraryArgs
			use += " -- <command> [args...]"
		}
		cmd := &cobra.Command{
			Use:   use,
			Short: "Print the " + name + " command",
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				if t, ok := tool.(tools.ArgTaker); ok {
					if err := t.TakeArgs(args); err != nil {
						return err
					}
				}
				if err := tool.Validate(); err != nil {
					return err
				}
				built, err := tool.Command(a.env())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, built.String())
				for i, f := range built.Files() {
					fmt.Fprintf(out, "# $%d = %s (%s)\n", i, f.Path, f.Mode)
				}
				return nil
			},
		}
		tool.Bind(cmd.Flags())
		parent.AddCommand(cmd)
	}
	return parent
}
