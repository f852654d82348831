package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/usc/internal/contract"
	"github.com/roach88/usc/internal/raw"
)

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List supported Sierra versions and their backends",
		Long: `List the Sierra versions each command accepts, in the order they are
matched. The first matching backend compiles the input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeVersions(cmd.OutOrStdout())
		},
	}
}

func writeVersions(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tBACKEND\tVERSIONS")
	for _, d := range contract.Registry.Describe() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", CommandCompileContract, d.Name, d.Range)
	}
	for _, d := range raw.Registry.Describe() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", CommandCompileRaw, d.Name, d.Range)
	}
	return tw.Flush()
}
