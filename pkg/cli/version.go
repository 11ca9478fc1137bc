package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ssdt/authscan/pkg/defaults"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s %s/%s)\n",
				defaults.ToolName, defaults.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
