package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iotlab-io/labwatch/internal/buildinfo"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:     "version",
	Aliases: []string{"v"},
	Short:   "Show version information",
	// Needs no configuration or backend.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.Get()
		out := cmd.OutOrStdout()
		if versionJSON {
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprintf(out, "%s %s\n", paint(styleBrand, "Labwatch"), paint(styleVersion, info.Version))
		fmt.Fprintf(out, "  Commit: %s\n", info.Commit)
		fmt.Fprintf(out, "  Built: %s\n", info.BuildDate)
		fmt.Fprintf(out, "  OS/Arch: %s\n", info.Platform)
		fmt.Fprintf(out, "  Go: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print as JSON")
}
