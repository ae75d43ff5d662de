package commands

import (
	"github.com/roasbeef/learnhub/internal/build"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run:   runVersion,
}

// runVersion prints the version and build information.
func runVersion(cmd *cobra.Command, _ []string) {
	out := cmd.OutOrStdout()
	printf(out, "learnhub version %s", build.VersionString())

	if build.GoVersion != "" {
		printf(out, " go=%s", build.GoVersion)
	}
	if tags := build.Tags(); len(tags) > 0 {
		printf(out, " tags=%s", build.RawTags)
	}

	printf(out, "\n")
}
