package main

import (
	"github.com/roasbeef/learnhub/internal/build"
	"github.com/roasbeef/learnhub/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// configFile is an explicit config file path.
	configFile string

	// mcpStdio additionally serves MCP tools on stdin/stdout.
	mcpStdio bool

	// v holds defaults, environment and bound flags.
	v = config.New()
)

// rootCmd starts the daemon.
var rootCmd = &cobra.Command{
	Use:   "learnhubd",
	Short: "learnhub learning platform daemon",
	Long: `learnhubd serves video summaries, transcripts and the learning plan
exchange over HTTP, with a gRPC health endpoint.

Configuration is read from learnhub.yaml (in the working directory or
~/.learnhub), LEARNHUB_* environment variables and flags, in increasing
order of precedence.`,
	Version:       build.VersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return err
		}

		return runDaemon(cmd.Context(), cfg, mcpStdio)
	},
}

func init() {
	flags := rootCmd.Flags()

	flags.StringVar(&configFile, "config", "",
		"Path to a YAML config file")
	flags.BoolVar(&mcpStdio, "mcp-stdio", false,
		"Also serve MCP tools on stdio (logs go to stderr)")

	flags.String("web", "", "HTTP listen address")
	flags.String("grpc", "", "gRPC listen address (\"off\" to disable)")
	flags.String("store", "", "Plan store: memory, sqlite, postgres "+
		"or redis")
	flags.Bool("dev", false, "Include internal error detail in "+
		"responses")
	flags.String("log-level", "", "Log level: trace, debug, info, "+
		"warn, error")
	flags.String("log-dir", "", "Also write rotating logs to this "+
		"directory")

	bindFlag(v, "web.addr", "web")
	bindFlag(v, "grpc.listen_addr", "grpc")
	bindFlag(v, "store.backend", "store")
	bindFlag(v, "web.dev_mode", "dev")
	bindFlag(v, "log.level", "log-level")
	bindFlag(v, "log.dir", "log-dir")
}

// bindFlag binds a flag to a config key. Only flags set on the command line
// override other sources.
func bindFlag(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}
