package main

import (
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evansims/fgacache/cmd/cachecmd"
	"github.com/evansims/fgacache/cmd/migrate"
	"github.com/evansims/fgacache/cmd/run"
	"github.com/evansims/fgacache/internal/build"
)

func main() {
	rootCmd := NewRootCommand()

	rootCmd.AddCommand(run.NewRunCommand())
	rootCmd.AddCommand(migrate.NewMigrateCommand())
	rootCmd.AddCommand(cachecmd.NewCacheCommand())
	rootCmd.AddCommand(NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// NewRootCommand returns the base fgacache command with config loading
// wired up: 'fgacache.yaml' from /etc/fgacache, $HOME/.fgacache or the
// working directory, overridden by FGACACHE_* environment variables.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fgacache",
		Short: "A caching and write-buffering sidecar for remote relationship-based authorization",
		Long: `A caching and write-buffering sidecar for remote relationship-based authorization.
fgacache absorbs bursts of permission checks with a read-through cache and decouples
grant/revoke latency from callers by buffering mutations and flushing them in batches.`,
	}

	viper.SetConfigName("fgacache")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/fgacache")
	viper.AddConfigPath("$HOME/.fgacache")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("FGACACHE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	return cmd
}

// NewVersionCommand returns the command that prints build information.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of fgacache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("fgacache version %s (commit %s, built %s)\n", build.Version, build.Commit, build.Date)
			return nil
		},
		Args: cobra.NoArgs,
	}
}
