package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "LOG_INDEXER"

var rootCmd = &cobra.Command{
	Use:          "log-indexer",
	Short:        "Index NEAR receipt logs into Redis streams",
	SilenceUsage: true,
}

var configFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().Bool("debug", false, `"true" or "false"`)

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd)

	rootCmd.PersistentFlags().VisitAll(bindFlag)
}

func bindFlag(f *pflag.Flag) {
	key := strings.ReplaceAll(f.Name, "-", "_")
	viper.BindPFlag(key, f) //nolint:errcheck
	viper.BindEnv(key)      //nolint:errcheck
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
