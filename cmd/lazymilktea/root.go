// Package lazymilktea implements the command-line interface for the
// bugreport ingest/query pipeline. It is a thin driver over the
// service package: every subcommand opens or builds a cache directory
// and calls straight through, the same orchestration shape the parser
// CLI this was adapted from used for its own files -> filter -> output
// pipeline.
package lazymilktea

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/mochibug/lazymilktea/config"
)

var (
	version string
	commit  string
	date    string
)

// cacheRootFlag overrides config.Config.CacheRoot; empty uses the
// per-user default cache directory. configPathFlag points at a
// config.yaml overlay (see package config); empty runs on defaults.
var (
	cacheRootFlag string
	configPathFlag string
)

var rootCmd = &cobra.Command{
	Use:   "lazymilktea <path>",
	Short: "Index and query Android bugreports",
	Long: `lazymilktea ingests an Android bugreport, builds an on-disk index of
its logcat section, and answers filtered, cursor-paginated queries
against that index without re-reading the original file.`,
}

// Execute runs the root command. Called by main.go.
func Execute(v, c, d string) {
	version, commit, date = v, c, d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cacheRootFlag, "cache-root", "",
		"Override the per-user cache directory (default: $HOME/.cache/lazy-milktea)")
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "",
		"Path to a config.yaml overlay (cache ceiling, posting-sampling, progress cadence, message size cap)")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(jumpCmd)

	registerFilterFlags(statsCmd)
	registerFilterFlags(queryCmd)
	registerFilterFlags(jumpCmd)
}

func loadConfig() config.Config {
	cfg := config.Default()
	if configPathFlag != "" {
		loaded, err := config.Load(configPathFlag)
		if err != nil {
			log.Fatalf("[ERROR] loading --config %s: %v", configPathFlag, err)
		}
		cfg = loaded
	}
	if cacheRootFlag != "" {
		cfg.CacheRoot = cacheRootFlag
	}
	return cfg
}
