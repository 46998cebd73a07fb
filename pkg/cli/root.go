// Package cli holds the storyweaver commands.
package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storyweaver/pkg/config"
)

var (
	cfgFile string
	v       *viper.Viper
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "storyweaver",
	Short: "StoryWeaver - collaborative children's storytelling backend",
	Long: `StoryWeaver keeps track of the characters and places in a children's book,
checks new story content against what is already established and answers
questions about the story.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (STORYWEAVER_*, PORT, OPENAI_API_KEY, OPENAI_MODEL, OPENAI_BASE_URL)
3. Config file (--config)
4. Defaults`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command; ctx is cancelled on shutdown signals.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("storyweaver v1.0.0")
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("store", "", "store driver (memory, file, sqlite)")
	flags.String("store-path", "", "store file for the file and sqlite drivers")
	flags.String("ner", "", "entity recognizer (heuristic, model)")
	flags.String("llm-provider", "", "model provider (openai, gemini, grok, moonshot, kimi, local)")

	rootCmd.AddCommand(versionCmd)
}

var flagKeys = map[string]string{
	"log-level":    "log_level",
	"store":        "store_driver",
	"store-path":   "store_path",
	"ner":          "ner_mode",
	"llm-provider": "llm_provider",
	"port":         "port",
	"seed":         "seed",
}

// loadConfig builds the viper instance for this run and binds every flag the
// command knows about to its config key.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if v, err = config.New(cfgFile); err != nil {
		return err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	if cfg, err = config.Load(v); err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	log.SetLevel(level)
	if f := v.ConfigFileUsed(); f != "" {
		log.Debug("using config file", "path", f)
	}
	return nil
}
