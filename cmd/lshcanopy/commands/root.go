package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wizenheimer/lsh"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "lshcanopy",
	Short: "LSH similarity search and canopy clustering over TSV profiles",
	Long: `lshcanopy - hashes TSV records into LSH signatures, links records across
two files and clusters records of one file under canopy constraints.

Every command reads a YAML configuration (--config) declaring the key column
and the features to hash. Without one, the built-in profile matcher is used:
records keyed by userName with userName and fullName hashed by MinHash.

Examples:
  # Link two profile dumps
  lshcanopy match --profile1 a.tsv --profile2 b.tsv.gz

  # Cluster one file and keep the index for later inspection
  lshcanopy cluster -c clusters.yaml --input users.tsv --index-out users.idx`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format override (text, json)")

	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(clusterCmd)
}

// setup loads the configuration and builds the logger of a command run. Log
// records go to the command's stderr.
func setup(cmd *cobra.Command) (*Config, *lsh.Logger, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func requiredFlag(cmd *cobra.Command, name string) (string, error) {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to read '%s' flag: %w", name, err)
	}
	if v == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return v, nil
}
