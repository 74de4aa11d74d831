package commands

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wizenheimer/lsh"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Link the records of two TSV files",
	Long: `Hash both files with the configured codecs, index the second file by bands
and print, for every record of the first file, the records of the second
sharing at least one band of some feature.

Output columns: key1, key2, feature, score. The score is the fraction of the
query's matched bands shared by the candidate.`,
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().String("profile1", "", "query TSV file (.gz supported)")
	matchCmd.Flags().String("profile2", "", "target TSV file (.gz supported)")
	matchCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
}

func runMatch(cmd *cobra.Command, args []string) error {
	queryPath, err := requiredFlag(cmd, "profile1")
	if err != nil {
		return err
	}
	targetPath, err := requiredFlag(cmd, "profile2")
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to read 'output' flag: %w", err)
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	queryStore, err := readTable(queryPath, cfg)
	if err != nil {
		return err
	}
	targetStore, err := readTable(targetPath, cfg)
	if err != nil {
		return err
	}

	codecs, err := cfg.Codecs(logger)
	if err != nil {
		return err
	}
	opts := lsh.EncodeOptions{Logger: logger}
	query, err := lsh.EncodeAll(ctx, queryStore, codecs, opts)
	if err != nil {
		return err
	}
	target, err := lsh.EncodeAll(ctx, targetStore, codecs, opts)
	if err != nil {
		return err
	}
	target.SetLogger(logger)
	if err := target.BuildFlat(cfg.Index.BandWidth); err != nil {
		return err
	}

	matchCfg := cfg.Match
	matchCfg.Logger = logger
	results, err := lsh.NewMatcher(matchCfg).Match(ctx, query, target)
	if err != nil {
		return err
	}

	w, closeOut, err := createOutput(outputPath, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	qks, tks := queryStore.Keyspace(), targetStore.Keyspace()
	for _, r := range results {
		k1, _ := qks.Key(r.Query)
		k2, _ := tks.Key(r.Candidate)
		fmt.Fprintf(bw, "%s\t%s\t%s\t%.4f\n", k1, k2, r.Feature, r.Score)
	}
	if err := bw.Flush(); err != nil {
		closeOut()
		return fmt.Errorf("failed to write results: %w", err)
	}
	return closeOut()
}
