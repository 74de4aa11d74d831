package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wizenheimer/lsh"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster the records of one TSV file",
	Long: `Hash the file, cover it with canopies built from the band index of the
cluster feature, compute exact distances inside each canopy and merge
clusters agglomeratively while they share a canopy.

Output columns: key, cluster. A cluster is named after the key of its
smallest record id, which is the first record of the cluster in the file.`,
	RunE: runCluster,
}

func init() {
	clusterCmd.Flags().StringP("input", "i", "", "input TSV file (.gz supported)")
	clusterCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	clusterCmd.Flags().String("index-out", "", "write the signature index to this file")
	clusterCmd.Flags().String("canopies-out", "", "write the canopies to this file")
}

func runCluster(cmd *cobra.Command, args []string) error {
	inputPath, err := requiredFlag(cmd, "input")
	if err != nil {
		return err
	}
	flags := make(map[string]string)
	for _, name := range []string{"output", "index-out", "canopies-out"} {
		v, err := cmd.Flags().GetString(name)
		if err != nil {
			return fmt.Errorf("failed to read '%s' flag: %w", name, err)
		}
		flags[name] = v
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	feature, ok := cfg.Feature(cfg.Cluster.Feature)
	if !ok {
		return fmt.Errorf("cluster feature %q is not declared", cfg.Cluster.Feature)
	}
	dist, err := clusterDistance(cfg.Cluster, feature)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := readTable(inputPath, cfg)
	if err != nil {
		return err
	}
	codecs, err := cfg.Codecs(logger)
	if err != nil {
		return err
	}
	idx, err := lsh.EncodeAll(ctx, store, codecs, lsh.EncodeOptions{Logger: logger})
	if err != nil {
		return err
	}
	idx.SetLogger(logger)
	if err := idx.BuildFlat(cfg.Index.BandWidth); err != nil {
		return err
	}
	if len(cfg.Index.SliceSizes) > 0 {
		if err := idx.BuildNested(cfg.Index.SliceSizes); err != nil {
			return err
		}
	}
	if err := writeFile(flags["index-out"], idx); err != nil {
		return err
	}

	canopyCfg := cfg.Canopy
	canopyCfg.Logger = logger
	builder, err := lsh.NewCanopyBuilder(canopyCfg)
	if err != nil {
		return err
	}
	canopies, err := builder.Build(ctx, idx, feature.Name)
	if err != nil {
		return err
	}
	if err := writeFile(flags["canopies-out"], canopies); err != nil {
		return err
	}

	d, _, err := lsh.NewSparseDistanceBuilder(lsh.SparseDistanceConfig{
		Workers: cfg.Cluster.Workers,
		Logger:  logger,
	}).Build(ctx, canopies, store, feature.Name, dist)
	if err != nil {
		return err
	}

	clusterer, err := lsh.NewCanopyClusterer(lsh.ClustererConfig{
		Threshold: cfg.Cluster.Threshold,
		Linkage:   cfg.Cluster.Linkage,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	clustering, err := clusterer.Cluster(ctx, d, canopies)
	if err != nil {
		return err
	}

	w, closeOut, err := createOutput(flags["output"], cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := writeAssignments(w, store.Keyspace(), clustering); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

// clusterDistance resolves the configured distance, defaulting by feature
// kind: Jaccard for strings, Euclidean for vectors.
func clusterDistance(cc ClusterConfig, f FeatureConfig) (lsh.Distance, error) {
	kind := cc.Distance
	if kind == "" {
		kind = lsh.Euclidean
		if f.Kind == lsh.StringKind {
			kind = lsh.Jaccard
		}
	}
	return lsh.NewDistance(kind)
}

func writeAssignments(w io.Writer, ks *lsh.Keyspace, c *lsh.Clustering) error {
	bw := bufio.NewWriter(w)
	for _, rep := range c.Representatives() {
		name, _ := ks.Key(rep)
		members, _ := c.Cluster(rep)
		for _, key := range ks.Keys(members) {
			fmt.Fprintf(bw, "%s\t%s\n", key, name)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write clusters: %w", err)
	}
	return nil
}

func writeFile(path string, src io.WriterTo) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if _, err := src.WriteTo(bw); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
