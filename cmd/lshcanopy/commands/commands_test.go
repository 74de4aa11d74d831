package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/lsh"
)

// runCmd executes the root command with args and returns what it wrote to
// stdout and stderr. Flags are reset first since cobra keeps their values
// across executions.
func runCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	resetFlags(rootCmd)
	for _, c := range rootCmd.Commands() {
		resetFlags(c)
	}

	var outBuf, errBuf bytes.Buffer
	rootCmd.SetOut(&outBuf)
	rootCmd.SetErr(&errBuf)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeGzipFile(t *testing.T, name, content string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return writeTestFile(t, name, buf.String())
}

const profiles1 = "userName\tfullName\n" +
	"alice\tAlice Liddell\n" +
	"bob\tBob Marley\n"

const profiles2 = "userName\tfullName\tcountry\n" +
	"alice\tAlice Liddell\tUK\n" +
	"carol\tCarol Danvers\tUS\n"

func TestMatchCommand(t *testing.T) {
	p1 := writeTestFile(t, "p1.tsv", profiles1)
	p2 := writeGzipFile(t, "p2.tsv.gz", profiles2)

	stdout, _, err := runCmd(t, "match", "--profile1", p1, "--profile2", p2)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	assert.Contains(t, lines, "alice\talice\tfullName\t1.0000")
	assert.Contains(t, lines, "alice\talice\tuserName\t1.0000")
	for _, line := range lines {
		assert.Len(t, strings.Split(line, "\t"), 4, line)
	}
}

func TestMatchCommandOutputFile(t *testing.T) {
	p1 := writeTestFile(t, "p1.tsv", profiles1)
	p2 := writeTestFile(t, "p2.tsv", profiles2)
	out := filepath.Join(t.TempDir(), "matches.tsv")

	stdout, _, err := runCmd(t, "match", "--profile1", p1, "--profile2", p2, "-o", out, "--log-level", "error")
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "alice\talice\tfullName\t1.0000")
}

func TestMatchCommandErrors(t *testing.T) {
	p1 := writeTestFile(t, "p1.tsv", profiles1)
	noKey := writeTestFile(t, "nokey.tsv", "login\tfullName\nalice\tAlice\n")

	_, _, err := runCmd(t, "match", "--profile1", p1)
	assert.ErrorContains(t, err, "--profile2 is required")

	_, _, err = runCmd(t, "match", "--profile1", p1, "--profile2", noKey)
	assert.ErrorContains(t, err, `key column "userName" not found`)

	_, _, err = runCmd(t, "match", "--profile1", p1, "--profile2", filepath.Join(t.TempDir(), "missing.tsv"))
	assert.Error(t, err)
}

const clusterConfig = `key_column: id
features:
  - name: name
    kind: str
    minhash:
      seed: 11
      n: 3
      num_functions: 12
      num_bits: 32
      lower_case: true
index:
  band_width: 2
  slice_sizes: [2, 4]
cluster:
  feature: name
  threshold: 0.5
  linkage: average
  distance: jaccard
log:
  level: debug
  format: json
`

func TestClusterCommand(t *testing.T) {
	cfgPath := writeTestFile(t, "cluster.yaml", clusterConfig)
	input := writeTestFile(t, "input.tsv", "id\tname\n"+
		"a\tjohn smith\n"+
		"b\tjohn smith\n"+
		"c\tzzzz qqqq wwww\n")
	dir := t.TempDir()
	idxPath := filepath.Join(dir, "index.bin")
	canopyPath := filepath.Join(dir, "canopies.bin")

	stdout, stderr, err := runCmd(t, "cluster", "-c", cfgPath, "-i", input,
		"--index-out", idxPath, "--canopies-out", canopyPath)
	require.NoError(t, err)

	assert.Equal(t, "a\ta\nb\ta\nc\tc\n", stdout)
	assert.Contains(t, stderr, `"component":"clusterer"`)

	f, err := os.Open(idxPath)
	require.NoError(t, err)
	defer f.Close()
	idx := lsh.NewSignatureIndex()
	_, err = idx.ReadFrom(f)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, lsh.Built, idx.FlatState("name"))
	assert.Equal(t, 2, idx.NumNestedLevels("name"))

	cf, err := os.Open(canopyPath)
	require.NoError(t, err)
	defer cf.Close()
	canopies := &lsh.CanopyCollection{}
	_, err = canopies.ReadFrom(cf)
	require.NoError(t, err)
	assert.True(t, canopies.Covers(idx.IDs()))
}

func TestClusterCommandErrors(t *testing.T) {
	input := writeTestFile(t, "input.tsv", "userName\tfullName\nalice\tAlice\n")

	_, _, err := runCmd(t, "cluster")
	assert.ErrorContains(t, err, "--input is required")

	bad := writeTestFile(t, "bad.yaml", "cluster:\n  feature: nickname\n")
	_, _, err = runCmd(t, "cluster", "-c", bad, "-i", input)
	assert.ErrorContains(t, err, `cluster feature "nickname" is not declared`)

	badLinkage := writeTestFile(t, "linkage.yaml", "cluster:\n  linkage: ward\n")
	_, _, err = runCmd(t, "cluster", "-c", badLinkage, "-i", input)
	assert.ErrorIs(t, err, lsh.ErrUnknownLinkage)

	_, _, err = runCmd(t, "cluster", "-i", input, "--log-format", "xml")
	assert.Error(t, err)
}

func TestLoadTable(t *testing.T) {
	cfg, err := ParseConfig([]byte(`key_column: id
normalize_vectors: true
features:
  - name: v
    kind: vec
    random_projection: {num_functions: 2, num_bits: 4, dimension: 2}
  - name: s
    kind: str
    column: label
    minhash: {n: 2, num_functions: 2, num_bits: 8}
`))
	require.NoError(t, err)

	store, err := readTable(writeTestFile(t, "t.tsv", "id\tlabel\tv\n"+
		"x\thello\t3,4\n"+
		"y\t\t0 1\n"), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	x, ok := store.Keyspace().ID("x")
	require.True(t, ok)
	v, ok := store.Value(x, "v")
	require.True(t, ok)
	assert.InDelta(t, 0.6, v.Vector[0], 1e-6)
	assert.InDelta(t, 0.8, v.Vector[1], 1e-6)
	s, ok := store.Value(x, "s")
	require.True(t, ok)
	assert.Equal(t, "hello", s.Text)

	y, _ := store.Keyspace().ID("y")
	_, ok = store.Value(y, "s")
	assert.False(t, ok)

	_, err = readTable(writeTestFile(t, "bad.tsv", "id\tlabel\tv\nx\thi\t1,abc\n"), cfg)
	assert.ErrorContains(t, err, "invalid vector component")

	_, err = readTable(writeTestFile(t, "dup.tsv", "id\tlabel\tv\nx\ta\t1,0\nx\tb\t0,1\n"), cfg)
	assert.ErrorIs(t, err, lsh.ErrDuplicateKey)

	_, err = readTable(writeTestFile(t, "dim.tsv", "id\tlabel\tv\nx\ta\t1,0\ny\tb\t0,1,2\n"), cfg)
	var dimErr *lsh.DimensionMismatchError
	assert.ErrorAs(t, err, &dimErr)

	_, err = readTable(writeTestFile(t, "empty.tsv", ""), cfg)
	assert.ErrorContains(t, err, "missing header row")
}
