package commands

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/wizenheimer/lsh"
)

// openInput opens path for reading; "-" is stdin and a .gz suffix is
// decompressed transparently.
func openInput(path string) (io.ReadCloser, error) {
	var f *os.File
	if path == "-" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read gzip header of %s: %w", path, err)
	}
	return &gzipFile{Reader: zr, file: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	return errors.Join(g.Reader.Close(), g.file.Close())
}

// createOutput opens path for writing; "" and "-" are the fallback writer and
// a .gz suffix compresses the output.
func createOutput(path string, fallback io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return fallback, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, f.Close, nil
	}
	zw := gzip.NewWriter(f)
	return zw, func() error { return errors.Join(zw.Close(), f.Close()) }, nil
}

// readTable loads a TSV file with a header row into a feature store. The key
// column and every configured feature column must be present in the header.
// Empty cells leave the feature missing for that record.
func readTable(path string, cfg *Config) (*lsh.MemoryFeatureStore, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	store, err := lsh.NewMemoryFeatureStore(cfg.Specs(), cfg.Precision)
	if err != nil {
		return nil, err
	}
	if err := loadTable(in, cfg, store); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return store, nil
}

func loadTable(r io.Reader, cfg *Config, store *lsh.MemoryFeatureStore) error {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("missing header row")
		}
		return fmt.Errorf("failed to read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.TrimSpace(h)] = i
	}

	keyCol, ok := columns[cfg.KeyColumn]
	if !ok {
		return fmt.Errorf("key column %q not found in header", cfg.KeyColumn)
	}
	featureCols := make([]int, len(cfg.Features))
	for i, f := range cfg.Features {
		col, ok := columns[f.Column]
		if !ok {
			return fmt.Errorf("column %q of feature %q not found in header", f.Column, f.Name)
		}
		featureCols[i] = col
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if keyCol >= len(record) || record[keyCol] == "" {
			return fmt.Errorf("line %d: empty key", line)
		}
		values := make(map[string]lsh.Value, len(cfg.Features))
		for i, f := range cfg.Features {
			col := featureCols[i]
			if col >= len(record) || record[col] == "" {
				continue
			}
			v, err := parseValue(f.Kind, record[col], cfg.NormalizeVectors)
			if err != nil {
				return fmt.Errorf("line %d feature %q: %w", line, f.Name, err)
			}
			values[f.Name] = v
		}
		if _, err := store.Add(record[keyCol], values); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

// parseValue converts one cell. Vector cells are numbers separated by spaces
// or commas.
func parseValue(kind lsh.FeatureKind, cell string, normalize bool) (lsh.Value, error) {
	if kind == lsh.StringKind {
		return lsh.StringValue(cell), nil
	}
	fields := strings.FieldsFunc(cell, func(r rune) bool {
		return r == ',' || r == ' '
	})
	vec := make([]float32, len(fields))
	for i, s := range fields {
		x, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return lsh.Value{}, fmt.Errorf("invalid vector component %q: %w", s, err)
		}
		vec[i] = float32(x)
	}
	if normalize {
		lsh.NormalizeInPlace(vec)
	}
	return lsh.VectorValue(vec), nil
}
