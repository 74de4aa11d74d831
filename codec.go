package lsh

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// CodecMethod names an LSH family.
type CodecMethod string

const (
	// RandomProjectionMethod is the random-hyperplane method of Charikar.
	// Pr[h(x) = h(y)] = 1 - theta(x, y) / pi
	RandomProjectionMethod CodecMethod = "rp_acos"

	// MinHashMethod is character n-gram min-hash over strings.
	MinHashMethod CodecMethod = "minhash"
)

// Codec maps a raw feature value to a fixed-length signature.
//
// Codecs are immutable once constructed and safe for concurrent use.
type Codec interface {
	// Encode returns the signature of v. The signature has NumFunctions codes,
	// or is nil when v produced nothing to hash.
	Encode(v Value) (Signature, error)

	// Similarity estimates the similarity of the values behind two signatures,
	// in [0, 1].
	Similarity(a, b Signature) (float64, error)

	// NumFunctions returns the signature length.
	NumFunctions() int

	// NumBits returns the significant bits of each code.
	NumBits() int

	// Kind returns the kind of value the codec accepts.
	Kind() FeatureKind

	// Method returns the LSH family of the codec.
	Method() CodecMethod
}

// EncodeOptions tunes EncodeAll.
type EncodeOptions struct {
	// Workers bounds the number of records encoded concurrently.
	// Zero selects GOMAXPROCS.
	Workers int

	// Logger receives progress records. Nil disables logging.
	Logger *Logger
}

// EncodeAll encodes every feature of every record in source with the codec
// registered for that feature and returns a SignatureIndex holding the
// signatures. No band index is built yet.
//
// Every feature name of the source must have a codec; a codec for a feature
// the source doesn't declare is a configuration error as well. Records missing
// a feature value are stored without a signature for that feature.
//
// Encoding is independent per record and runs on opts.Workers goroutines.
// ctx is checked before each record.
func EncodeAll(ctx context.Context, source FeatureSource, codecs map[string]Codec, opts EncodeOptions) (*SignatureIndex, error) {
	names := source.Names()
	if len(codecs) != len(names) {
		return nil, fmt.Errorf("%w: %d codecs for %d features", ErrConfiguration, len(codecs), len(names))
	}
	for _, name := range names {
		if _, ok := codecs[name]; !ok {
			return nil, fmt.Errorf("%w: no codec for feature %q", ErrUnknownFeature, name)
		}
	}

	logger := resolveLogger(opts.Logger, false).WithComponent("encoder")
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	idx := NewSignatureIndex(names...)
	ids := source.IDs()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	it := ids.Iterator()
	for it.HasNext() {
		id := it.Next()
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			for _, name := range names {
				var sig Signature
				if v, ok := source.Value(id, name); ok {
					var err error
					sig, err = codecs[name].Encode(v)
					if err != nil {
						return fmt.Errorf("encode record %d feature %q: %w", id, name, err)
					}
				}
				if err := idx.Add(name, id, sig); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	logger.LogEncode(ctx, int(ids.GetCardinality()), len(names), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// newRand returns the deterministic generator every seeded stage draws from.
// Stages never share a generator; each one is given its own seed.
func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), pcgStream))
}

// pcgStream fixes the PCG increment so a seed alone determines the sequence.
const pcgStream = 0x9e3779b97f4a7c15
