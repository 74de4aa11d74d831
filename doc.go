/*
Package lsh provides locality-sensitive hashing, banded signature indexes and
canopy clustering for large collections of vectors and strings.

The package hashes every record into short signatures whose codes collide
with a probability that grows with the similarity of the raw values, indexes
slices of those signatures for exact-match lookups, groups records into cheap
overlapping canopies, and finally runs an exact agglomerative clustering that
only ever compares records sharing a canopy.

# Overview

A typical pipeline runs four stages:

 1. Encode: a Codec turns each feature value into a Signature.
 2. Index: a SignatureIndex partitions signatures into bands (flat) or
    prefixes (nested) and inverts them.
 3. Canopies: a CanopyBuilder covers the keyspace with overlapping groups of
    records that share many bands.
 4. Cluster: a SparseDistanceBuilder computes distances inside canopies and a
    CanopyClusterer merges clusters greedily under the canopy constraint.

# Quick Start

	package main

	import (
	    "context"
	    "fmt"
	    "log"

	    "github.com/wizenheimer/lsh"
	)

	func main() {
	    ctx := context.Background()

	    store, _ := lsh.NewMemoryFeatureStore([]lsh.FeatureSpec{
	        {Name: "vector", Kind: lsh.VectorKind},
	    }, lsh.FullPrecision)
	    store.Add("a", map[string]lsh.Value{"vector": lsh.VectorValue([]float32{0, 0})})
	    store.Add("b", map[string]lsh.Value{"vector": lsh.VectorValue([]float32{0, 1})})

	    codec, err := lsh.NewRandomProjectionCodec(lsh.DefaultRandomProjectionConfig(2))
	    if err != nil {
	        log.Fatal(err)
	    }
	    idx, err := lsh.EncodeAll(ctx, store, map[string]lsh.Codec{"vector": codec}, lsh.EncodeOptions{})
	    if err != nil {
	        log.Fatal(err)
	    }
	    if err := idx.BuildFlat(1); err != nil {
	        log.Fatal(err)
	    }

	    builder, _ := lsh.NewCanopyBuilder(lsh.DefaultCanopyConfig())
	    canopies, _ := builder.Build(ctx, idx, "vector")

	    dist, _ := lsh.NewDistance(lsh.Euclidean)
	    d, _, _ := lsh.NewSparseDistanceBuilder(lsh.SparseDistanceConfig{}).
	        Build(ctx, canopies, store, "vector", dist)

	    clusterer, _ := lsh.NewCanopyClusterer(lsh.ClustererConfig{
	        Threshold: 1.1,
	        Linkage:   lsh.AverageLinkage,
	    })
	    clustering, _ := clusterer.Cluster(ctx, d, canopies)
	    for _, c := range clustering.Clusters() {
	        fmt.Println(store.Keyspace().Keys(c))
	    }
	}

# Codecs

RandomProjectionCodec (method "rp_acos") encodes vectors. Each code packs the
signs of k random hyperplane projections into one word, so the fraction of
agreeing bits estimates 1 - theta/pi.

MinHashCodec (method "minhash") encodes strings through their character
n-grams, white-space tokens or UAX#29 words. The agreement rate of two
signatures estimates the Jaccard similarity of the underlying sets.

# Candidate Search

A built flat index answers scored candidate queries through a fluent builder:

	cands, err := idx.NewSearch("name").
	    WithSignature(sig).
	    WithMinScore(0.5).
	    WithAutocut(1).
	    WithK(10).
	    Execute()

The score of a candidate is the fraction of the query's non-empty bands it
shares. Matcher runs the same query for every record of one index against
another.

# Keys

Records are addressed by dense uint32 ids handed out by a Keyspace, and sets
of records are roaring bitmaps throughout: band postings, canopies, clusters
and canopy membership.

# Errors

Errors wrap one of three category sentinels so callers can tell a bad setup
from a call made out of order or a broken invariant:

	if errors.Is(err, lsh.ErrConfiguration) { ... }
	if errors.Is(err, lsh.ErrState) { ... }
	if errors.Is(err, lsh.ErrLookup) { ... }

# Serialization

SignatureIndex and CanopyCollection implement io.WriterTo and io.ReaderFrom:

	file, _ := os.Create("index.bin")
	defer file.Close()
	idx.WriteTo(file)

	loaded := lsh.NewSignatureIndex()
	loaded.ReadFrom(file)

# Thread Safety

Codecs are immutable and safe for concurrent use. SignatureIndex and
MemoryFeatureStore guard themselves with read-write mutexes. Canopy
construction and clustering are sequential; each call owns its working state.
*/
package lsh
