package lsh

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/RoaringBitmap/roaring"
)

const (
	signatureIndexMagic = "LSHI"
	canopyMagic         = "CNPY"
	formatVersion       = uint32(1)
)

// countingWriter tracks the bytes written through binary.Write.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) write(data any) error {
	if err := binary.Write(cw.w, binary.LittleEndian, data); err != nil {
		return err
	}
	cw.n += int64(binary.Size(data))
	return nil
}

func (cw *countingWriter) writeBytes(b []byte) error {
	if err := cw.write(uint32(len(b))); err != nil {
		return err
	}
	n, err := cw.w.Write(b)
	cw.n += int64(n)
	return err
}

func (cw *countingWriter) writeBitmap(bm *roaring.Bitmap) error {
	b, err := bm.ToBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize bitmap: %w", err)
	}
	return cw.writeBytes(b)
}

// countingReader tracks the bytes read through binary.Read.
type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) read(data any) error {
	if err := binary.Read(cr.r, binary.LittleEndian, data); err != nil {
		return err
	}
	cr.n += int64(binary.Size(data))
	return nil
}

func (cr *countingReader) readBytes() ([]byte, error) {
	var size uint32
	if err := cr.read(&size); err != nil {
		return nil, err
	}
	b := make([]byte, size)
	n, err := io.ReadFull(cr.r, b)
	cr.n += int64(n)
	return b, err
}

func (cr *countingReader) readBitmap() (*roaring.Bitmap, error) {
	b, err := cr.readBytes()
	if err != nil {
		return nil, err
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("failed to deserialize bitmap: %w", err)
	}
	return bm, nil
}

func (cr *countingReader) header(magic string) error {
	got := make([]byte, len(magic))
	n, err := io.ReadFull(cr.r, got)
	cr.n += int64(n)
	if err != nil {
		return fmt.Errorf("failed to read magic number: %w", err)
	}
	if string(got) != magic {
		return fmt.Errorf("invalid magic number: expected '%s', got '%s'", magic, string(got))
	}
	var version uint32
	if err := cr.read(&version); err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}
	if version != formatVersion {
		return fmt.Errorf("unsupported version: %d", version)
	}
	return nil
}

func (cw *countingWriter) header(magic string) error {
	n, err := cw.w.Write([]byte(magic))
	cw.n += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write magic number: %w", err)
	}
	if err := cw.write(formatVersion); err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}
	return nil
}

// WriteTo serializes the SignatureIndex to an io.Writer.
//
// The serialization format is:
//  1. Magic number (4 bytes) "LSHI" and version (4 bytes)
//  2. Number of features (4 bytes), then for each feature in name order:
//     - name length (4 bytes) + name
//     - signature length (4 bytes)
//     - number of signatures (4 bytes), then id (4 bytes) + codes (8 bytes each)
//     - flat state (1 byte) + band width (4 bytes)
//     - nested state (1 byte) + number of slice sizes (4 bytes) + sizes (4 bytes each)
//  3. Id bitmap size (4 bytes) + roaring bitmap bytes
//
// Band structures are not stored; ReadFrom rebuilds the ones that were built.
//
// Thread-safety: Acquires read lock during serialization
func (idx *SignatureIndex) WriteTo(w io.Writer) (int64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	cw := &countingWriter{w: w}
	if err := cw.header(signatureIndexMagic); err != nil {
		return cw.n, err
	}
	if err := cw.write(uint32(len(idx.names))); err != nil {
		return cw.n, fmt.Errorf("failed to write feature count: %w", err)
	}

	for _, name := range idx.names {
		fi := idx.features[name]
		if err := cw.writeBytes([]byte(name)); err != nil {
			return cw.n, fmt.Errorf("failed to write feature name: %w", err)
		}
		if err := cw.write(uint32(fi.numFunctions)); err != nil {
			return cw.n, fmt.Errorf("feature %q: failed to write signature length: %w", name, err)
		}

		ids := make([]uint32, 0, len(fi.signatures))
		for id := range fi.signatures {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if err := cw.write(uint32(len(ids))); err != nil {
			return cw.n, fmt.Errorf("feature %q: failed to write signature count: %w", name, err)
		}
		for _, id := range ids {
			if err := cw.write(id); err != nil {
				return cw.n, fmt.Errorf("feature %q: failed to write id: %w", name, err)
			}
			if err := cw.write([]uint64(fi.signatures[id])); err != nil {
				return cw.n, fmt.Errorf("feature %q id %d: failed to write signature: %w", name, id, err)
			}
		}

		if err := cw.write(uint8(fi.flatState)); err != nil {
			return cw.n, fmt.Errorf("feature %q: failed to write flat state: %w", name, err)
		}
		if err := cw.write(uint32(fi.bandWidth)); err != nil {
			return cw.n, fmt.Errorf("feature %q: failed to write band width: %w", name, err)
		}
		if err := cw.write(uint8(fi.nestedState)); err != nil {
			return cw.n, fmt.Errorf("feature %q: failed to write nested state: %w", name, err)
		}
		sizes := make([]uint32, len(fi.sliceSizes))
		for i, s := range fi.sliceSizes {
			sizes[i] = uint32(s)
		}
		if err := cw.write(uint32(len(sizes))); err != nil {
			return cw.n, fmt.Errorf("feature %q: failed to write slice count: %w", name, err)
		}
		if err := cw.write(sizes); err != nil {
			return cw.n, fmt.Errorf("feature %q: failed to write slice sizes: %w", name, err)
		}
	}

	if err := cw.writeBitmap(idx.ids); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// ReadFrom replaces the contents of the index with a stream written by
// WriteTo and rebuilds the band structures that were built at write time.
//
// Thread-safety: Acquires write lock during deserialization
func (idx *SignatureIndex) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	if err := cr.header(signatureIndexMagic); err != nil {
		return cr.n, err
	}

	var numFeatures uint32
	if err := cr.read(&numFeatures); err != nil {
		return cr.n, fmt.Errorf("failed to read feature count: %w", err)
	}

	type builds struct {
		flat       bool
		bandWidth  int
		nested     bool
		sliceSizes []int
	}
	loaded := NewSignatureIndex()
	pending := make(map[string]builds, numFeatures)

	for f := uint32(0); f < numFeatures; f++ {
		nameBytes, err := cr.readBytes()
		if err != nil {
			return cr.n, fmt.Errorf("failed to read feature name: %w", err)
		}
		name := string(nameBytes)
		fi := &featureIndex{signatures: make(map[uint32]Signature)}
		loaded.features[name] = fi
		loaded.names = append(loaded.names, name)

		var numFunctions, count uint32
		if err := cr.read(&numFunctions); err != nil {
			return cr.n, fmt.Errorf("feature %q: failed to read signature length: %w", name, err)
		}
		if err := cr.read(&count); err != nil {
			return cr.n, fmt.Errorf("feature %q: failed to read signature count: %w", name, err)
		}
		fi.numFunctions = int(numFunctions)
		for i := uint32(0); i < count; i++ {
			var id uint32
			if err := cr.read(&id); err != nil {
				return cr.n, fmt.Errorf("feature %q: failed to read id: %w", name, err)
			}
			sig := make(Signature, numFunctions)
			if err := cr.read([]uint64(sig)); err != nil {
				return cr.n, fmt.Errorf("feature %q id %d: failed to read signature: %w", name, id, err)
			}
			fi.signatures[id] = sig
		}

		var flatState, nestedState uint8
		var bandWidth, numSizes uint32
		if err := cr.read(&flatState); err != nil {
			return cr.n, fmt.Errorf("feature %q: failed to read flat state: %w", name, err)
		}
		if err := cr.read(&bandWidth); err != nil {
			return cr.n, fmt.Errorf("feature %q: failed to read band width: %w", name, err)
		}
		if err := cr.read(&nestedState); err != nil {
			return cr.n, fmt.Errorf("feature %q: failed to read nested state: %w", name, err)
		}
		if err := cr.read(&numSizes); err != nil {
			return cr.n, fmt.Errorf("feature %q: failed to read slice count: %w", name, err)
		}
		sizes := make([]uint32, numSizes)
		if err := cr.read(sizes); err != nil {
			return cr.n, fmt.Errorf("feature %q: failed to read slice sizes: %w", name, err)
		}
		b := builds{
			flat:      IndexState(flatState) == Built,
			bandWidth: int(bandWidth),
			nested:    IndexState(nestedState) == Built,
		}
		for _, s := range sizes {
			b.sliceSizes = append(b.sliceSizes, int(s))
		}
		pending[name] = b
	}
	sort.Strings(loaded.names)

	ids, err := cr.readBitmap()
	if err != nil {
		return cr.n, err
	}
	loaded.ids = ids

	for name, b := range pending {
		if b.flat {
			if err := loaded.BuildFlat(b.bandWidth, name); err != nil {
				return cr.n, fmt.Errorf("rebuild flat index: %w", err)
			}
		}
		if b.nested {
			if err := loaded.BuildNested(b.sliceSizes, name); err != nil {
				return cr.n, fmt.Errorf("rebuild nested index: %w", err)
			}
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.features = loaded.features
	idx.names = loaded.names
	idx.ids = loaded.ids
	if idx.logger == nil {
		idx.logger = NoopLogger()
	}
	return cr.n, nil
}

// WriteTo serializes the collection: magic "CNPY", version, canopy count,
// then every canopy as a length-prefixed roaring bitmap.
func (cc *CanopyCollection) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := cw.header(canopyMagic); err != nil {
		return cw.n, err
	}
	if err := cw.write(uint32(len(cc.canopies))); err != nil {
		return cw.n, fmt.Errorf("failed to write canopy count: %w", err)
	}
	for i, c := range cc.canopies {
		if err := cw.writeBitmap(c); err != nil {
			return cw.n, fmt.Errorf("canopy %d: %w", i, err)
		}
	}
	return cw.n, nil
}

// ReadFrom replaces the collection with a stream written by WriteTo.
func (cc *CanopyCollection) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	if err := cr.header(canopyMagic); err != nil {
		return cr.n, err
	}
	var count uint32
	if err := cr.read(&count); err != nil {
		return cr.n, fmt.Errorf("failed to read canopy count: %w", err)
	}
	canopies := make([]*roaring.Bitmap, 0, count)
	for i := uint32(0); i < count; i++ {
		bm, err := cr.readBitmap()
		if err != nil {
			return cr.n, fmt.Errorf("canopy %d: %w", i, err)
		}
		canopies = append(canopies, bm)
	}
	cc.canopies = canopies
	return cr.n, nil
}
