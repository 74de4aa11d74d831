package lsh

import (
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// FeatureKind is the type of raw value a feature carries.
type FeatureKind string

const (
	// VectorKind features hold fixed-dimension numeric vectors.
	VectorKind FeatureKind = "vec"

	// StringKind features hold text.
	StringKind FeatureKind = "str"
)

// ParseFeatureKind validates a feature kind name.
func ParseFeatureKind(s string) (FeatureKind, error) {
	switch FeatureKind(s) {
	case VectorKind, StringKind:
		return FeatureKind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFeatureKind, s)
	}
}

// Value is one raw feature value: either a vector or a string, selected by Kind.
type Value struct {
	Kind   FeatureKind
	Vector []float32
	Text   string
}

// VectorValue wraps a vector as a feature value.
func VectorValue(v []float32) Value {
	return Value{Kind: VectorKind, Vector: v}
}

// StringValue wraps a string as a feature value.
func StringValue(s string) Value {
	return Value{Kind: StringKind, Text: s}
}

// FeatureSource is the keyed feature collection the pipeline consumes.
//
// Implementations enumerate the configured feature names, the set of known
// record ids, and return the raw value of one feature for one record.
type FeatureSource interface {
	// Names returns the configured feature names.
	Names() []string

	// IDs returns the known record ids. Callers must not modify the result.
	IDs() *roaring.Bitmap

	// Value returns the value of feature name for record id.
	Value(id uint32, name string) (Value, bool)
}

// FeatureSpec declares one feature of a MemoryFeatureStore.
type FeatureSpec struct {
	Name string      `yaml:"name"`
	Kind FeatureKind `yaml:"kind"`
}

// Compile-time check to ensure MemoryFeatureStore implements FeatureSource
var _ FeatureSource = (*MemoryFeatureStore)(nil)

// MemoryFeatureStore keeps feature values for a bounded keyspace in memory.
//
// Vector features are held through a Quantizer so large collections can be
// kept at half precision. The dimension of a vector feature is fixed by the
// first vector added to it.
//
// Thread-safety: safe for concurrent use through a read-write mutex.
type MemoryFeatureStore struct {
	mu        sync.RWMutex
	keyspace  *Keyspace
	specs     map[string]FeatureSpec
	names     []string
	quantizer Quantizer
	dims      map[string]int
	vectors   map[string]map[uint32]any
	texts     map[string]map[uint32]string
	ids       *roaring.Bitmap
}

// NewMemoryFeatureStore creates a store for the given features.
//
// Returns ErrUnknownFeatureKind for a spec with an unknown kind and
// ErrUnknownPrecision for an unknown precision.
func NewMemoryFeatureStore(specs []FeatureSpec, precision QuantizerType) (*MemoryFeatureStore, error) {
	q, err := NewQuantizer(precision)
	if err != nil {
		return nil, err
	}
	fs := &MemoryFeatureStore{
		keyspace:  NewKeyspace(),
		specs:     make(map[string]FeatureSpec, len(specs)),
		quantizer: q,
		dims:      make(map[string]int),
		vectors:   make(map[string]map[uint32]any),
		texts:     make(map[string]map[uint32]string),
		ids:       roaring.New(),
	}
	for _, spec := range specs {
		if _, err := ParseFeatureKind(string(spec.Kind)); err != nil {
			return nil, fmt.Errorf("feature %q: %w", spec.Name, err)
		}
		if _, dup := fs.specs[spec.Name]; dup {
			return nil, fmt.Errorf("%w: feature %q declared twice", ErrConfiguration, spec.Name)
		}
		fs.specs[spec.Name] = spec
		fs.names = append(fs.names, spec.Name)
		switch spec.Kind {
		case VectorKind:
			fs.vectors[spec.Name] = make(map[uint32]any)
		case StringKind:
			fs.texts[spec.Name] = make(map[uint32]string)
		}
	}
	sort.Strings(fs.names)
	return fs, nil
}

// Add stores the feature values of one record and returns its id.
//
// Every name in values must be a configured feature of the matching kind.
// Features absent from values are simply missing for this record.
func (fs *MemoryFeatureStore) Add(key string, values map[string]Value) (uint32, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for name, v := range values {
		spec, ok := fs.specs[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
		}
		if v.Kind != spec.Kind {
			return 0, fmt.Errorf("feature %q: %w: expected %s, got %s", name, ErrValueKind, spec.Kind, v.Kind)
		}
		if v.Kind == VectorKind {
			if dim, ok := fs.dims[name]; ok && dim != len(v.Vector) {
				return 0, fmt.Errorf("feature %q: %w", name, &DimensionMismatchError{Expected: dim, Actual: len(v.Vector)})
			}
		}
	}

	if _, exists := fs.keyspace.ID(key); exists {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}
	id := fs.keyspace.Add(key)
	fs.ids.Add(id)

	for name, v := range values {
		switch v.Kind {
		case VectorKind:
			fs.dims[name] = len(v.Vector)
			fs.vectors[name][id] = fs.quantizer.Quantize(v.Vector)
		case StringKind:
			fs.texts[name][id] = v.Text
		}
	}
	return id, nil
}

// Value returns the value of feature name for record id.
func (fs *MemoryFeatureStore) Value(id uint32, name string) (Value, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	spec, ok := fs.specs[name]
	if !ok {
		return Value{}, false
	}
	switch spec.Kind {
	case VectorKind:
		stored, ok := fs.vectors[name][id]
		if !ok {
			return Value{}, false
		}
		vec, err := fs.quantizer.Dequantize(stored)
		if err != nil {
			return Value{}, false
		}
		return VectorValue(vec), true
	default:
		text, ok := fs.texts[name][id]
		if !ok {
			return Value{}, false
		}
		return StringValue(text), true
	}
}

// Names returns the configured feature names in sorted order.
func (fs *MemoryFeatureStore) Names() []string {
	return append([]string(nil), fs.names...)
}

// Kind returns the kind of a configured feature.
func (fs *MemoryFeatureStore) Kind(name string) (FeatureKind, bool) {
	spec, ok := fs.specs[name]
	return spec.Kind, ok
}

// Dimension returns the fixed dimension of a vector feature, or 0 if no
// vector has been added yet.
func (fs *MemoryFeatureStore) Dimension(name string) int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.dims[name]
}

// IDs returns the ids of every stored record.
func (fs *MemoryFeatureStore) IDs() *roaring.Bitmap {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.ids.Clone()
}

// Keyspace returns the keyspace mapping record keys to ids.
func (fs *MemoryFeatureStore) Keyspace() *Keyspace {
	return fs.keyspace
}

// Len returns the number of stored records.
func (fs *MemoryFeatureStore) Len() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return int(fs.ids.GetCardinality())
}

// Precision returns the storage precision of vector features.
func (fs *MemoryFeatureStore) Precision() QuantizerType {
	return fs.quantizer.Type()
}
