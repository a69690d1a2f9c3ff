// Package countmin provides a count-min sketch, a probabilistic data structure
// for estimating item frequencies in sub-linear space.
//
// Estimates are one-sided: the sketch never underestimates the true frequency
// of an item, and with probability at least `confidence` the overestimate is
// bounded by `relativeError` times the total weight of all updates. Sketches
// built from the same (relativeError, confidence, seed) triple are structurally
// identical and can be merged, which makes the sketch suitable as a partial
// aggregate in partitioned computations.
package countmin

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/cespare/xxhash/v2"
	"github.com/twmb/murmur3"
)

var (
	// ErrInvalidParameter signals a construction-time parameter outside its
	// documented range.
	ErrInvalidParameter = errors.New("invalid sketch parameter")
	// ErrIncompatibleMerge signals an attempted merge of sketches with
	// different dimensions or hash seeds.
	ErrIncompatibleMerge = errors.New("incompatible sketches")
	// ErrCorruptData signals a serialized image that cannot be decoded.
	ErrCorruptData = errors.New("corrupt sketch data")
)

// CountMinSketch estimates item frequencies using numHashes independent
// hash rows of numBuckets counters each.
type CountMinSketch struct {
	numHashes   int16 // number of hash rows
	numBuckets  int32 // counters per row
	seed        int64
	hashSeeds   []int64  // one per row, derived deterministically from seed
	sketchSlice []uint64 // row-major numHashes x numBuckets counter matrix
	totalCount  uint64
}

// NewCountMinSketch returns an all-zero sketch with explicit dimensions.
// The per-row hash seeds are drawn from a generator seeded once with seed,
// so two sketches built from the same (numHashes, numBuckets, seed) are
// structurally identical and mergeable.
func NewCountMinSketch(numHashes int16, numBuckets int32, seed int64) (*CountMinSketch, error) {
	if numHashes < 1 {
		return nil, fmt.Errorf("%w: numHashes must be at least 1, got %d", ErrInvalidParameter, numHashes)
	}
	if numBuckets < 1 {
		return nil, fmt.Errorf("%w: numBuckets must be at least 1, got %d", ErrInvalidParameter, numBuckets)
	}
	if int64(numBuckets)*int64(numHashes) >= 1<<30 {
		return nil, fmt.Errorf("%w: these parameters generate a sketch that exceeds 2^30 elements", ErrInvalidParameter)
	}

	rng := rand.New(rand.NewSource(seed))
	hashSeeds := make([]int64, numHashes)
	for i := range hashSeeds {
		hashSeeds[i] = rng.Int63()
	}

	return &CountMinSketch{
		numHashes:   numHashes,
		numBuckets:  numBuckets,
		seed:        seed,
		hashSeeds:   hashSeeds,
		sketchSlice: make([]uint64, int(numHashes)*int(numBuckets)),
	}, nil
}

// NewCountMinSketchFromAccuracy returns an all-zero sketch sized for the given
// accuracy target: numBuckets = ceil(2 / relativeError) and
// numHashes = ceil(ln(1 / (1 - confidence))).
func NewCountMinSketchFromAccuracy(relativeError, confidence float64, seed int64) (*CountMinSketch, error) {
	numBuckets, err := SuggestNumBuckets(relativeError)
	if err != nil {
		return nil, err
	}
	numHashes, err := SuggestNumHashes(confidence)
	if err != nil {
		return nil, err
	}
	return NewCountMinSketch(numHashes, numBuckets, seed)
}

// NumHashes returns the number of hash rows.
func (c *CountMinSketch) NumHashes() int16 {
	return c.numHashes
}

// NumBuckets returns the number of counters per row.
func (c *CountMinSketch) NumBuckets() int32 {
	return c.numBuckets
}

// Seed returns the seed the per-row hash seeds were derived from.
func (c *CountMinSketch) Seed() int64 {
	return c.seed
}

// TotalCount returns the total weight of all updates folded in so far.
func (c *CountMinSketch) TotalCount() uint64 {
	return c.totalCount
}

// IsEmpty returns true if no items have been added.
func (c *CountMinSketch) IsEmpty() bool {
	return c.totalCount == 0
}

// RelativeError returns the error bound implied by the sketch width: with
// probability Confidence, estimates exceed the truth by at most
// RelativeError * TotalCount.
func (c *CountMinSketch) RelativeError() float64 {
	return 2.0 / float64(c.numBuckets)
}

// Confidence returns the probability that an estimate stays within the
// RelativeError bound, as implied by the sketch depth.
func (c *CountMinSketch) Confidence() float64 {
	return 1.0 - math.Exp(-float64(c.numHashes))
}

// sliceLocations computes the counter locations for a byte datum, one per
// row, using murmur3 seeded with that row's seed.
func (c *CountMinSketch) sliceLocations(datum []byte) []int {
	locations := make([]int, c.numHashes)
	for i, s := range c.hashSeeds {
		bucket := murmur3.SeedSum64(uint64(s), datum) % uint64(c.numBuckets)
		locations[i] = i*int(c.numBuckets) + int(bucket)
	}
	return locations
}

// int64Locations computes the counter locations for an integral datum. The
// value is encoded as 8 little-endian bytes and run through xxhash64 seeded
// with each row's seed, so every integral width shares one canonical path.
func (c *CountMinSketch) int64Locations(datum int64) []int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(datum))
	locations := make([]int, c.numHashes)
	for i, s := range c.hashSeeds {
		h := xxhash.NewWithSeed(uint64(s))
		h.Write(buf[:])
		bucket := h.Sum64() % uint64(c.numBuckets)
		locations[i] = i*int(c.numBuckets) + int(bucket)
	}
	return locations
}

func (c *CountMinSketch) internalUpdate(locations []int, weight int64) error {
	if weight < 0 {
		return fmt.Errorf("%w: weight may not be negative, got %d", ErrInvalidParameter, weight)
	}
	for _, l := range locations {
		c.sketchSlice[l] += uint64(weight)
	}
	c.totalCount += uint64(weight)
	return nil
}

func (c *CountMinSketch) internalEstimate(locations []int) uint64 {
	estimate := uint64(math.MaxUint64)
	for _, l := range locations {
		estimate = Min(estimate, c.sketchSlice[l])
	}
	return estimate
}

// UpdateSlice adds one occurrence of a byte datum.
func (c *CountMinSketch) UpdateSlice(datum []byte) {
	c.internalUpdate(c.sliceLocations(datum), 1)
}

// UpdateSliceWeighted adds weight occurrences of a byte datum.
// The weight may not be negative.
func (c *CountMinSketch) UpdateSliceWeighted(datum []byte, weight int64) error {
	return c.internalUpdate(c.sliceLocations(datum), weight)
}

// UpdateString adds one occurrence of a string datum, hashed by its bytes.
func (c *CountMinSketch) UpdateString(datum string) {
	c.UpdateSlice([]byte(datum))
}

// UpdateStringWeighted adds weight occurrences of a string datum.
func (c *CountMinSketch) UpdateStringWeighted(datum string, weight int64) error {
	return c.UpdateSliceWeighted([]byte(datum), weight)
}

// UpdateInt64 adds one occurrence of an int64 datum.
func (c *CountMinSketch) UpdateInt64(datum int64) {
	c.internalUpdate(c.int64Locations(datum), 1)
}

// UpdateInt64Weighted adds weight occurrences of an int64 datum.
func (c *CountMinSketch) UpdateInt64Weighted(datum int64, weight int64) error {
	return c.internalUpdate(c.int64Locations(datum), weight)
}

// UpdateUint64 adds one occurrence of a uint64 datum.
func (c *CountMinSketch) UpdateUint64(datum uint64) {
	c.UpdateInt64(int64(datum))
}

// UpdateUint64Weighted adds weight occurrences of a uint64 datum.
func (c *CountMinSketch) UpdateUint64Weighted(datum uint64, weight int64) error {
	return c.UpdateInt64Weighted(int64(datum), weight)
}

// GetEstimateSlice returns the estimated frequency of a byte datum: the
// minimum counter across its rows. Never underestimates.
func (c *CountMinSketch) GetEstimateSlice(datum []byte) uint64 {
	return c.internalEstimate(c.sliceLocations(datum))
}

// GetEstimateString returns the estimated frequency of a string datum.
func (c *CountMinSketch) GetEstimateString(datum string) uint64 {
	return c.GetEstimateSlice([]byte(datum))
}

// GetEstimateInt64 returns the estimated frequency of an int64 datum.
func (c *CountMinSketch) GetEstimateInt64(datum int64) uint64 {
	return c.internalEstimate(c.int64Locations(datum))
}

// GetEstimateUint64 returns the estimated frequency of a uint64 datum.
func (c *CountMinSketch) GetEstimateUint64(datum uint64) uint64 {
	return c.GetEstimateInt64(int64(datum))
}

// GetUpperBoundSlice returns the estimate plus the width-implied error slack.
func (c *CountMinSketch) GetUpperBoundSlice(datum []byte) uint64 {
	return c.GetEstimateSlice(datum) + uint64(c.RelativeError()*float64(c.totalCount))
}

// GetUpperBoundString returns the estimate plus the width-implied error slack.
func (c *CountMinSketch) GetUpperBoundString(datum string) uint64 {
	return c.GetUpperBoundSlice([]byte(datum))
}

// GetUpperBoundInt64 returns the estimate plus the width-implied error slack.
func (c *CountMinSketch) GetUpperBoundInt64(datum int64) uint64 {
	return c.GetEstimateInt64(datum) + uint64(c.RelativeError()*float64(c.totalCount))
}

// IsCompatible returns true if other has the same dimensions and hash seeds,
// i.e. the two sketches can be merged.
func (c *CountMinSketch) IsCompatible(other *CountMinSketch) bool {
	if c.numHashes != other.numHashes || c.numBuckets != other.numBuckets || c.seed != other.seed {
		return false
	}
	for i := range c.hashSeeds {
		if c.hashSeeds[i] != other.hashSeeds[i] {
			return false
		}
	}
	return true
}

// Merge folds other into c by element-wise counter addition. Merging is
// associative and commutative: any merge order over any partitioning of the
// input yields the same counter matrix as a single-pass update. Merging a
// sketch with itself or with an incompatible sketch fails with
// ErrIncompatibleMerge.
func (c *CountMinSketch) Merge(other *CountMinSketch) error {
	if c == other {
		return fmt.Errorf("%w: cannot merge a sketch with itself", ErrIncompatibleMerge)
	}
	if !c.IsCompatible(other) {
		return fmt.Errorf("%w: dimensions or hash seeds differ", ErrIncompatibleMerge)
	}
	for i := range c.sketchSlice {
		c.sketchSlice[i] += other.sketchSlice[i]
	}
	c.totalCount += other.totalCount
	return nil
}

// Equals reports structural equality over dimensions, hash seeds and the
// full counter matrix.
func (c *CountMinSketch) Equals(other *CountMinSketch) bool {
	if !c.IsCompatible(other) {
		return false
	}
	for i := range c.sketchSlice {
		if c.sketchSlice[i] != other.sketchSlice[i] {
			return false
		}
	}
	return true
}

// ToSlice serializes the sketch to its fixed little-endian binary layout:
// the preamble, the per-row hash seeds, then the counter matrix row by row.
// Structurally identical sketches with identical contents always produce
// byte-identical output.
func (c *CountMinSketch) ToSlice() []byte {
	numSeeds := int(c.numHashes)
	bytes := make([]byte, preambleBytes+numSeeds*8+len(c.sketchSlice)*8)

	insertSerVer(bytes)
	insertFamilyID(bytes)
	insertNumHashes(bytes, c.numHashes)
	insertNumBuckets(bytes, c.numBuckets)
	insertTotalCount(bytes, c.totalCount)
	insertSeed(bytes, c.seed)

	offset := hashSeedsOffset
	for _, s := range c.hashSeeds {
		binary.LittleEndian.PutUint64(bytes[offset:], uint64(s))
		offset += 8
	}
	for _, v := range c.sketchSlice {
		binary.LittleEndian.PutUint64(bytes[offset:], v)
		offset += 8
	}
	return bytes
}

// NewCountMinSketchFromSlice deserializes a sketch previously produced by
// ToSlice. Fails with ErrCorruptData if the version or family is
// unrecognized, the dimensions are invalid, or the declared matrix size does
// not match the remaining byte length.
func NewCountMinSketchFromSlice(bytes []byte) (*CountMinSketch, error) {
	if len(bytes) < preambleBytes {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrCorruptData, preambleBytes, len(bytes))
	}
	if sv := extractSerVer(bytes); sv != serVer {
		return nil, fmt.Errorf("%w: unsupported serialization version %d", ErrCorruptData, sv)
	}
	if f := extractFamilyID(bytes); f != familyID {
		return nil, fmt.Errorf("%w: invalid family %d", ErrCorruptData, f)
	}
	numHashes := extractNumHashes(bytes)
	numBuckets := extractNumBuckets(bytes)
	if numHashes < 1 || numBuckets < 1 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrCorruptData, numHashes, numBuckets)
	}
	numSeeds := int(numHashes)
	numCounters := numSeeds * int(numBuckets)
	expected := preambleBytes + numSeeds*8 + numCounters*8
	if len(bytes) != expected {
		return nil, fmt.Errorf("%w: size mismatch, got %d bytes, expected %d", ErrCorruptData, len(bytes), expected)
	}

	c := &CountMinSketch{
		numHashes:   numHashes,
		numBuckets:  numBuckets,
		seed:        extractSeed(bytes),
		totalCount:  extractTotalCount(bytes),
		hashSeeds:   make([]int64, numSeeds),
		sketchSlice: make([]uint64, numCounters),
	}
	offset := hashSeedsOffset
	for i := range c.hashSeeds {
		c.hashSeeds[i] = int64(binary.LittleEndian.Uint64(bytes[offset:]))
		offset += 8
	}
	for i := range c.sketchSlice {
		c.sketchSlice[i] = binary.LittleEndian.Uint64(bytes[offset:])
		offset += 8
	}
	return c, nil
}
