package countmin

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// SuggestNumBuckets returns the number of counters per row needed to keep the
// overestimate within relativeError times the total count:
// ceil(2 / relativeError).
func SuggestNumBuckets(relativeError float64) (int32, error) {
	if relativeError <= 0 || math.IsNaN(relativeError) {
		return 0, fmt.Errorf("%w: relative error must be greater than 0.0, got %v", ErrInvalidParameter, relativeError)
	}
	buckets := math.Ceil(2.0 / relativeError)
	if buckets > float64(math.MaxInt32) {
		return math.MaxInt32, nil
	}
	return int32(buckets), nil
}

// SuggestNumHashes returns the number of hash rows needed to reach the given
// confidence that an estimate stays within the error bound:
// ceil(ln(1 / (1 - confidence))).
func SuggestNumHashes(confidence float64) (int16, error) {
	if confidence <= 0 || confidence >= 1.0 || math.IsNaN(confidence) {
		return 0, fmt.Errorf("%w: confidence must be between 0.0 and 1.0 (exclusive), got %v", ErrInvalidParameter, confidence)
	}
	hashes := math.Ceil(math.Log(1.0 / (1.0 - confidence)))
	if hashes > float64(math.MaxInt16) {
		return math.MaxInt16, nil
	}
	return int16(hashes), nil
}
