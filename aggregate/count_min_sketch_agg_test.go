/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package aggregate

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataglean/sketches-go/countmin"
)

func newInt64Agg(t *testing.T) *CountMinSketchAgg {
	t.Helper()
	agg, err := NewCountMinSketchAgg(
		BoundReference{Ordinal: 0, Type: Int64Type},
		Literal{Value: 0.01, Type: Float64Type},
		Literal{Value: 0.95, Type: Float64Type},
		Literal{Value: int64(11), Type: Int64Type},
	)
	require.NoError(t, err)
	return agg
}

func TestAggLifecycle(t *testing.T) {
	agg := newInt64Agg(t)

	rng := rand.New(rand.NewSource(3))
	values := make([]int64, 100)
	trueCounts := make(map[int64]uint64)
	for i := range values {
		values[i] = rng.Int63n(10)
		trueCounts[values[i]]++
	}

	// One buffer per partition, split at index 50.
	left, err := agg.NewBuffer()
	require.NoError(t, err)
	right, err := agg.NewBuffer()
	require.NoError(t, err)
	for _, v := range values[:50] {
		require.NoError(t, agg.Update(left, Row{v}))
	}
	for _, v := range values[50:] {
		require.NoError(t, agg.Update(right, Row{v}))
	}
	require.NoError(t, agg.Merge(left, right))

	// The merged buffer matches a single-pass fold over all rows.
	whole, err := agg.NewBuffer()
	require.NoError(t, err)
	for _, v := range values {
		require.NoError(t, agg.Update(whole, Row{v}))
	}
	assert.Equal(t, agg.Eval(whole), agg.Eval(left))

	// Downstream readers deserialize and query on demand.
	sketch, err := agg.DeserializeBuffer(agg.Eval(left))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), sketch.TotalCount())
	for v, count := range trueCounts {
		assert.GreaterOrEqual(t, sketch.GetEstimateInt64(v), count)
	}
}

func TestAggMergeRoundTrippedBuffers(t *testing.T) {
	agg := newInt64Agg(t)

	left, err := agg.NewBuffer()
	require.NoError(t, err)
	right, err := agg.NewBuffer()
	require.NoError(t, err)
	require.NoError(t, agg.Update(left, Row{int64(1)}))
	require.NoError(t, agg.Update(right, Row{int64(1)}))

	// Shuffled partials arrive as bytes and merge after deserialization.
	revived, err := agg.DeserializeBuffer(agg.Eval(right))
	require.NoError(t, err)
	require.NoError(t, agg.Merge(left, revived))

	sketch, err := agg.DeserializeBuffer(agg.Eval(left))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sketch.GetEstimateInt64(1))
}

func TestAggIncompatibleMerge(t *testing.T) {
	agg := newInt64Agg(t)
	other, err := NewCountMinSketchAgg(
		BoundReference{Ordinal: 0, Type: Int64Type},
		Literal{Value: 0.01, Type: Float64Type},
		Literal{Value: 0.95, Type: Float64Type},
		Literal{Value: int64(99), Type: Int64Type},
	)
	require.NoError(t, err)

	a, err := agg.NewBuffer()
	require.NoError(t, err)
	b, err := other.NewBuffer()
	require.NoError(t, err)
	assert.ErrorIs(t, agg.Merge(a, b), countmin.ErrIncompatibleMerge)
}

func TestAggNullHandling(t *testing.T) {
	agg := newInt64Agg(t)

	// An untouched buffer evaluates to the bytes of a fresh empty sketch.
	buffer, err := agg.NewBuffer()
	require.NoError(t, err)
	fresh, err := countmin.NewCountMinSketchFromAccuracy(0.01, 0.95, 11)
	require.NoError(t, err)
	empty := agg.Eval(buffer)
	assert.Equal(t, fresh.ToSlice(), empty)
	assert.NotNil(t, empty)
	assert.False(t, agg.Nullable())

	// A NULL input is not counted.
	require.NoError(t, agg.Update(buffer, Row{nil}))
	assert.Equal(t, empty, agg.Eval(buffer))

	// The value 0 is counted.
	require.NoError(t, agg.Update(buffer, Row{int64(0)}))
	assert.NotEqual(t, empty, agg.Eval(buffer))
}

func TestAggParameterValidation(t *testing.T) {
	child := BoundReference{Ordinal: 0, Type: Int64Type}
	eps := Literal{Value: 0.01, Type: Float64Type}
	confidence := Literal{Value: 0.95, Type: Float64Type}
	seed := Literal{Value: int64(11), Type: Int64Type}

	t.Run("invalid eps", func(t *testing.T) {
		for _, v := range []float64{0.0, -1000.0} {
			_, err := NewCountMinSketchAgg(child, Literal{Value: v, Type: Float64Type}, confidence, seed)
			assert.ErrorIs(t, err, ErrInvalidEps)
			assert.ErrorContains(t, err, strconv.FormatFloat(v, 'g', -1, 64))
		}
	})

	t.Run("invalid confidence", func(t *testing.T) {
		for _, v := range []float64{0.0, 1.0, -2.0, 2.0} {
			_, err := NewCountMinSketchAgg(child, eps, Literal{Value: v, Type: Float64Type}, seed)
			assert.ErrorIs(t, err, ErrInvalidConfidence)
			assert.ErrorContains(t, err, strconv.FormatFloat(v, 'g', -1, 64))
		}
	})

	t.Run("null parameters", func(t *testing.T) {
		nullDouble := Literal{Value: nil, Type: Float64Type}
		nullLong := Literal{Value: nil, Type: Int64Type}

		_, err := NewCountMinSketchAgg(child, nullDouble, confidence, seed)
		assert.ErrorIs(t, err, ErrNullParameter)
		_, err = NewCountMinSketchAgg(child, eps, nullDouble, seed)
		assert.ErrorIs(t, err, ErrNullParameter)
		_, err = NewCountMinSketchAgg(child, eps, confidence, nullLong)
		assert.ErrorIs(t, err, ErrNullParameter)
	})

	t.Run("non-foldable parameters", func(t *testing.T) {
		unfoldable := BoundReference{Ordinal: 1, Type: Float64Type}

		_, err := NewCountMinSketchAgg(child, unfoldable, confidence, seed)
		assert.ErrorIs(t, err, ErrNotFoldable)
		_, err = NewCountMinSketchAgg(child, eps, unfoldable, seed)
		assert.ErrorIs(t, err, ErrNotFoldable)
		_, err = NewCountMinSketchAgg(child, eps, confidence, BoundReference{Ordinal: 1, Type: Int64Type})
		assert.ErrorIs(t, err, ErrNotFoldable)
	})

	t.Run("first violated rule wins", func(t *testing.T) {
		// Foldability is checked before nullness.
		unfoldable := BoundReference{Ordinal: 1, Type: Float64Type}
		_, err := NewCountMinSketchAgg(child, unfoldable, Literal{Value: nil, Type: Float64Type}, seed)
		assert.ErrorIs(t, err, ErrNotFoldable)

		// The eps range is checked before the confidence range.
		_, err = NewCountMinSketchAgg(child,
			Literal{Value: -1.0, Type: Float64Type},
			Literal{Value: 2.0, Type: Float64Type},
			seed)
		assert.ErrorIs(t, err, ErrInvalidEps)
	})
}

func TestAggUnsupportedChildType(t *testing.T) {
	_, err := NewCountMinSketchAgg(
		BoundReference{Ordinal: 0, Type: Float64Type},
		Literal{Value: 0.01, Type: Float64Type},
		Literal{Value: 0.95, Type: Float64Type},
		Literal{Value: int64(11), Type: Int64Type},
	)
	assert.Error(t, err)
}

func TestAggCrossTypeConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	values := make([]int64, 200)
	trueCounts := make(map[int64]uint64)
	for i := range values {
		values[i] = rng.Int63n(20)
		trueCounts[values[i]]++
	}

	eps := Literal{Value: 0.001, Type: Float64Type}
	confidence := Literal{Value: 0.99, Type: Float64Type}
	seed := Literal{Value: int64(42), Type: Int64Type}

	longAgg, err := NewCountMinSketchAgg(BoundReference{Ordinal: 0, Type: Int64Type}, eps, confidence, seed)
	require.NoError(t, err)
	stringAgg, err := NewCountMinSketchAgg(BoundReference{Ordinal: 0, Type: StringType}, eps, confidence, seed)
	require.NoError(t, err)

	longBuffer, err := longAgg.NewBuffer()
	require.NoError(t, err)
	stringBuffer, err := stringAgg.NewBuffer()
	require.NoError(t, err)
	for _, v := range values {
		require.NoError(t, longAgg.Update(longBuffer, Row{v}))
		require.NoError(t, stringAgg.Update(stringBuffer, Row{strconv.FormatInt(v, 10)}))
	}

	// At this width both sketches should be collision-free, so each agrees
	// with a direct count for every distinct value.
	longSketch, err := longAgg.DeserializeBuffer(longAgg.Eval(longBuffer))
	require.NoError(t, err)
	stringSketch, err := stringAgg.DeserializeBuffer(stringAgg.Eval(stringBuffer))
	require.NoError(t, err)
	for v, count := range trueCounts {
		assert.Equal(t, count, longSketch.GetEstimateInt64(v))
		assert.Equal(t, count, stringSketch.GetEstimateString(strconv.FormatInt(v, 10)))
	}
}

func TestAggNarrowIntegerWidths(t *testing.T) {
	eps := Literal{Value: 0.01, Type: Float64Type}
	confidence := Literal{Value: 0.95, Type: Float64Type}
	seed := Literal{Value: int64(11), Type: Int64Type}

	for _, tc := range []struct {
		childType DataType
		value     any
	}{
		{Int8Type, int8(-7)},
		{Int16Type, int16(-7)},
		{Int32Type, int32(-7)},
		{Int64Type, int64(-7)},
	} {
		agg, err := NewCountMinSketchAgg(BoundReference{Ordinal: 0, Type: tc.childType}, eps, confidence, seed)
		require.NoError(t, err)
		buffer, err := agg.NewBuffer()
		require.NoError(t, err)
		require.NoError(t, agg.Update(buffer, Row{tc.value}))

		sketch, err := agg.DeserializeBuffer(agg.Eval(buffer))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), sketch.GetEstimateInt64(-7))
	}
}

func TestAggBinaryChild(t *testing.T) {
	agg, err := NewCountMinSketchAgg(
		BoundReference{Ordinal: 0, Type: BinaryType},
		Literal{Value: 0.01, Type: Float64Type},
		Literal{Value: 0.95, Type: Float64Type},
		Literal{Value: int64(11), Type: Int64Type},
	)
	require.NoError(t, err)

	buffer, err := agg.NewBuffer()
	require.NoError(t, err)
	require.NoError(t, agg.Update(buffer, Row{[]byte("abc")}))
	require.NoError(t, agg.Update(buffer, Row{[]byte("abc")}))

	sketch, err := agg.DeserializeBuffer(agg.Eval(buffer))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sketch.GetEstimateSlice([]byte("abc")))
	assert.Equal(t, uint64(2), sketch.GetEstimateString("abc"))
}
