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

// Package aggregate adapts the count-min sketch to a partial-aggregation
// contract: one buffer per partition, folded row by row, merged pairwise in
// any order, and evaluated to the sketch's serialized bytes.
package aggregate

import (
	"errors"
	"fmt"

	"github.com/dataglean/sketches-go/countmin"
)

var (
	// ErrNotFoldable signals an eps, confidence or seed expression that does
	// not reduce to a constant before execution starts.
	ErrNotFoldable = errors.New("the eps, confidence or seed provided must be a literal or foldable")
	// ErrNullParameter signals a NULL eps, confidence or seed.
	ErrNullParameter = errors.New("the eps, confidence or seed provided should not be null")
	// ErrInvalidEps signals an eps outside (0, +inf).
	ErrInvalidEps = errors.New("invalid eps")
	// ErrInvalidConfidence signals a confidence outside (0, 1).
	ErrInvalidConfidence = errors.New("invalid confidence")
)

// CountMinSketchAgg computes a count-min sketch over a column of values.
// The aggregate's result is always the serialized sketch, never a decoded
// count; readers deserialize and query it on demand.
type CountMinSketchAgg struct {
	child      Expression
	eps        float64
	confidence float64
	seed       int64
	update     func(*countmin.CountMinSketch, any) error
}

// NewCountMinSketchAgg validates the parameter expressions and builds the
// aggregate. Validation runs once, before any row is processed, in a fixed
// order: foldability, then nullness, then the eps range, then the confidence
// range; the first violated rule is the one reported.
func NewCountMinSketchAgg(child, epsExpr, confidenceExpr, seedExpr Expression) (*CountMinSketchAgg, error) {
	eps, confidence, seed, err := checkParameters(epsExpr, confidenceExpr, seedExpr)
	if err != nil {
		return nil, err
	}
	update, err := updaterFor(child.DataType())
	if err != nil {
		return nil, err
	}
	return &CountMinSketchAgg{
		child:      child,
		eps:        eps,
		confidence: confidence,
		seed:       seed,
		update:     update,
	}, nil
}

func checkParameters(epsExpr, confidenceExpr, seedExpr Expression) (float64, float64, int64, error) {
	if !epsExpr.Foldable() || !confidenceExpr.Foldable() || !seedExpr.Foldable() {
		return 0, 0, 0, ErrNotFoldable
	}

	epsValue, err := epsExpr.Eval(nil)
	if err != nil {
		return 0, 0, 0, err
	}
	confidenceValue, err := confidenceExpr.Eval(nil)
	if err != nil {
		return 0, 0, 0, err
	}
	seedValue, err := seedExpr.Eval(nil)
	if err != nil {
		return 0, 0, 0, err
	}
	if epsValue == nil || confidenceValue == nil || seedValue == nil {
		return 0, 0, 0, ErrNullParameter
	}

	eps, ok := asFloat64(epsValue)
	if !ok {
		return 0, 0, 0, fmt.Errorf("eps must be numeric, got %T", epsValue)
	}
	confidence, ok := asFloat64(confidenceValue)
	if !ok {
		return 0, 0, 0, fmt.Errorf("confidence must be numeric, got %T", confidenceValue)
	}
	seed, ok := asInt64(seedValue)
	if !ok {
		return 0, 0, 0, fmt.Errorf("seed must be integral, got %T", seedValue)
	}

	if eps <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: eps must be positive, got %v", ErrInvalidEps, eps)
	}
	if confidence <= 0 || confidence >= 1 {
		return 0, 0, 0, fmt.Errorf("%w: confidence must be within (0.0, 1.0), got %v", ErrInvalidConfidence, confidence)
	}
	return eps, confidence, seed, nil
}

// updaterFor selects the hash path for the child's declared type once at
// construction. Integral values share the engine's canonical int64 path;
// string and binary values hash by raw byte content.
func updaterFor(t DataType) (func(*countmin.CountMinSketch, any) error, error) {
	switch t {
	case Int8Type:
		return func(buffer *countmin.CountMinSketch, v any) error {
			d, ok := v.(int8)
			if !ok {
				return typeMismatch(t, v)
			}
			buffer.UpdateInt64(int64(d))
			return nil
		}, nil
	case Int16Type:
		return func(buffer *countmin.CountMinSketch, v any) error {
			d, ok := v.(int16)
			if !ok {
				return typeMismatch(t, v)
			}
			buffer.UpdateInt64(int64(d))
			return nil
		}, nil
	case Int32Type:
		return func(buffer *countmin.CountMinSketch, v any) error {
			d, ok := v.(int32)
			if !ok {
				return typeMismatch(t, v)
			}
			buffer.UpdateInt64(int64(d))
			return nil
		}, nil
	case Int64Type:
		return func(buffer *countmin.CountMinSketch, v any) error {
			d, ok := v.(int64)
			if !ok {
				return typeMismatch(t, v)
			}
			buffer.UpdateInt64(d)
			return nil
		}, nil
	case StringType:
		return func(buffer *countmin.CountMinSketch, v any) error {
			d, ok := v.(string)
			if !ok {
				return typeMismatch(t, v)
			}
			buffer.UpdateString(d)
			return nil
		}, nil
	case BinaryType:
		return func(buffer *countmin.CountMinSketch, v any) error {
			d, ok := v.([]byte)
			if !ok {
				return typeMismatch(t, v)
			}
			buffer.UpdateSlice(d)
			return nil
		}, nil
	}
	return nil, fmt.Errorf("count-min sketch aggregate does not support %v input values", t)
}

func typeMismatch(t DataType, v any) error {
	return fmt.Errorf("expected %v input value, got %T", t, v)
}

// NewBuffer returns a fresh empty sketch sized from the validated
// (eps, confidence, seed) parameters.
func (a *CountMinSketchAgg) NewBuffer() (*countmin.CountMinSketch, error) {
	return countmin.NewCountMinSketchFromAccuracy(a.eps, a.confidence, a.seed)
}

// Update folds one row's child value into the buffer. NULL values are not
// counted.
func (a *CountMinSketchAgg) Update(buffer *countmin.CountMinSketch, row Row) error {
	v, err := a.child.Eval(row)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return a.update(buffer, v)
}

// Merge folds other into buffer. Buffers from any partitioning of the input
// may be merged in any pairing order.
func (a *CountMinSketchAgg) Merge(buffer, other *countmin.CountMinSketch) error {
	return buffer.Merge(other)
}

// Eval returns the buffer's serialized bytes, the externally visible result
// of this aggregate. An all-null partition still yields a valid empty
// sketch, so the result is never nil.
func (a *CountMinSketchAgg) Eval(buffer *countmin.CountMinSketch) []byte {
	return buffer.ToSlice()
}

// DeserializeBuffer reconstructs a partial buffer from its serialized form
// for further merging.
func (a *CountMinSketchAgg) DeserializeBuffer(bytes []byte) (*countmin.CountMinSketch, error) {
	return countmin.NewCountMinSketchFromSlice(bytes)
}

// Nullable reports whether the aggregate can evaluate to NULL. It cannot:
// an empty sketch is a well-formed result.
func (a *CountMinSketchAgg) Nullable() bool {
	return false
}

func asFloat64(v any) (float64, bool) {
	switch d := v.(type) {
	case float64:
		return d, true
	case float32:
		return float64(d), true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch d := v.(type) {
	case int64:
		return d, true
	case int32:
		return int64(d), true
	case int16:
		return int64(d), true
	case int8:
		return int64(d), true
	case int:
		return int64(d), true
	}
	return 0, false
}
