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

import "fmt"

// DataType identifies the declared value type of an expression. The set is
// closed: the aggregate dispatches on it once at construction, never per row.
type DataType int

const (
	Int8Type DataType = iota
	Int16Type
	Int32Type
	Int64Type
	Float64Type
	StringType
	BinaryType
)

func (t DataType) String() string {
	switch t {
	case Int8Type:
		return "int8"
	case Int16Type:
		return "int16"
	case Int32Type:
		return "int32"
	case Int64Type:
		return "int64"
	case Float64Type:
		return "float64"
	case StringType:
		return "string"
	case BinaryType:
		return "binary"
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// Row is one input record. A nil element is a NULL value.
type Row []any

// Expression produces values of a fixed declared type from input rows. It is
// the boundary to the surrounding expression framework: the aggregate only
// needs the declared type, foldability, and per-row evaluation.
type Expression interface {
	DataType() DataType
	// Foldable reports whether the expression reduces to a constant before
	// any row is processed.
	Foldable() bool
	Eval(row Row) (any, error)
}

// Literal is a constant expression. A nil Value is a NULL literal.
type Literal struct {
	Value any
	Type  DataType
}

func (l Literal) DataType() DataType { return l.Type }

func (l Literal) Foldable() bool { return true }

func (l Literal) Eval(Row) (any, error) { return l.Value, nil }

// BoundReference reads the value at a fixed ordinal of each input row.
type BoundReference struct {
	Ordinal int
	Type    DataType
}

func (b BoundReference) DataType() DataType { return b.Type }

func (b BoundReference) Foldable() bool { return false }

func (b BoundReference) Eval(row Row) (any, error) {
	if b.Ordinal < 0 || b.Ordinal >= len(row) {
		return nil, fmt.Errorf("ordinal %d out of range for row of %d columns", b.Ordinal, len(row))
	}
	return row[b.Ordinal], nil
}
