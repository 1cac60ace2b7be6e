// Copyright (C) 2024 Nativexec Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package rbatch

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// AppendRow appends row i of src onto builder, appending a null
// if the source value is invalid at that row. It is the type-
// directed dispatch the spec calls for: one case per supported
// scalar type, failing rather than panicking on anything else.
func AppendRow(builder array.Builder, src arrow.Array, i int) error {
	if src.IsNull(i) {
		builder.AppendNull()
		return nil
	}
	switch b := builder.(type) {
	case *array.BooleanBuilder:
		b.Append(src.(*array.Boolean).Value(i))
	case *array.Int8Builder:
		b.Append(src.(*array.Int8).Value(i))
	case *array.Int16Builder:
		b.Append(src.(*array.Int16).Value(i))
	case *array.Int32Builder:
		b.Append(src.(*array.Int32).Value(i))
	case *array.Int64Builder:
		b.Append(src.(*array.Int64).Value(i))
	case *array.Uint8Builder:
		b.Append(src.(*array.Uint8).Value(i))
	case *array.Uint16Builder:
		b.Append(src.(*array.Uint16).Value(i))
	case *array.Uint32Builder:
		b.Append(src.(*array.Uint32).Value(i))
	case *array.Uint64Builder:
		b.Append(src.(*array.Uint64).Value(i))
	case *array.Float32Builder:
		b.Append(src.(*array.Float32).Value(i))
	case *array.Float64Builder:
		b.Append(src.(*array.Float64).Value(i))
	case *array.Date32Builder:
		b.Append(src.(*array.Date32).Value(i))
	case *array.Date64Builder:
		b.Append(src.(*array.Date64).Value(i))
	case *array.Time32Builder:
		b.Append(src.(*array.Time32).Value(i))
	case *array.Time64Builder:
		b.Append(src.(*array.Time64).Value(i))
	case *array.StringBuilder:
		b.Append(src.(*array.String).Value(i))
	case *array.LargeStringBuilder:
		b.Append(src.(*array.LargeString).Value(i))
	case *array.Decimal128Builder:
		b.Append(src.(*array.Decimal128).Value(i))
	default:
		return &UnsupportedTypeError{Type: src.DataType()}
	}
	return nil
}

// Take builds a new record containing the rows of rec named by
// indices, in the order given, gathering each column with
// AppendRow. It is the columnar equivalent of Arrow's `take`
// kernel, implemented directly (rather than through the compute
// package) so that unsupported types fail with UnsupportedTypeError
// instead of a generic kernel-not-found error.
func Take(mem memory.Allocator, rec arrow.Record, indices []uint32) (arrow.Record, error) {
	schema := rec.Schema()
	cols := make([]arrow.Array, rec.NumCols())
	for c := 0; c < int(rec.NumCols()); c++ {
		field := schema.Field(c)
		builder := array.NewBuilder(mem, field.Type)
		builder.Reserve(len(indices))
		src := rec.Column(c)
		for _, idx := range indices {
			if err := AppendRow(builder, src, int(idx)); err != nil {
				builder.Release()
				return nil, fmt.Errorf("gathering column %q: %w", field.Name, err)
			}
		}
		cols[c] = builder.NewArray()
		builder.Release()
	}
	out := array.NewRecord(schema, cols, int64(len(indices)))
	for _, c := range cols {
		c.Release()
	}
	return out, nil
}
