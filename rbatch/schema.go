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

// Package rbatch implements the columnar RecordBatch data model
// that flows through the shuffle writer: a fixed enumeration of
// supported Arrow types, per-row gather by index, and uncompressed
// size estimation for memory accounting.
package rbatch

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// UnsupportedTypeError is returned whenever a column's data type
// falls outside the fixed enumeration this package supports.
type UnsupportedTypeError struct {
	Type arrow.DataType
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported column type %s", e.Type)
}

// Supported reports whether typ is one of the scalar types this
// package knows how to gather, encode, and estimate the size of.
func Supported(typ arrow.DataType) bool {
	switch typ.ID() {
	case arrow.BOOL,
		arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64,
		arrow.DATE32, arrow.DATE64,
		arrow.STRING, arrow.LARGE_STRING,
		arrow.DECIMAL128:
		return true
	case arrow.TIME32:
		t := typ.(*arrow.Time32Type)
		return t.Unit == arrow.Second || t.Unit == arrow.Millisecond
	case arrow.TIME64:
		t := typ.(*arrow.Time64Type)
		return t.Unit == arrow.Microsecond || t.Unit == arrow.Nanosecond
	default:
		return false
	}
}

// ValidateSchema checks that every field of schema is one of the
// supported scalar types, failing eagerly the way the spec requires
// unsupported-type errors to surface at construction of the active
// path rather than partway through ingest.
func ValidateSchema(schema *arrow.Schema) error {
	for _, f := range schema.Fields() {
		if !Supported(f.Type) {
			return &UnsupportedTypeError{Type: f.Type}
		}
	}
	return nil
}
