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

import "github.com/apache/arrow-go/v18/arrow"

// ByteSize estimates the uncompressed, in-memory footprint of rec
// by summing the byte length of every buffer backing every column,
// the same quantity the original shuffle writer calls
// batch_byte_size and uses to request memory from the arbiter
// before a batch is partitioned.
//
// Every type in this package's supported enumeration (see
// schema.go) is a flat scalar type with no nested child arrays, so
// a column's footprint is exactly the sum of its own buffers
// (validity bitmap, values, and offsets for variable-width types).
func ByteSize(rec arrow.Record) int64 {
	var total int64
	for c := 0; c < int(rec.NumCols()); c++ {
		for _, buf := range rec.Column(c).Data().Buffers() {
			if buf != nil {
				total += int64(buf.Len())
			}
		}
	}
	return total
}
