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

// Package hashpart implements the hash partitioner: evaluating a
// set of partitioning expressions against a batch, folding the
// results into a per-row MurmurHash3-style hash seeded at 42, and
// mapping each row to an output bucket with a positive modulo.
package hashpart

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/twmb/murmur3"
)

// Seed is the fixed hash seed the shuffle writer uses for every
// run, matching the JVM engine's shuffle hash partitioning so rows
// land in the same bucket on both sides of the shuffle boundary.
const Seed uint32 = 42

// createHashes folds each column in turn into hashes, starting
// every row at Seed. This mirrors the create_hashes contract:
// MurmurHash3-style, per-row, where each column's value replaces
// the running hash in column order. A null value leaves the
// running hash for that row unchanged, the same as the JVM engine's
// column hash skipping nulls.
func createHashes(cols []arrow.Array, n int) ([]int32, error) {
	hashes := make([]int32, n)
	for i := range hashes {
		hashes[i] = int32(Seed)
	}
	var buf [16]byte
	for _, col := range cols {
		for r := 0; r < n; r++ {
			if col.IsNull(r) {
				continue
			}
			b, err := valueBytes(col, r, buf[:0])
			if err != nil {
				return nil, err
			}
			hashes[r] = int32(murmur3.SeedSum32(uint32(hashes[r]), b))
		}
	}
	return hashes, nil
}

// valueBytes renders the value of col at row r into its canonical
// little-endian (or raw, for variable-width types) byte
// representation for hashing, reusing buf's backing array where
// possible to avoid per-row allocation on the hot path.
func valueBytes(col arrow.Array, r int, buf []byte) ([]byte, error) {
	switch a := col.(type) {
	case *array.Boolean:
		if a.Value(r) {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case *array.Int8:
		return append(buf, byte(a.Value(r))), nil
	case *array.Uint8:
		return append(buf, a.Value(r)), nil
	case *array.Int16:
		return binary.LittleEndian.AppendUint16(buf, uint16(a.Value(r))), nil
	case *array.Uint16:
		return binary.LittleEndian.AppendUint16(buf, a.Value(r)), nil
	case *array.Int32:
		return binary.LittleEndian.AppendUint32(buf, uint32(a.Value(r))), nil
	case *array.Uint32:
		return binary.LittleEndian.AppendUint32(buf, a.Value(r)), nil
	case *array.Int64:
		return binary.LittleEndian.AppendUint64(buf, uint64(a.Value(r))), nil
	case *array.Uint64:
		return binary.LittleEndian.AppendUint64(buf, a.Value(r)), nil
	case *array.Float32:
		return binary.LittleEndian.AppendUint32(buf, math.Float32bits(a.Value(r))), nil
	case *array.Float64:
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(a.Value(r))), nil
	case *array.Date32:
		return binary.LittleEndian.AppendUint32(buf, uint32(a.Value(r))), nil
	case *array.Date64:
		return binary.LittleEndian.AppendUint64(buf, uint64(a.Value(r))), nil
	case *array.Time32:
		return binary.LittleEndian.AppendUint32(buf, uint32(a.Value(r))), nil
	case *array.Time64:
		return binary.LittleEndian.AppendUint64(buf, uint64(a.Value(r))), nil
	case *array.String:
		return append(buf, a.Value(r)...), nil
	case *array.LargeString:
		return append(buf, a.Value(r)...), nil
	case *array.Decimal128:
		v := a.Value(r)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.LowBits()))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.HighBits()))
		return buf, nil
	default:
		return nil, fmt.Errorf("hashpart: unsupported column type %s", col.DataType())
	}
}

// Pmod computes the positive modulo of h by n over signed 32-bit
// arithmetic, matching the spec's pmod(h,n) = ((h mod n) + n) mod n.
func Pmod(h int32, n int) int {
	m := int(h) % n
	if m < 0 {
		m += n
	}
	return m
}
