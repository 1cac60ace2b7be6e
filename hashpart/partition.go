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

package hashpart

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Expr evaluates a partitioning expression against a batch,
// producing a column of results the same length as the batch.
// Expression compilation is out of scope for this repository (see
// spec.md's Non-goals); Expr is the narrow seam the writer needs to
// accept whatever expression representation the surrounding query
// engine compiles down to.
type Expr func(mem memory.Allocator, rec arrow.Record) (arrow.Array, error)

// Column returns an Expr that evaluates to the named column
// unchanged.
func Column(name string) Expr {
	return func(_ memory.Allocator, rec arrow.Record) (arrow.Array, error) {
		idx := rec.Schema().FieldIndices(name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("hashpart: no such column %q", name)
		}
		col := rec.Column(idx[0])
		col.Retain()
		return col, nil
	}
}

// ConstantInt32 returns an Expr that evaluates to a constant int32
// value broadcast across every row, used for degenerate
// partitioning schemes that route every row to a single bucket.
func ConstantInt32(v int32) Expr {
	return func(mem memory.Allocator, rec arrow.Record) (arrow.Array, error) {
		b := array.NewInt32Builder(mem)
		defer b.Release()
		b.Reserve(int(rec.NumRows()))
		for i := int64(0); i < rec.NumRows(); i++ {
			b.Append(v)
		}
		return b.NewArray(), nil
	}
}

// Scheme is the narrow interface the shuffle writer needs from a
// partitioning scheme: how many output partitions it has. Only
// *HashPartitioning satisfies the writer's requirements; any other
// implementation is rejected at construction with
// UnsupportedPartitioningError (see the shuffle package).
type Scheme interface {
	PartitionCount() int
}

// HashPartitioning is the only partitioning scheme the core shuffle
// writer supports: route each row to pmod(hash(exprs...), Count).
type HashPartitioning struct {
	Exprs []Expr
	Count int
}

// NewHashPartitioning validates and constructs a HashPartitioning.
func NewHashPartitioning(exprs []Expr, count int) (*HashPartitioning, error) {
	if count < 1 {
		return nil, fmt.Errorf("hashpart: partition count must be >= 1, got %d", count)
	}
	if len(exprs) == 0 {
		return nil, fmt.Errorf("hashpart: at least one partitioning expression is required")
	}
	return &HashPartitioning{Exprs: exprs, Count: count}, nil
}

// PartitionCount implements Scheme.
func (h *HashPartitioning) PartitionCount() int { return h.Count }

// Buckets evaluates every expression against rec and returns, for
// each output bucket b in [0, Count), the row indices of rec that
// belong to b, preserving input order within each bucket.
func (h *HashPartitioning) Buckets(mem memory.Allocator, rec arrow.Record) ([][]uint32, error) {
	n := int(rec.NumRows())
	cols := make([]arrow.Array, len(h.Exprs))
	for i, e := range h.Exprs {
		col, err := e(mem, rec)
		if err != nil {
			for _, c := range cols[:i] {
				if c != nil {
					c.Release()
				}
			}
			return nil, fmt.Errorf("evaluating partition expression %d: %w", i, err)
		}
		cols[i] = col
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	hashes, err := createHashes(cols, n)
	if err != nil {
		return nil, err
	}
	buckets := make([][]uint32, h.Count)
	for r, hsh := range hashes {
		b := Pmod(hsh, h.Count)
		buckets[b] = append(buckets[b], uint32(r))
	}
	return buckets, nil
}
