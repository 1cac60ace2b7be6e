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

package shuffle

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func intOnlySchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{{Name: "a", Type: arrow.PrimitiveTypes.Int32}}, nil)
}

func bigRecord(t *testing.T, mem memory.Allocator, start, n int) arrow.Record {
	t.Helper()
	rb := array.NewRecordBuilder(mem, intOnlySchema())
	defer rb.Release()
	ib := rb.Field(0).(*array.Int32Builder)
	for i := 0; i < n; i++ {
		ib.Append(int32(start + i))
	}
	return rb.NewRecord()
}

// runS4 inserts 5 batches of 512 rows into a 3-way hash-partitioned
// run, optionally spilling after the batches named in spillAfter,
// and returns the allocator, the data_file path and the index
// offsets so the caller can decode each partition.
//
// batch_size is fixed at 1 so that every insert_batch call fully
// flushes every bucket's contribution before returning (either via
// the fast path, for buckets bigger than batch_size, or via an
// immediate push_rows flush otherwise). No partial active-builder
// state is ever left straddling two insert_batch calls, so which
// batches happen to fall before or after a forced spill cannot
// change the multiset of rows recorded for any partition.
func runS4(t *testing.T, spillAfter map[int]bool) (memory.Allocator, string, []int64) {
	t.Helper()
	mem := memory.NewGoAllocator()
	rp, dataPath, indexPath := newTestRepartitioner(t, intOnlySchema(), 3, 1, 1<<30)

	for i := 0; i < 5; i++ {
		rec := bigRecord(t, mem, i*512, 512)
		if err := rp.InsertBatch(context.Background(), rec); err != nil {
			rec.Release()
			t.Fatalf("InsertBatch %d: %v", i, err)
		}
		rec.Release()
		if spillAfter[i] {
			if _, err := rp.Spill(context.Background()); err != nil {
				t.Fatalf("Spill after batch %d: %v", i, err)
			}
		}
	}
	if err := rp.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return mem, dataPath, readIndex(t, indexPath)
}

func sortedInts(vs []int32) []int32 {
	out := append([]int32(nil), vs...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestS4SpillTransparency(t *testing.T) {
	memNoSpill, dataNoSpill, offsetsNoSpill := runS4(t, nil)
	memSpill, dataSpill, offsetsSpill := runS4(t, map[int]bool{1: true, 3: true})

	if len(offsetsNoSpill) != len(offsetsSpill) {
		t.Fatalf("index length differs: %d vs %d", len(offsetsNoSpill), len(offsetsSpill))
	}
	for p := 0; p < len(offsetsNoSpill)-1; p++ {
		got := readPartitionInt32Column(t, memSpill, dataSpill, "a", offsetsSpill[p], offsetsSpill[p+1])
		want := readPartitionInt32Column(t, memNoSpill, dataNoSpill, "a", offsetsNoSpill[p], offsetsNoSpill[p+1])
		if !reflect.DeepEqual(sortedInts(got), sortedInts(want)) {
			t.Fatalf("partition %d rows differ between spill and no-spill runs: got %d rows, want %d rows", p, len(got), len(want))
		}
	}
}

func TestSpillReturnsZeroWhenBuffersEmpty(t *testing.T) {
	rp, _, _ := newTestRepartitioner(t, intOnlySchema(), 2, 128, 1<<30)
	freed, err := rp.Spill(context.Background())
	if err != nil {
		t.Fatalf("Spill: %v", err)
	}
	if freed != 0 {
		t.Fatalf("expected 0 freed bytes on empty buffers, got %d", freed)
	}
}

func TestSpillAfterFinalizeReturnsZero(t *testing.T) {
	rp, _, _ := newTestRepartitioner(t, intOnlySchema(), 2, 128, 1<<30)
	if err := rp.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	freed, err := rp.Spill(context.Background())
	if err != nil {
		t.Fatalf("Spill after finalize: %v", err)
	}
	if freed != 0 {
		t.Fatalf("expected 0 freed bytes after finalize, got %d", freed)
	}
}
