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
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/nativexec/shuffle/rbatch"
)

// partitionBuffer is the in-memory accumulator for a single output
// partition: a builder for rows not yet old enough to flush, and an
// append-only byte buffer of already-framed, compressed batches.
// Every byte in frozen belongs to a complete frame.
type partitionBuffer struct {
	mem       memory.Allocator
	schema    *arrow.Schema
	batchSize int

	active     *array.RecordBuilder
	activeRows int
	frozen     []byte
}

func newPartitionBuffer(mem memory.Allocator, schema *arrow.Schema, batchSize int) *partitionBuffer {
	return &partitionBuffer{mem: mem, schema: schema, batchSize: batchSize}
}

// pushRows appends the rows of rec at the given indices into the
// active builder, creating it lazily. If the active builder reaches
// batchSize rows it is flushed to frozen. Returns the number of
// bytes added to frozen, if a flush happened.
func (b *partitionBuffer) pushRows(rec arrow.Record, indices []uint32) (int64, error) {
	if len(indices) == 0 {
		return 0, nil
	}
	if b.active == nil {
		b.active = array.NewRecordBuilder(b.mem, b.schema)
	}
	for _, idx := range indices {
		for c := 0; c < int(rec.NumCols()); c++ {
			if err := rbatch.AppendRow(b.active.Field(c), rec.Column(c), int(idx)); err != nil {
				return 0, err
			}
		}
	}
	b.activeRows += len(indices)
	if b.activeRows < b.batchSize {
		return 0, nil
	}
	return b.flushActive()
}

// flushActive materializes the active builder into a RecordBatch and
// freezes it, resetting the active builder.
func (b *partitionBuffer) flushActive() (int64, error) {
	if b.active == nil || b.activeRows == 0 {
		return 0, nil
	}
	rec := b.active.NewRecord()
	defer rec.Release()
	b.activeRows = 0
	return b.freeze(rec)
}

// freeze encodes rec via the batch encoder and appends the frame to
// frozen.
func (b *partitionBuffer) freeze(rec arrow.Record) (int64, error) {
	frame, err := encodeFrame(b.mem, rec)
	if err != nil {
		return 0, err
	}
	b.frozen = append(b.frozen, frame...)
	return int64(len(frame)), nil
}

// fastPathFreeze encodes rec directly into frozen, bypassing the
// active builder. Used when a single source batch contributes more
// rows to this partition than batchSize.
func (b *partitionBuffer) fastPathFreeze(rec arrow.Record) (int64, error) {
	return b.freeze(rec)
}

// finish flushes any remaining rows in the active builder. Idempotent.
func (b *partitionBuffer) finish() (int64, error) {
	return b.flushActive()
}

// takeFrozen returns the accumulated frozen bytes and resets the
// buffer to empty, for use by spill and finalize.
func (b *partitionBuffer) takeFrozen() []byte {
	out := b.frozen
	b.frozen = nil
	return out
}

func (b *partitionBuffer) release() {
	if b.active != nil {
		b.active.Release()
		b.active = nil
	}
}
