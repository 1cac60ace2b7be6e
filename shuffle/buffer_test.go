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
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/nativexec/shuffle/compr"
)

func TestPartitionBufferFlushesAtBatchSize(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{{Name: "a", Type: arrow.PrimitiveTypes.Int32}}, nil)
	rb := array.NewRecordBuilder(mem, schema)
	defer rb.Release()
	ib := rb.Field(0).(*array.Int32Builder)
	for i := 0; i < 4; i++ {
		ib.Append(int32(i))
	}
	rec := rb.NewRecord()
	defer rec.Release()

	buf := newPartitionBuffer(mem, schema, 2)
	delta, err := buf.pushRows(rec, []uint32{0, 1})
	if err != nil {
		t.Fatalf("pushRows: %v", err)
	}
	if delta == 0 {
		t.Fatal("expected a flush after reaching batch_size")
	}
	if buf.activeRows != 0 {
		t.Fatalf("expected active builder reset after flush, got %d rows", buf.activeRows)
	}
	if len(buf.frozen) == 0 {
		t.Fatal("expected frozen bytes after flush")
	}
}

func TestPartitionBufferFinishIsIdempotent(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{{Name: "a", Type: arrow.PrimitiveTypes.Int32}}, nil)
	rb := array.NewRecordBuilder(mem, schema)
	ib := rb.Field(0).(*array.Int32Builder)
	ib.Append(1)
	rec := rb.NewRecord()
	rb.Release()
	defer rec.Release()

	buf := newPartitionBuffer(mem, schema, 100)
	if _, err := buf.pushRows(rec, []uint32{0}); err != nil {
		t.Fatalf("pushRows: %v", err)
	}
	if _, err := buf.finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	before := len(buf.frozen)
	if _, err := buf.finish(); err != nil {
		t.Fatalf("second finish: %v", err)
	}
	if len(buf.frozen) != before {
		t.Fatalf("expected finish to be idempotent, frozen grew from %d to %d", before, len(buf.frozen))
	}
}

func TestPartitionBufferDecimalPassthrough(t *testing.T) {
	mem := memory.NewGoAllocator()
	dt := &arrow.Decimal128Type{Precision: 18, Scale: 4}
	schema := arrow.NewSchema([]arrow.Field{{Name: "d", Type: dt, Nullable: true}}, nil)
	rb := array.NewRecordBuilder(mem, schema)
	db := rb.Field(0).(*array.Decimal128Builder)
	db.Append(decimal128.FromI64(98765))
	db.AppendNull()
	rec := rb.NewRecord()
	rb.Release()
	defer rec.Release()

	buf := newPartitionBuffer(mem, schema, 100)
	if _, err := buf.pushRows(rec, []uint32{0, 1}); err != nil {
		t.Fatalf("pushRows: %v", err)
	}
	if _, err := buf.finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	frame := buf.takeFrozen()
	if len(frame) < frameHeaderSize {
		t.Fatalf("frame too short: %d", len(frame))
	}

	payload := frame[frameHeaderSize:]
	decoded, err := compr.DecodeZstd(payload, nil)
	if err != nil {
		t.Fatalf("DecodeZstd: %v", err)
	}

	reader, err := ipc.NewReader(bytes.NewReader(decoded), ipc.WithAllocator(mem))
	if err != nil {
		t.Fatalf("ipc.NewReader: %v", err)
	}
	defer reader.Release()
	if !reader.Next() {
		t.Fatalf("expected a record: %v", reader.Err())
	}
	got := reader.Record()
	gotType := got.Schema().Field(0).Type.(*arrow.Decimal128Type)
	if gotType.Precision != 18 || gotType.Scale != 4 {
		t.Fatalf("precision/scale not preserved: %+v", gotType)
	}
	col := got.Column(0).(*array.Decimal128)
	if col.IsNull(0) || col.Value(0) != decimal128.FromI64(98765) {
		t.Fatalf("unexpected value at row 0: %v", col.Value(0))
	}
	if !col.IsNull(1) {
		t.Fatal("expected row 1 to be null")
	}
}
