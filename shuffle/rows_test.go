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
	"encoding/binary"
	"io"
	"os"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/nativexec/shuffle/compr"
)

// readIndex reads an index_file back into P+1 offsets.
func readIndex(t *testing.T, path string) []int64 {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading index file: %v", err)
	}
	if len(data)%8 != 0 {
		t.Fatalf("index file length %d is not a multiple of 8", len(data))
	}
	offsets := make([]int64, len(data)/8)
	for i := range offsets {
		offsets[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return offsets
}

// readPartitionRows decodes every frame in data_file[start:end] and
// returns the total row count across all frames, failing the test
// if any frame is malformed or the byte range isn't fully consumed
// by whole frames.
func readPartitionRows(t *testing.T, mem memory.Allocator, dataPath string, start, end int64) int64 {
	t.Helper()
	if end <= start {
		return 0
	}
	f, err := os.Open(dataPath)
	if err != nil {
		t.Fatalf("opening data file: %v", err)
	}
	defer f.Close()

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		t.Fatalf("seeking: %v", err)
	}
	remaining := end - start
	var rows int64
	for remaining > 0 {
		var header [frameHeaderSize]byte
		if _, err := io.ReadFull(f, header[:]); err != nil {
			t.Fatalf("reading frame header: %v", err)
		}
		remaining -= frameHeaderSize
		compressedLen := int64(binary.LittleEndian.Uint64(header[0:8]))
		uncompressedLen := int64(binary.LittleEndian.Uint64(header[8:16]))

		payload := make([]byte, compressedLen)
		if _, err := io.ReadFull(f, payload); err != nil {
			t.Fatalf("reading frame payload: %v", err)
		}
		remaining -= compressedLen

		decoded, err := compr.DecodeZstd(payload, nil)
		if err != nil {
			t.Fatalf("DecodeZstd: %v", err)
		}
		if int64(len(decoded)) != uncompressedLen {
			t.Fatalf("decoded length %d != uncompressed_len header %d", len(decoded), uncompressedLen)
		}

		reader, err := ipc.NewReader(bytes.NewReader(decoded), ipc.WithAllocator(mem))
		if err != nil {
			t.Fatalf("ipc.NewReader: %v", err)
		}
		for reader.Next() {
			rows += reader.Record().NumRows()
		}
		reader.Release()
	}
	if remaining != 0 {
		t.Fatalf("byte range not evenly consumed by whole frames, %d bytes left over", remaining)
	}
	return rows
}

// readPartitionInt32Column decodes every frame in data_file[start:end]
// and returns the concatenated values of the named int32 column
// across all decoded rows, in on-disk frame order.
func readPartitionInt32Column(t *testing.T, mem memory.Allocator, dataPath, column string, start, end int64) []int32 {
	t.Helper()
	var values []int32
	if end <= start {
		return values
	}
	f, err := os.Open(dataPath)
	if err != nil {
		t.Fatalf("opening data file: %v", err)
	}
	defer f.Close()

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		t.Fatalf("seeking: %v", err)
	}
	remaining := end - start
	for remaining > 0 {
		var header [frameHeaderSize]byte
		if _, err := io.ReadFull(f, header[:]); err != nil {
			t.Fatalf("reading frame header: %v", err)
		}
		remaining -= frameHeaderSize
		compressedLen := int64(binary.LittleEndian.Uint64(header[0:8]))

		payload := make([]byte, compressedLen)
		if _, err := io.ReadFull(f, payload); err != nil {
			t.Fatalf("reading frame payload: %v", err)
		}
		remaining -= compressedLen

		decoded, err := compr.DecodeZstd(payload, nil)
		if err != nil {
			t.Fatalf("DecodeZstd: %v", err)
		}

		reader, err := ipc.NewReader(bytes.NewReader(decoded), ipc.WithAllocator(mem))
		if err != nil {
			t.Fatalf("ipc.NewReader: %v", err)
		}
		for reader.Next() {
			rec := reader.Record()
			idx := rec.Schema().FieldIndices(column)
			if len(idx) == 0 {
				t.Fatalf("no such column %q", column)
			}
			col := rec.Column(idx[0]).(*array.Int32)
			for i := 0; i < col.Len(); i++ {
				values = append(values, col.Value(i))
			}
		}
		reader.Release()
	}
	return values
}
