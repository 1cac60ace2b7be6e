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

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/klauspost/compress/zstd"

	"github.com/nativexec/shuffle/compr"
)

const frameHeaderSize = 16

// countingWriter counts bytes written through it without otherwise
// altering them.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// encodeFrame renders rec into the wire frame:
//
//	u64 LE compressed_len | u64 LE uncompressed_len | zstd(ipc stream of rec)
//
// The header is reserved up front and patched in place once both
// the IPC writer and the zstd stream have finished, so the frame
// never needs to be copied to compute its length fields. encodeFrame
// never retains a reference to rec after it returns.
func encodeFrame(mem memory.Allocator, rec arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(make([]byte, frameHeaderSize))

	zw, err := compr.NewZstdStream(zstd.SpeedFastest, &buf)
	if err != nil {
		return nil, &EncoderError{Op: "open zstd stream", Err: err}
	}
	cw := &countingWriter{w: zw}

	iw := ipc.NewWriter(cw, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		iw.Close()
		zw.Close()
		return nil, &EncoderError{Op: "ipc write", Err: err}
	}
	if err := iw.Close(); err != nil {
		zw.Close()
		return nil, &EncoderError{Op: "ipc close", Err: err}
	}
	if err := zw.Close(); err != nil {
		return nil, &EncoderError{Op: "zstd close", Err: err}
	}

	out := buf.Bytes()
	compressedLen := uint64(len(out) - frameHeaderSize)
	uncompressedLen := uint64(cw.n)
	binary.LittleEndian.PutUint64(out[0:8], compressedLen)
	binary.LittleEndian.PutUint64(out[8:16], uncompressedLen)
	return out, nil
}
