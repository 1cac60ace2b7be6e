// Copyright (C) 2022 Sneller, Inc.
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

// Package compr wraps the zstd codec used for the shuffle wire
// format: an incremental encoder the batch encoder streams an Arrow
// IPC writer into, and the matching one-shot decoder tests use to
// verify a frame round-trips.
package compr

import (
	"io"
	"runtime"

	"github.com/klauspost/compress/zstd"
)

var zstdDecoder *zstd.Decoder

func init() {
	// by default, concurrency is set to min(4, GOMAXPROCS);
	// we'd like it to *always* be GOMAXPROCS
	z, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdDecoder = z
}

// DecodeZstd calls DecodeAll on the global zstd decoder.
//
// See: (*zstd.Decoder).DecodeAll
func DecodeZstd(src, dst []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(src, dst)
}

// NewZstdStream opens an incremental zstd encoder at the
// given compression level that writes its compressed output
// to dst as the caller calls Write. The caller must call Close
// to flush the final zstd frame.
//
// This is meant for callers that are themselves streaming an
// encoder (such as an Arrow IPC writer) into the compressed output,
// rather than compressing an already-materialized block in one shot.
func NewZstdStream(level zstd.EncoderLevel, dst io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(dst,
		zstd.WithEncoderLevel(level),
		zstd.WithEncoderConcurrency(1))
}
