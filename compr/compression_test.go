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

package compr

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestZstdStreamRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewZstdStream(zstd.SpeedFastest, &buf)
	if err != nil {
		t.Fatalf("NewZstdStream: %v", err)
	}
	want := bytes.Repeat([]byte("foo"), 1000)
	if _, err := w.Write(want[:len(want)/2]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write(want[len(want)/2:]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := DecodeZstd(buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("DecodeZstd: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("roundtrip mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
}
