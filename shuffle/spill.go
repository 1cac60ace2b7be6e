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
	"os"

	"github.com/nativexec/shuffle/diskmgr"
)

// spillInfo records where each partition's contribution to one
// spill file begins and ends. offsets has P+1 entries; offsets[P]
// is the file's end.
type spillInfo struct {
	file    *os.File
	offsets []int64
}

// close removes the backing temp file, releasing its disk space.
// Spill files are scratch space for the lifetime of one
// repartitioning run; they are never renamed into a final location.
func (s *spillInfo) close() error {
	name := s.file.Name()
	if err := s.file.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Remove(name)
}

// drainBuffers finishes every buffer and takes ownership of its
// frozen bytes, leaving the buffers empty. The caller is expected to
// hold whatever lock protects buffers while calling this, then
// release it before handing the drained bytes to spillInto so the
// lock is never held across the blocking worker round trip.
func drainBuffers(buffers []*partitionBuffer) ([][]byte, error) {
	frozen := make([][]byte, len(buffers))
	for i, b := range buffers {
		if _, err := b.finish(); err != nil {
			return nil, err
		}
		frozen[i] = b.takeFrozen()
	}
	return frozen, nil
}

// spillInto writes already-drained per-partition byte slices into f
// on a dedicated blocking worker, recording the byte offset at which
// each partition's contribution begins.
func spillInto(pool *diskmgr.Pool, f *os.File, frozen [][]byte) ([]int64, error) {
	p := len(frozen)
	offsets := make([]int64, p+1)
	err := pool.Submit(func() error {
		var pos int64
		for i, data := range frozen {
			offsets[i] = pos
			if len(data) > 0 {
				n, err := f.Write(data)
				if err != nil {
					return err
				}
				pos += int64(n)
			}
			frozen[i] = nil
		}
		offsets[p] = pos
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offsets, nil
}
