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

package diskmgr

import (
	"errors"
	"os"
	"path/filepath"
)

var errClosed = errors.New("diskmgr: pool is closed")

// CreateTemp creates a new temporary file for a spill in dir with
// the given name pattern, creating dir first if necessary. It
// mirrors the create-then-rename idiom used elsewhere for durable
// writes, except spill files are never renamed into a final
// location: they are scratch space for the lifetime of a single
// repartitioning run and are removed by the caller when no longer
// needed.
func CreateTemp(dir, pattern string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return os.CreateTemp(dir, pattern)
}

// Create creates the named output file, creating its parent
// directory first if necessary. It is used for the final data_file
// and index_file outputs of a partition.
func Create(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}
