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

import "fmt"

// UnsupportedPartitioningError is returned when a Repartitioner is
// constructed with anything other than hash partitioning.
type UnsupportedPartitioningError struct {
	Got string
}

func (e *UnsupportedPartitioningError) Error() string {
	return fmt.Sprintf("shuffle: unsupported partitioning scheme %q, only hash partitioning is supported", e.Got)
}

// EncoderError wraps a failure from the batch encoder (zstd or
// Arrow IPC stream errors).
type EncoderError struct {
	Op  string
	Err error
}

func (e *EncoderError) Error() string {
	return fmt.Sprintf("shuffle: encoder %s: %v", e.Op, e.Err)
}

func (e *EncoderError) Unwrap() error { return e.Err }

// ArbiterDeniedError is returned when insert_batch cannot obtain
// enough memory from the arbiter even after every other registered
// consumer has been asked to spill.
type ArbiterDeniedError struct {
	Requested, Available int64
}

func (e *ArbiterDeniedError) Error() string {
	return fmt.Sprintf("shuffle: arbiter denied request for %d bytes, only %d available", e.Requested, e.Available)
}

// ClosedError is returned by operations attempted after finalize
// has run.
type ClosedError struct {
	Op string
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("shuffle: %s after finalize", e.Op)
}
