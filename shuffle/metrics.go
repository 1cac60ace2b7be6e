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

import "sync/atomic"

// Metrics tracks the five counters exposed by a Repartitioner, safe
// for concurrent reads while a single writer goroutine updates them.
type Metrics struct {
	outputRows     atomic.Int64
	elapsedCompute atomic.Int64
	memUsed        atomic.Int64
	spilledBytes   atomic.Int64
	spillCount     atomic.Int64
}

// OutputRows returns the total rows written across all partitions.
func (m *Metrics) OutputRows() int64 { return m.outputRows.Load() }

// ElapsedCompute returns nanoseconds spent hashing, bucketing,
// encoding, and merging.
func (m *Metrics) ElapsedCompute() int64 { return m.elapsedCompute.Load() }

// MemUsed returns the bytes currently claimed from the arbiter.
func (m *Metrics) MemUsed() int64 { return m.memUsed.Load() }

// SpilledBytes returns the cumulative mem_used released by spills
// (the accounted bytes freed, not the bytes written to spill files).
func (m *Metrics) SpilledBytes() int64 { return m.spilledBytes.Load() }

// SpillCount returns the number of spill events.
func (m *Metrics) SpillCount() int64 { return m.spillCount.Load() }

func (m *Metrics) addOutputRows(n int64)     { m.outputRows.Add(n) }
func (m *Metrics) addElapsedCompute(n int64) { m.elapsedCompute.Add(n) }
func (m *Metrics) addSpilledBytes(n int64)   { m.spilledBytes.Add(n) }
func (m *Metrics) incSpillCount()            { m.spillCount.Add(1) }

func (m *Metrics) setMemUsed(n int64)  { m.memUsed.Store(n) }
func (m *Metrics) addMemUsed(n int64)  { m.memUsed.Add(n) }
