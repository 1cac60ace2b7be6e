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
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"

	"github.com/nativexec/shuffle/arbiter"
	"github.com/nativexec/shuffle/diskmgr"
	"github.com/nativexec/shuffle/hashpart"
	"github.com/nativexec/shuffle/rbatch"
)

// Repartitioner orchestrates ingest, memory growth requests, spills,
// and the final merge for one input partition's worth of shuffle
// output. It implements arbiter.Consumer so the shared Arbiter can
// ask it to spill.
type Repartitioner struct {
	id        uuid.UUID
	name      string
	mem       memory.Allocator
	schema    *arrow.Schema
	scheme    *hashpart.HashPartitioning
	batchSize int
	dataPath  string
	indexPath string
	spillDir  string
	pool      *diskmgr.Pool
	arb       *arbiter.Arbiter

	mu      sync.Mutex
	state   runState
	buffers []*partitionBuffer
	spills  []*spillInfo

	metrics Metrics
	log     *log.Logger
}

// Option configures optional Repartitioner behavior.
type Option func(*Repartitioner)

// WithLogger sets the logger a Repartitioner reports spill and
// finalize events to. If unset, no output is logged.
func WithLogger(l *log.Logger) Option {
	return func(r *Repartitioner) { r.log = l }
}

func (r *Repartitioner) logf(format string, args ...any) {
	if r.log != nil {
		r.log.Printf(format, args...)
	}
}

// NewRepartitioner validates its inputs and constructs a
// Repartitioner. Only hash partitioning is accepted; any other
// scheme fails eagerly here rather than at the first insert_batch.
func NewRepartitioner(
	mem memory.Allocator,
	schema *arrow.Schema,
	scheme hashpart.Scheme,
	batchSize int,
	dataPath, indexPath, spillDir string,
	pool *diskmgr.Pool,
	arb *arbiter.Arbiter,
	name string,
	opts ...Option,
) (*Repartitioner, error) {
	if err := rbatch.ValidateSchema(schema); err != nil {
		return nil, err
	}
	hp, ok := scheme.(*hashpart.HashPartitioning)
	if !ok {
		return nil, &UnsupportedPartitioningError{Got: fmt.Sprintf("%T", scheme)}
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("shuffle: batch_size must be positive, got %d", batchSize)
	}

	p := hp.PartitionCount()
	buffers := make([]*partitionBuffer, p)
	for i := range buffers {
		buffers[i] = newPartitionBuffer(mem, schema, batchSize)
	}

	r := &Repartitioner{
		id:        uuid.New(),
		name:      name,
		mem:       mem,
		schema:    schema,
		scheme:    hp,
		batchSize: batchSize,
		dataPath:  dataPath,
		indexPath: indexPath,
		spillDir:  spillDir,
		pool:      pool,
		arb:       arb,
		buffers:   buffers,
		state:     stateCreated,
	}
	for _, opt := range opts {
		opt(r)
	}
	arb.RegisterRequester(r.id, r)
	return r, nil
}

// Metrics returns the repartitioner's live metrics.
func (r *Repartitioner) Metrics() *Metrics { return &r.metrics }

// Name implements arbiter.Consumer.
func (r *Repartitioner) Name() string { return r.name }

// MemUsed implements arbiter.Consumer.
func (r *Repartitioner) MemUsed() int64 { return r.metrics.MemUsed() }

// InsertBatch hash-partitions rec and routes its rows into the
// appropriate partition buffers, growing the arbiter reservation
// first and shrinking it back by whatever compression recovered.
func (r *Repartitioner) InsertBatch(ctx context.Context, rec arrow.Record) error {
	if rec.NumRows() == 0 {
		return nil
	}

	r.mu.Lock()
	if r.state == stateFinalizing || r.state == stateDone {
		r.mu.Unlock()
		return &ClosedError{Op: "insert_batch"}
	}
	r.state = stateIngesting
	r.mu.Unlock()

	r.metrics.addOutputRows(rec.NumRows())

	uncompressed := rbatch.ByteSize(rec)
	if err := r.arb.TryGrow(ctx, r.id, uncompressed); err != nil {
		if denied, ok := err.(*arbiter.DeniedError); ok {
			return &ArbiterDeniedError{Requested: denied.Requested, Available: denied.Available}
		}
		return err
	}
	r.metrics.addMemUsed(uncompressed)

	start := time.Now()
	defer func() { r.metrics.addElapsedCompute(time.Since(start).Nanoseconds()) }()

	buckets, err := r.scheme.Buckets(r.mem, rec)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for b, indices := range buckets {
		if len(indices) == 0 {
			continue
		}
		buf := r.buffers[b]
		var delta int64
		var err error
		if len(indices) > r.batchSize {
			gathered, gerr := rbatch.Take(r.mem, rec, indices)
			if gerr != nil {
				return gerr
			}
			delta, err = buf.fastPathFreeze(gathered)
			gathered.Release()
		} else {
			delta, err = buf.pushRows(rec, indices)
		}
		if err != nil {
			return err
		}
		if delta > 0 {
			r.reconcileCompression(delta)
		}
	}
	return nil
}

// reconcileCompression applies the open question's advisory shrink:
// compressing a batch recovers some of the memory claimed for its
// uncompressed form. The recovered amount is treated as an estimate
// only; spill() is the authoritative reconciliation path.
func (r *Repartitioner) reconcileCompression(compressedBytes int64) {
	used := r.metrics.MemUsed()
	toShrink := used - compressedBytes
	if toShrink <= 0 {
		return
	}
	if toShrink > used {
		toShrink = used
	}
	r.arb.Shrink(toShrink)
	r.metrics.addMemUsed(-toShrink)
}

// Spill implements arbiter.Consumer: it flushes every buffer to a
// fresh temp file and returns the memory it freed.
func (r *Repartitioner) Spill(ctx context.Context) (int64, error) {
	start := time.Now()
	defer func() { r.metrics.addElapsedCompute(time.Since(start).Nanoseconds()) }()

	r.mu.Lock()
	if r.state == stateDone || r.state == stateFinalizing {
		r.mu.Unlock()
		return 0, nil
	}
	empty := true
	for _, b := range r.buffers {
		if b.activeRows > 0 || len(b.frozen) > 0 {
			empty = false
			break
		}
	}
	if empty {
		r.mu.Unlock()
		return 0, nil
	}
	prevState := r.state
	r.state = stateSpilling

	frozen, err := drainBuffers(r.buffers)
	if err != nil {
		r.state = prevState
		r.mu.Unlock()
		return 0, err
	}
	r.mu.Unlock()

	f, err := diskmgr.CreateTemp(r.spillDir, "shuffle-spill-*.tmp")
	if err != nil {
		return 0, err
	}

	offsets, err := spillInto(r.pool, f, frozen)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return 0, err
	}

	r.mu.Lock()
	r.spills = append(r.spills, &spillInfo{file: f, offsets: offsets})
	freed := r.metrics.MemUsed()
	r.metrics.setMemUsed(0)
	r.metrics.addSpilledBytes(freed)
	r.metrics.incSpillCount()
	r.state = stateIngesting
	r.mu.Unlock()

	r.logf("%s: spilled %d bytes to %s", r.name, freed, f.Name())
	return freed, nil
}

// Finalize merges every live buffer with every spill, in spill
// order, into data_path, then writes the P+1 offsets to index_path.
// It is terminal: insert_batch after Finalize returns a ClosedError.
func (r *Repartitioner) Finalize(ctx context.Context) error {
	start := time.Now()
	defer func() { r.metrics.addElapsedCompute(time.Since(start).Nanoseconds()) }()

	r.mu.Lock()
	if r.state == stateDone {
		r.mu.Unlock()
		return nil
	}
	r.state = stateFinalizing
	frozen, err := drainBuffers(r.buffers)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	spills := r.spills
	r.spills = nil
	r.mu.Unlock()

	p := len(r.buffers)
	offsets := make([]int64, p+1)

	err = r.pool.Submit(func() error {
		out, err := diskmgr.Create(r.dataPath)
		if err != nil {
			return err
		}
		defer out.Close()

		var pos int64
		for i := 0; i < p; i++ {
			offsets[i] = pos
			if len(frozen[i]) > 0 {
				n, err := out.Write(frozen[i])
				if err != nil {
					return err
				}
				pos += int64(n)
			}
			for _, sp := range spills {
				segLen := sp.offsets[i+1] - sp.offsets[i]
				if segLen <= 0 {
					continue
				}
				if _, err := sp.file.Seek(sp.offsets[i], io.SeekStart); err != nil {
					return err
				}
				n, err := io.CopyN(out, sp.file, segLen)
				if err != nil {
					return err
				}
				pos += n
			}
		}
		offsets[p] = pos
		if err := out.Sync(); err != nil {
			return err
		}

		idx, err := diskmgr.Create(r.indexPath)
		if err != nil {
			return err
		}
		defer idx.Close()
		return writeIndex(idx, offsets)
	})
	r.closeSpills(spills)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.state = stateDone
	r.mu.Unlock()

	r.logf("%s: finalized %s (%d spills merged)", r.name, r.dataPath, len(spills))

	r.arb.DropConsumer(r.id, r.metrics.MemUsed())
	r.metrics.setMemUsed(0)
	return nil
}

func (r *Repartitioner) closeSpills(spills []*spillInfo) {
	for _, sp := range spills {
		sp.close()
	}
}

// writeIndex writes offsets as P+1 little-endian signed 64-bit
// integers.
func writeIndex(w io.Writer, offsets []int64) error {
	buf := make([]byte, 8*len(offsets))
	for i, o := range offsets {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(o))
	}
	_, err := w.Write(buf)
	return err
}
