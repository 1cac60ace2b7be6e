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
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"

	"github.com/nativexec/shuffle/arbiter"
	"github.com/nativexec/shuffle/diskmgr"
	"github.com/nativexec/shuffle/hashpart"
)

// Source is the minimal upstream plan surface the writer pulls
// batches from. Query planning is out of scope for this repository;
// a Source is whatever the surrounding engine compiles an upstream
// plan down to.
type Source interface {
	Next(ctx context.Context) (arrow.Record, error)
}

// Stream is the writer operator's output: it always yields zero
// rows (the writer's real output is the pair of files it produces),
// terminating with io.EOF on success or the fatal error that ended
// the run.
type Stream interface {
	Next(ctx context.Context) (arrow.Record, error)
}

type emptyStream struct {
	err  error
	done bool
}

func (s *emptyStream) Next(ctx context.Context) (arrow.Record, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

// WriterOperator is the plan-node facade over a Repartitioner: it
// reports the input schema unchanged, reports its partitioning, and
// drives the upstream source to completion on Execute, which also
// returns the Repartitioner it spawned so its Metrics can be read.
type WriterOperator struct {
	schema    *arrow.Schema
	scheme    hashpart.Scheme
	batchSize int
	dataDir   string
	spillDir  string
	pool      *diskmgr.Pool
	arb       *arbiter.Arbiter
	mem       memory.Allocator
	log       *log.Logger
}

// WriterOperatorOption configures optional WriterOperator behavior.
type WriterOperatorOption func(*WriterOperator)

// WithWriterLogger sets the logger every Repartitioner spawned by
// Execute reports spill and finalize events to. If unset, no output
// is logged.
func WithWriterLogger(l *log.Logger) WriterOperatorOption {
	return func(w *WriterOperator) { w.log = l }
}

// NewWriterOperator constructs a WriterOperator. dataDir is where
// per-input-partition data_file/index_file pairs are written,
// named partition-<id>.data and partition-<id>.index.
func NewWriterOperator(
	mem memory.Allocator,
	schema *arrow.Schema,
	scheme hashpart.Scheme,
	batchSize int,
	dataDir, spillDir string,
	pool *diskmgr.Pool,
	arb *arbiter.Arbiter,
	opts ...WriterOperatorOption,
) *WriterOperator {
	w := &WriterOperator{
		schema:    schema,
		scheme:    scheme,
		batchSize: batchSize,
		dataDir:   dataDir,
		spillDir:  spillDir,
		pool:      pool,
		arb:       arb,
		mem:       mem,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Schema reports the writer's input schema unchanged; the writer's
// own rows-out is always empty.
func (w *WriterOperator) Schema() *arrow.Schema { return w.schema }

// Partitioning reports the configured partitioning scheme.
func (w *WriterOperator) Partitioning() hashpart.Scheme { return w.scheme }

// Execute spawns one Repartitioner for partitionID, drains source
// into it, finalizes, and returns a Stream that yields the outcome.
func (w *WriterOperator) Execute(ctx context.Context, partitionID int, src Source) (Stream, *Repartitioner, error) {
	dataPath := filepath.Join(w.dataDir, fmt.Sprintf("partition-%d.data", partitionID))
	indexPath := filepath.Join(w.dataDir, fmt.Sprintf("partition-%d.index", partitionID))
	name := fmt.Sprintf("shuffle-writer-%d-%s", partitionID, uuid.New())

	rp, err := NewRepartitioner(w.mem, w.schema, w.scheme, w.batchSize, dataPath, indexPath, w.spillDir, w.pool, w.arb, name, WithLogger(w.log))
	if err != nil {
		return &emptyStream{err: err}, nil, err
	}

	for {
		rec, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return &emptyStream{err: err}, rp, err
		}
		if err := rp.InsertBatch(ctx, rec); err != nil {
			rec.Release()
			return &emptyStream{err: err}, rp, err
		}
		rec.Release()
	}

	if err := rp.Finalize(ctx); err != nil {
		return &emptyStream{err: err}, rp, err
	}
	return &emptyStream{}, rp, nil
}
