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

// Command shufflewriter runs a single hash-partitioning shuffle
// writer pass over a local Arrow IPC stream file, producing a
// data_file/index_file pair that a downstream shuffle reader can
// seek into by partition.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/nativexec/shuffle/arbiter"
	"github.com/nativexec/shuffle/diskmgr"
	"github.com/nativexec/shuffle/hashpart"
	"github.com/nativexec/shuffle/shuffle"
)

// ipcSource adapts an Arrow IPC stream reader to shuffle.Source.
type ipcSource struct {
	f      *os.File
	reader *ipc.Reader
}

func openIPCSource(mem memory.Allocator, path string) (*ipcSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input %s: %w", path, err)
	}
	r, err := ipc.NewReader(f, ipc.WithAllocator(mem))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading ipc stream header from %s: %w", path, err)
	}
	return &ipcSource{f: f, reader: r}, nil
}

func (s *ipcSource) Schema() *arrow.Schema { return s.reader.Schema() }

func (s *ipcSource) Next(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.reader.Next() {
		if err := s.reader.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	rec := s.reader.Record()
	rec.Retain()
	return rec, nil
}

func (s *ipcSource) Close() error {
	s.reader.Release()
	return s.f.Close()
}

func run(cfg *Config) error {
	mem := memory.NewGoAllocator()

	src, err := openIPCSource(mem, cfg.InputPath)
	if err != nil {
		return err
	}
	defer src.Close()

	exprs := make([]hashpart.Expr, len(cfg.PartitionColumns))
	for i, name := range cfg.PartitionColumns {
		exprs[i] = hashpart.Column(name)
	}
	scheme, err := hashpart.NewHashPartitioning(exprs, cfg.PartitionCount)
	if err != nil {
		return fmt.Errorf("building partitioning scheme: %w", err)
	}

	if err := os.MkdirAll(cfg.SpillDir, 0o755); err != nil {
		return fmt.Errorf("creating spill dir %s: %w", cfg.SpillDir, err)
	}

	pool := diskmgr.NewPool(cfg.Workers)
	defer pool.Close()
	arb := arbiter.New(cfg.MemoryLimitBytes)
	logger := log.New(os.Stderr, "shufflewriter: ", log.LstdFlags)

	rp, err := shuffle.NewRepartitioner(mem, src.Schema(), scheme, cfg.BatchSize,
		cfg.DataPath, cfg.IndexPath, cfg.SpillDir, pool, arb, "shufflewriter", shuffle.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("constructing repartitioner: %w", err)
	}

	ctx := context.Background()
	for {
		rec, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading input batch: %w", err)
		}
		err = rp.InsertBatch(ctx, rec)
		rec.Release()
		if err != nil {
			return fmt.Errorf("inserting batch: %w", err)
		}
	}
	if err := rp.Finalize(ctx); err != nil {
		return fmt.Errorf("finalizing: %w", err)
	}

	m := rp.Metrics()
	fmt.Fprintf(os.Stdout, "output_rows=%d elapsed_compute_ns=%d mem_used=%d spilled_bytes=%d spill_count=%d\n",
		m.OutputRows(), m.ElapsedCompute(), m.MemUsed(), m.SpilledBytes(), m.SpillCount())
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to a shuffle writer YAML config")
	flag.Parse()
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: shufflewriter -config <path>")
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
