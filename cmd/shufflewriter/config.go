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

package main

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Config describes one shuffle writer run: where its input batches
// come from, how to partition them, and where the two output files
// and any spill segments land.
type Config struct {
	// InputPath is an Arrow IPC stream file read as the upstream
	// source. Compiling a real query plan down to a Source is out
	// of scope for this repository.
	InputPath string `json:"inputPath"`

	// DataPath and IndexPath are the output data_file/index_file
	// pair this run produces.
	DataPath  string `json:"dataPath"`
	IndexPath string `json:"indexPath"`

	// SpillDir holds temporary spill segments for the duration of
	// the run; it is created if missing and left empty on success.
	SpillDir string `json:"spillDir"`

	// PartitionColumns names the columns hashed to choose each
	// row's output bucket, evaluated in order.
	PartitionColumns []string `json:"partitionColumns"`

	// PartitionCount is the number of output buckets.
	PartitionCount int `json:"partitionCount"`

	// BatchSize bounds how many rows a partition's active builder
	// accumulates before it is flushed and encoded as a frame.
	BatchSize int `json:"batchSize"`

	// MemoryLimitBytes is the arbiter's total budget across every
	// partition buffer in this run.
	MemoryLimitBytes int64 `json:"memoryLimitBytes"`

	// Workers is the size of the blocking worker pool used for
	// spill and finalize file I/O.
	Workers int `json:"workers"`
}

func (c *Config) setDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 4096
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.MemoryLimitBytes == 0 {
		c.MemoryLimitBytes = 256 << 20
	}
}

func (c *Config) validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("config: inputPath is required")
	}
	if c.DataPath == "" || c.IndexPath == "" {
		return fmt.Errorf("config: dataPath and indexPath are required")
	}
	if c.SpillDir == "" {
		return fmt.Errorf("config: spillDir is required")
	}
	if c.PartitionCount < 1 {
		return fmt.Errorf("config: partitionCount must be >= 1, got %d", c.PartitionCount)
	}
	if len(c.PartitionColumns) == 0 {
		return fmt.Errorf("config: at least one partitionColumn is required")
	}
	return nil
}

// loadConfig reads and validates a YAML config file.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
