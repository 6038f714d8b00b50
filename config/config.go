// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package config defines the single configuration record read
// once at device construction (per the "no global mutable state
// otherwise" design note). All tunables for the GPU execution
// core and the world streaming core live here.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every tunable of the device and streaming
// subsystems. The zero value is not valid; use Default to
// obtain a ready-to-use Config.
type Config struct {
	// GPU execution core.

	// MaxObjects is the Object Registry's fixed slot capacity.
	MaxObjects int `toml:"max_objects"`

	// StagingSize is the total size, in bytes, of the
	// persistently-mapped Staging Ring.
	StagingSize int64 `toml:"staging_size"`

	// StagingPage is the Staging Ring block allocator's page
	// granularity, in bytes.
	StagingPage int64 `toml:"staging_page"`

	// TempBufferFloor is the minimum size, in bytes, of any
	// buffer allocated by the Temp Buffer Pool.
	TempBufferFloor int64 `toml:"temp_buffer_floor"`

	// EnableWorkerThread selects threaded (async) or
	// single-threaded (synchronous, debug) Device Worker mode.
	EnableWorkerThread bool `toml:"enable_worker_thread"`

	// EnableDebugOutput turns on verbose validation logging.
	EnableDebugOutput bool `toml:"enable_debug_output"`

	// PrintTimings turns on per-frame timing log lines.
	PrintTimings bool `toml:"print_timings"`

	// World streaming core.

	// StreamingGridSmallestCell is the floor cell size, in
	// world units, of the smallest streaming grid level.
	StreamingGridSmallestCell float32 `toml:"streaming_grid_smallest_cell"`

	// StreamingBoxMinSize is the minimum edge length enforced
	// on any island's streaming box (islands smaller than this
	// are padded up to avoid degenerate, always-in-range boxes).
	StreamingBoxMinSize float32 `toml:"streaming_box_min_size"`

	// MaxConcurrentLoads bounds the number of island decodes
	// or copy-queue source fills running at once.
	MaxConcurrentLoads int `toml:"max_concurrent_loads"`
}

// Default returns the configuration used when no file is
// supplied.
func Default() Config {
	return Config{
		MaxObjects:                128 * 1024,
		StagingSize:               64 << 20,
		StagingPage:               128 * 1024,
		TempBufferFloor:           1 << 20,
		EnableWorkerThread:        true,
		EnableDebugOutput:         false,
		PrintTimings:              false,
		StreamingGridSmallestCell: 16,
		StreamingBoxMinSize:       70,
		MaxConcurrentLoads:        8,
	}
}

// Load reads a Config from a TOML file at path, using Default
// to fill in any field the file does not set.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
