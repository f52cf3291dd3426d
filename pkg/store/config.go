/*
 * Copyright 2021 National Library of Norway.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *       http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package store

import "time"

const (
	defaultThresholdWarcSize     = 1 << 30 // 1 GiB
	defaultUncommittedExpiration = 7 * 24 * time.Hour
	defaultBlockSize             = 4096
	defaultCommitWorkerCount     = 4
	defaultGCInterval            = time.Hour
	defaultJobQueueSize          = 1024
)

// Config holds the recognized configuration options of §6: one or more base
// paths, the seal-on-size threshold, uncommitted-artifact TTL, per-record
// gzip framing, the temp-pool best-fit block size, commit worker count, and
// GC interval.
type Config struct {
	BasePaths              []string
	ThresholdWarcSize      int64
	UncommittedExpiration  time.Duration
	UseWarcCompression     bool
	BlockSize              int64
	CommitWorkerCount      int
	GCInterval             time.Duration
}

// Option mutates a Config, following the root warcrecord package's
// functional-options idiom.
type Option func(*Config)

// WithThresholdWarcSize sets the seal-on-size ceiling for AU active WARCs.
// 0 disables sealing.
func WithThresholdWarcSize(n int64) Option {
	return func(c *Config) { c.ThresholdWarcSize = n }
}

// WithUncommittedExpiration sets the TTL for unacknowledged temp artifacts.
func WithUncommittedExpiration(d time.Duration) Option {
	return func(c *Config) { c.UncommittedExpiration = d }
}

// WithWarcCompression toggles per-record gzip framing for new WARCs.
func WithWarcCompression(enabled bool) Option {
	return func(c *Config) { c.UseWarcCompression = enabled }
}

// WithBlockSize sets the filesystem block size used by the temp-pool
// best-fit heuristic.
func WithBlockSize(n int64) Option {
	return func(c *Config) { c.BlockSize = n }
}

// WithCommitWorkerCount sets the size of the commit copy worker pool.
func WithCommitWorkerCount(n int) Option {
	return func(c *Config) { c.CommitWorkerCount = n }
}

// WithGCInterval sets the temp-WARC garbage-collection period.
func WithGCInterval(d time.Duration) Option {
	return func(c *Config) { c.GCInterval = d }
}

// NewConfig builds a Config for basePaths with the defaults of §6 applied,
// then overridden by opts.
func NewConfig(basePaths []string, opts ...Option) Config {
	c := Config{
		BasePaths:             basePaths,
		ThresholdWarcSize:     defaultThresholdWarcSize,
		UncommittedExpiration: defaultUncommittedExpiration,
		BlockSize:             defaultBlockSize,
		CommitWorkerCount:     defaultCommitWorkerCount,
		GCInterval:            defaultGCInterval,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
