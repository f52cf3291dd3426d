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

// Package store implements the artifact data store: the WARC-backed engine
// behind add/get/commit/delete, the temp-WARC-to-permanent-WARC commit copy,
// AU sealing, crash recovery and index rebuild, and temp-WARC garbage
// collection.
package store

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	warcrecord "github.com/nlnwa/warcrepo"
	"github.com/nlnwa/warcrepo/pkg/artifact"
	"github.com/nlnwa/warcrepo/pkg/index"
	"github.com/nlnwa/warcrepo/pkg/journal"
	"github.com/nlnwa/warcrepo/pkg/tmppool"
	"github.com/nlnwa/warcrepo/pkg/warcpath"
)

// auState is the per-AU runtime state: the active permanent WARC writer and
// the journal, each guarded by its own lock per §5's "per-AU writer mutex"
// and "appended under its own per-AU lock" rules.
type auState struct {
	collection, auid string

	warcMu     sync.Mutex
	activePath string
	activeFile *os.File
	activeLen  int64

	journalMu sync.Mutex
	journal   *journal.Journal
}

// Store is the artifact data store engine of §4.4.
type Store struct {
	cfg Config
	idx index.ArtifactIndex
	log *logrus.Entry

	pools map[string]*tmppool.Pool // base path -> temp pool

	auMu    sync.Mutex
	aus     map[string]*auState // "collection\x00auid" -> state
	auBases map[string]string   // "collection\x00auid" -> base path holding its active/sealed WARCs

	jobs      chan commitJob
	workersWG sync.WaitGroup

	gcStop chan struct{}
	gcWG   sync.WaitGroup

	ready bool
}

// New constructs a Store. idx is the ArtifactIndex the commit copy task and
// rebuild consult/update directly (§4.4.2 step d, §4.4.3) - Store owns this
// reference so the copy task's index update is part of the same operation
// that moved the bytes, rather than a second, separately-timed call (see
// DESIGN.md's resolution of the §4.4.2-vs-§4.7 index-update ambiguity).
func New(cfg Config, idx index.ArtifactIndex) *Store {
	return &Store{
		cfg:   cfg,
		idx:   idx,
		log:   logrus.WithField("component", "store"),
		pools:   make(map[string]*tmppool.Pool),
		aus:     make(map[string]*auState),
		auBases: make(map[string]string),
	}
}

// Init discovers base paths, creates directory scaffolding, reloads temp
// WARCs (§4.4.3) and starts the commit worker pool and GC loop. Fails
// IllegalState if idx is nil (reload needs an index to classify against).
func (s *Store) Init() error {
	if s.idx == nil {
		return artifact.NewIllegalState("store: init called with no index set")
	}
	if len(s.cfg.BasePaths) == 0 {
		return artifact.NewInvalidArgument("store: no base paths configured")
	}

	for _, base := range s.cfg.BasePaths {
		for _, dir := range []string{
			base,
			base + "/tmp/warcs",
			base + "/collections",
			base + "/sealed",
		} {
			if err := os.MkdirAll(dir, 0777); err != nil {
				return artifact.NewIoError(err, "store: create directory %s", dir)
			}
		}
		s.pools[base] = tmppool.New(base, s.cfg.ThresholdWarcSize, s.cfg.BlockSize)
	}

	if err := s.reloadTempWarcs(); err != nil {
		return err
	}

	workers := s.cfg.CommitWorkerCount
	if workers <= 0 {
		workers = defaultCommitWorkerCount
	}
	s.jobs = make(chan commitJob, defaultJobQueueSize)
	for i := 0; i < workers; i++ {
		s.workersWG.Add(1)
		go s.commitWorker()
	}

	s.gcStop = make(chan struct{})
	interval := s.cfg.GCInterval
	if interval <= 0 {
		interval = defaultGCInterval
	}
	s.gcWG.Add(1)
	go s.gcLoop(interval)

	s.ready = true
	return nil
}

// Ready reports whether init has completed successfully.
func (s *Store) Ready() bool { return s.ready }

// Close stops the commit workers and GC loop and closes open AU file
// handles. Pending commit futures already submitted are allowed to drain.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		s.gcWG.Wait()
	}
	if s.jobs != nil {
		close(s.jobs)
		s.workersWG.Wait()
	}

	s.auMu.Lock()
	defer s.auMu.Unlock()
	var firstErr error
	for _, au := range s.aus {
		au.warcMu.Lock()
		if au.activeFile != nil {
			if err := au.activeFile.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		au.warcMu.Unlock()
		au.journalMu.Lock()
		if au.journal != nil {
			if err := au.journal.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		au.journalMu.Unlock()
	}
	return firstErr
}

func auKey(collection, auid string) string { return collection + "\x00" + auid }

// getAuState returns (creating if necessary) the runtime state for an AU,
// opening its journal. A newly-seen AU is placed on the first configured
// base path whose filesystem usage can be read; no free-space check is made
// for it, and its later permanent WARC writes stay on that base path.
func (s *Store) getAuState(collection, auid string) (*auState, string, error) {
	key := auKey(collection, auid)

	s.auMu.Lock()
	au, ok := s.aus[key]
	base := s.auBases[key]
	s.auMu.Unlock()
	if ok {
		return au, base, nil
	}

	base, err := s.chooseBasePath(0)
	if err != nil {
		return nil, "", err
	}
	if mkErr := os.MkdirAll(warcpath.AuDirPath(base, collection, auid), 0777); mkErr != nil {
		return nil, "", artifact.NewIoError(mkErr, "store: create AU directory for %s/%s", collection, auid)
	}

	j, err := journal.Open(warcpath.JournalPath(base, collection, auid))
	if err != nil {
		return nil, "", artifact.NewIoError(err, "store: open journal for %s/%s", collection, auid)
	}
	au = &auState{collection: collection, auid: auid, journal: j}

	s.auMu.Lock()
	defer s.auMu.Unlock()
	if existing, ok := s.aus[key]; ok {
		// Lost the race to open this AU's state; use the winner's and
		// close the journal handle opened speculatively above.
		_ = j.Close()
		return existing, s.auBases[key], nil
	}
	s.aus[key] = au
	s.auBases[key] = base
	return au, base, nil
}

// chooseBasePath returns the first configured base path with enough free
// space for bytesNeeded (0 means "any base with scaffolding").
func (s *Store) chooseBasePath(bytesNeeded int64) (string, error) {
	for _, base := range s.cfg.BasePaths {
		info, err := StorageInfo(base)
		if err != nil {
			continue
		}
		if bytesNeeded == 0 || info.Available >= uint64(bytesNeeded) {
			return base, nil
		}
	}
	return "", artifact.NewIoError(fmt.Errorf("no base path with sufficient space"), "store: choose base path")
}

// writeRecord marshals rec to w, wrapping it in a fresh gzip member when
// compressed is true (one member per record, matching the unmarshaler's
// Multistream(false) per-record framing). It returns the number of bytes
// actually written to w (the compressed size, when applicable).
func writeRecord(w io.Writer, rec warcrecord.Record, compressed bool) (int64, error) {
	cw := &countingWriter{w: w}
	if !compressed {
		_, err := warcrecord.Marshal(cw, rec)
		return cw.n, err
	}
	gz := gzip.NewWriter(cw)
	if _, err := warcrecord.Marshal(gz, rec); err != nil {
		_ = gz.Close()
		return cw.n, err
	}
	if err := gz.Close(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
