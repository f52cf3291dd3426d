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

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	warcrecord "github.com/nlnwa/warcrepo"
	"github.com/nlnwa/warcrepo/pkg/artifact"
	"github.com/nlnwa/warcrepo/pkg/index"
	"github.com/nlnwa/warcrepo/pkg/journal"
	"github.com/nlnwa/warcrepo/pkg/warcpath"
)

// recordSummary is one artifact record found while scanning a WARC file,
// stripped down to the fields reload/rebuild/GC need to classify it.
type recordSummary struct {
	identifier    artifact.Identifier
	contentLength int64
	contentDigest string
	offset        int64
	length        int64
}

// scanRecords stream-parses every response record in the file at path,
// returning a summary per record. A torn tail (Next failing mid-file) stops
// the scan at the last complete record rather than erroring the whole file,
// per §4.4.5's torn-tail handling.
func scanRecords(path string) ([]recordSummary, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, artifact.NewIoError(err, "store: open %s for scan", path)
	}
	defer func() { _ = f.Close() }()

	var out []recordSummary
	u := warcrecord.NewUnmarshaler(bufio.NewReader(f))
	for {
		rec, offset, err := u.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			break
		}
		if rec.Type() != warcrecord.Response {
			_ = rec.Close()
			continue
		}
		wh := rec.WarcHeader()
		version, _ := strconv.Atoi(wh.Get(warcrecord.XLockssVersion))
		contentLength, _ := strconv.ParseInt(wh.Get(warcrecord.XLockssLength), 10, 64)
		id := artifact.Identifier{
			ID:         wh.Get(warcrecord.XLockssArtifactID),
			Collection: wh.Get(warcrecord.XLockssCollection),
			Auid:       wh.Get(warcrecord.XLockssAuid),
			URI:        wh.Get(warcrecord.XLockssUri),
			Version:    version,
		}
		digest := wh.Get(warcrecord.XLockssDigest)
		if closeErr := rec.Close(); closeErr != nil {
			return out, offset, artifact.NewIoError(closeErr, "store: close record in %s", path)
		}
		out = append(out, recordSummary{
			identifier:    id,
			contentLength: contentLength,
			contentDigest: digest,
			offset:        offset,
			length:        u.LastOffset - offset,
		})
	}
	return out, u.LastOffset, nil
}

func hasWarcExt(name string) bool {
	return strings.HasSuffix(name, ".warc") || strings.HasSuffix(name, ".warc.gz")
}

// listWarcFiles recursively collects every *.warc[.gz] file under root,
// excluding the per-AU journal (lockss-repo.warc is metadata, not artifact
// data).
func listWarcFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == "lockss-repo.warc" || !hasWarcExt(d.Name()) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

// journalCache memoizes per-AU journal replay within a single reload or
// rebuild pass, since every record in an AU's files consults the same
// journal.
type journalCache struct {
	base    string
	entries map[string]map[string]artifact.Metadata
}

func newJournalCache(base string) *journalCache {
	return &journalCache{base: base, entries: make(map[string]map[string]artifact.Metadata)}
}

func (c *journalCache) get(collection, auid string) (map[string]artifact.Metadata, error) {
	key := auKey(collection, auid)
	if m, ok := c.entries[key]; ok {
		return m, nil
	}
	m, err := journal.Replay(warcpath.JournalPath(c.base, collection, auid))
	if err != nil {
		return nil, err
	}
	c.entries[key] = m
	return m, nil
}

// reloadTempWarcs implements §4.4.3: every temp WARC across every base path
// is scanned and each record classified against the index and its AU's
// journal, then the file is adopted into its base's pool.
func (s *Store) reloadTempWarcs() error {
	for _, base := range s.cfg.BasePaths {
		cache := newJournalCache(base)
		dir := warcpath.TempWarcDir(base)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return artifact.NewIoError(err, "store: list temp warc dir %s", dir)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			compressed := strings.HasSuffix(entry.Name(), ".gz")
			if err := s.reloadTempWarcFile(base, path, compressed, cache); err != nil {
				s.log.WithError(err).WithField("path", path).Warn("failed to reload temp warc")
			}
		}
	}
	return nil
}

func (s *Store) reloadTempWarcFile(base, path string, compressed bool, cache *journalCache) error {
	records, length, err := scanRecords(path)
	if err != nil {
		return err
	}

	for _, rs := range records {
		if err := s.classifyTempRecord(path, rs, cache); err != nil {
			s.log.WithError(err).WithField("artifact-id", rs.identifier.ID).
				Warn("failed to classify temp record during reload")
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		return artifact.NewIoError(err, "store: reopen temp warc %s", path)
	}
	s.pools[base].Adopt(path, compressed, length, f)
	return nil
}

// classifyTempRecord applies one row of §4.4.3's table to a single temp
// record.
func (s *Store) classifyTempRecord(path string, rs recordSummary, cache *journalCache) error {
	meta, err := cache.get(rs.identifier.Collection, rs.identifier.Auid)
	if err != nil {
		return err
	}
	m, journaled := meta[rs.identifier.ID]
	storageURL := artifact.NewStorageURL("file", path, rs.offset, rs.length).String()

	switch {
	case !journaled:
		// record present, no journal entry: this is either NOT_INDEXED (add
		// never followed by commit/delete, so nothing was ever journaled)
		// or, past the expiration TTL, EXPIRED. The temp WARC's own mtime
		// stands in for "time since this record was last touched" - there
		// is no journal entry yet to carry a timestamp.
		if time.Since(tempFileAge(path)) > s.cfg.UncommittedExpiration {
			// EXPIRED: drop any stale index entry from an earlier reload
			// pass and leave the temp WARC for GC to reclaim.
			_, _ = s.idx.DeleteArtifact(rs.identifier.ID)
			return nil
		}
		// NOT_INDEXED -> insert as uncommitted, unless the index already
		// somehow has it (e.g. a second reload pass).
		if _, err := s.idx.GetArtifactByID(rs.identifier.ID); err == nil {
			return nil
		}
		id := rs.identifier
		_, err := s.idx.IndexArtifact(&artifact.Data{
			Identifier:     &id,
			ContentLength:  rs.contentLength,
			ContentDigest:  rs.contentDigest,
			CollectionDate: time.Now().UTC(),
			StorageURL:     storageURL,
		})
		return err

	case m.Deleted:
		// DELETED: drop from temp, nothing to index.
		return nil

	case m.Committed:
		existing, err := s.idx.GetArtifactByID(rs.identifier.ID)
		if err != nil {
			// Index lost the entry (e.g. fresh index during rebuild);
			// reinsert it before resubmitting the copy.
			id := rs.identifier
			existing, err = s.idx.IndexArtifact(&artifact.Data{
				Identifier:     &id,
				ContentLength:  rs.contentLength,
				ContentDigest:  rs.contentDigest,
				CollectionDate: time.Now().UTC(),
				StorageURL:     storageURL,
			})
			if err != nil {
				return err
			}
			if _, err := s.idx.CommitArtifact(existing.Identifier.ID); err != nil {
				return err
			}
		}
		su, err := artifact.ParseStorageURL(existing.StorageURL)
		if err != nil {
			return err
		}
		if !warcpath.IsTempPath(su.Path) {
			// COPIED: the active-WARC copy already landed permanently;
			// this temp copy is now garbage.
			return nil
		}
		// COMMITTED but still only in temp: resubmit the copy task.
		a := *existing
		a.Committed = true
		_, jobErr := s.CommitArtifactData(&a)
		return jobErr

	default:
		// journaled, neither committed nor deleted: not reachable in
		// practice (the journal only ever carries Committed or Deleted
		// entries), kept as a defensive no-op rather than a panic.
		return nil
	}
}

// tempFileAge is a best-effort staleness indicator for a not-yet-journaled
// temp record: there is no journal entry to carry a timestamp, so the temp
// WARC file's own modification time stands in for "time since this record
// was last written to".
func tempFileAge(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Now().UTC()
	}
	return info.ModTime()
}

// RebuildIndex implements §4.4's rebuild_index(index): it enumerates every
// permanent WARC under every base path and re-inserts descriptors, folds in
// whatever is still live in temp storage, and finally replays every per-AU
// journal to restore committed/deleted state and storage-url overrides.
// It operates on the idx argument, not s.idx, so it can repopulate a fresh
// index for disaster recovery without disturbing the store's own index
// reference.
func (s *Store) RebuildIndex(idx index.ArtifactIndex) error {
	if idx == nil {
		return artifact.NewIllegalState("store: rebuild called with no index")
	}

	seenAUs := make(map[string]struct{})

	for _, base := range s.cfg.BasePaths {
		var roots []string
		roots = append(roots, filepath.Join(base, "collections"), warcpath.SealedDirPath(base))
		for _, root := range roots {
			files, err := listWarcFiles(root)
			if err != nil {
				return artifact.NewIoError(err, "store: enumerate warcs under %s", root)
			}
			for _, path := range files {
				records, _, err := scanRecords(path)
				if err != nil {
					s.log.WithError(err).WithField("path", path).Warn("failed to scan warc during rebuild")
					continue
				}
				for _, rs := range records {
					id := rs.identifier
					seenAUs[auKey(id.Collection, id.Auid)] = struct{}{}
					storageURL := artifact.NewStorageURL("file", path, rs.offset, rs.length).String()
					if _, err := idx.IndexArtifact(&artifact.Data{
						Identifier:     &id,
						ContentLength:  rs.contentLength,
						ContentDigest:  rs.contentDigest,
						CollectionDate: time.Now().UTC(),
						StorageURL:     storageURL,
					}); err != nil {
						s.log.WithError(err).WithField("artifact-id", id.ID).
							Warn("failed to index record during rebuild")
					}
				}
			}
		}

		cache := newJournalCache(base)
		dir := warcpath.TempWarcDir(base)
		if entries, err := os.ReadDir(dir); err == nil {
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				path := filepath.Join(dir, entry.Name())
				records, _, err := scanRecords(path)
				if err != nil {
					continue
				}
				for _, rs := range records {
					seenAUs[auKey(rs.identifier.Collection, rs.identifier.Auid)] = struct{}{}
					if err := rebuildClassifyTempRecord(idx, path, rs, cache); err != nil {
						s.log.WithError(err).WithField("artifact-id", rs.identifier.ID).
							Warn("failed to classify temp record during rebuild")
					}
				}
			}
		}
	}

	// Restore committed/deleted flags and storage-url overrides per AU.
	for key := range seenAUs {
		collection, auid := splitAuKey(key)
		var meta map[string]artifact.Metadata
		for _, base := range s.cfg.BasePaths {
			m, err := journal.Replay(warcpath.JournalPath(base, collection, auid))
			if err != nil {
				continue
			}
			if len(m) > 0 {
				meta = m
				break
			}
		}
		for id, m := range meta {
			if m.Deleted {
				_, _ = idx.DeleteArtifact(id)
				continue
			}
			if m.Committed {
				if _, err := idx.CommitArtifact(id); err != nil {
					continue
				}
				if m.StorageURLOverride != "" {
					_, _ = idx.UpdateStorageURL(id, m.StorageURLOverride)
				}
			}
		}
	}

	return nil
}

// rebuildClassifyTempRecord is RebuildIndex's analogue of
// Store.classifyTempRecord, operating against the caller-supplied idx
// rather than s.idx and never resubmitting copy tasks (rebuild only
// reconstructs index state; recovery of the copy itself happens on the next
// normal init_data_store).
func rebuildClassifyTempRecord(idx index.ArtifactIndex, path string, rs recordSummary, cache *journalCache) error {
	meta, err := cache.get(rs.identifier.Collection, rs.identifier.Auid)
	if err != nil {
		return err
	}
	if m, ok := meta[rs.identifier.ID]; ok && m.Deleted {
		return nil
	}
	if _, err := idx.GetArtifactByID(rs.identifier.ID); err == nil {
		return nil
	}
	id := rs.identifier
	storageURL := artifact.NewStorageURL("file", path, rs.offset, rs.length).String()
	_, err = idx.IndexArtifact(&artifact.Data{
		Identifier:     &id,
		ContentLength:  rs.contentLength,
		ContentDigest:  rs.contentDigest,
		CollectionDate: time.Now().UTC(),
		StorageURL:     storageURL,
	})
	return err
}

func splitAuKey(key string) (collection, auid string) {
	parts := strings.SplitN(key, "\x00", 2)
	if len(parts) != 2 {
		return key, ""
	}
	return parts[0], parts[1]
}

// gcLoop runs garbageCollectTempWarcs on interval until Close stops it.
func (s *Store) gcLoop(interval time.Duration) {
	defer s.gcWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			s.garbageCollectTempWarcs()
		}
	}
}

// RunGC runs one garbage-collection pass immediately, for callers (the CLI's
// gc subcommand) that don't want to wait for the background ticker.
func (s *Store) RunGC() {
	s.garbageCollectTempWarcs()
}

// TempFileStats reports, per base path, the number of pooled temp-WARC
// files and their combined length - for the CLI's stat subcommand.
func (s *Store) TempFileStats() map[string]struct {
	Count  int
	Length int64
} {
	out := make(map[string]struct {
		Count  int
		Length int64
	}, len(s.pools))
	for base, pool := range s.pools {
		var count int
		var length int64
		for _, wf := range pool.Files() {
			count++
			length += wf.Length()
		}
		out[base] = struct {
			Count  int
			Length int64
		}{Count: count, Length: length}
	}
	return out
}

// garbageCollectTempWarcs implements §4.4's garbage_collect_temp_warcs: a
// pooled file with no in-use marker whose every record is COPIED, EXPIRED
// or DELETED is unlinked and dropped from the pool.
func (s *Store) garbageCollectTempWarcs() {
	for base, pool := range s.pools {
		for _, wf := range pool.Files() {
			if !s.tempFileReclaimable(wf.Path) {
				continue
			}
			if err := pool.RemoveWarc(wf.Path); err != nil {
				continue
			}
			if err := wf.File.Close(); err != nil {
				s.log.WithError(err).WithField("path", wf.Path).Warn("failed to close reclaimed temp warc")
			}
			if err := os.Remove(wf.Path); err != nil && !os.IsNotExist(err) {
				s.log.WithError(err).WithField("path", wf.Path).Warn("failed to remove reclaimed temp warc")
			} else {
				s.log.WithField("path", wf.Path).WithField("base", base).Info("garbage collected temp warc")
			}
		}
	}
}

// tempFileReclaimable scans path and reports whether every record it
// contains is, per the index, in a terminal {COPIED, EXPIRED, DELETED}
// state.
func (s *Store) tempFileReclaimable(path string) bool {
	records, _, err := scanRecords(path)
	if err != nil {
		return false
	}
	if len(records) == 0 {
		return true
	}
	for _, rs := range records {
		a, err := s.idx.GetArtifactByID(rs.identifier.ID)
		if err != nil {
			// Absent from the index: either EXPIRED or DELETED, both
			// terminal.
			continue
		}
		su, err := artifact.ParseStorageURL(a.StorageURL)
		if err != nil || warcpath.IsTempPath(su.Path) {
			// Still uncommitted, or committed but not yet copied out of
			// temp: not reclaimable yet.
			return false
		}
	}
	return true
}
