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

// Package journal implements the per-AU append-only metadata log
// (lockss-repo.warc): a sequence of WARC metadata records carrying
// application/warc-fields payloads with the authoritative committed/deleted
// state for an artifact id. The last record for a given id wins.
package journal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	warcrecord "github.com/nlnwa/warcrepo"
	"github.com/nlnwa/warcrepo/pkg/artifact"
)

const (
	fieldArtifactID         = "artifact-id"
	fieldCommitted          = "committed"
	fieldDeleted            = "deleted"
	fieldStorageURLOverride = "storage-url-override"
)

// Journal is an open append-only metadata log for one AU.
type Journal struct {
	path string
	file *os.File
}

// Open opens (creating if necessary) the journal file at path for append.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &Journal{path: path, file: f}, nil
}

// Close closes the underlying file.
func (j *Journal) Close() error { return j.file.Close() }

// Append writes one metadata record recording m's state and returns the
// number of bytes written.
func (j *Journal) Append(m artifact.Metadata) (int64, error) {
	b := warcrecord.NewBuilder(warcrecord.Metadata)
	b.AddWarcHeader(warcrecord.ContentType, "application/warc-fields")

	fields := warcrecord.WarcFields{}
	fields.Set(fieldArtifactID, m.ArtifactID)
	fields.Set(fieldCommitted, strconv.FormatBool(m.Committed))
	fields.Set(fieldDeleted, strconv.FormatBool(m.Deleted))
	if m.StorageURLOverride != "" {
		fields.Set(fieldStorageURLOverride, m.StorageURLOverride)
	}
	if _, err := fields.WriteTo(b); err != nil {
		return 0, fmt.Errorf("journal: encode entry: %w", err)
	}

	rec, err := b.Finalize()
	if err != nil {
		if _, ok := err.(*warcrecord.Validation); !ok {
			return 0, fmt.Errorf("journal: finalize entry: %w", err)
		}
	}
	defer func() { _ = rec.Close() }()

	n, err := warcrecord.Marshal(j.file, rec)
	if err != nil {
		return n, fmt.Errorf("journal: write entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return n, fmt.Errorf("journal: sync: %w", err)
	}
	return n, nil
}

// Replay scans path in file order, folding every entry into a map from
// artifact id to its last-written Metadata. A torn tail - a record whose
// Content-Length does not match the bytes actually present - is truncated
// rather than applied, per §4.5's recovery rule: partially-written
// commit/delete states revert to their safe defaults (not committed, not
// deleted) by simply not being folded in.
func Replay(path string) (map[string]artifact.Metadata, error) {
	result := make(map[string]artifact.Metadata)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	u := warcrecord.NewUnmarshaler(bufio.NewReader(f))
	for {
		rec, _, err := u.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Torn tail or corrupt record: stop folding, keep what was
			// recovered so far.
			break
		}

		wb, ok := rec.Block().(interface{ Fields() *warcrecord.WarcFields })
		if !ok {
			_ = rec.Close()
			continue
		}
		fields := wb.Fields()
		id := fields.Get(fieldArtifactID)
		if id == "" {
			_ = rec.Close()
			continue
		}
		committed, _ := strconv.ParseBool(fields.Get(fieldCommitted))
		deleted, _ := strconv.ParseBool(fields.Get(fieldDeleted))
		result[id] = artifact.Metadata{
			ArtifactID:         id,
			Committed:          committed,
			Deleted:            deleted,
			StorageURLOverride: fields.Get(fieldStorageURLOverride),
		}
		_ = rec.Close()
	}

	return result, nil
}
