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
	"io"
	"time"

	"github.com/nlnwa/warcrepo/pkg/artifact"
)

// estimatedRecordOverhead is a rough allowance for the version line, header
// fields and trailing CRLFCRLF around a record's content block, used only
// to size the temp-pool request - FindWarc's threshold check is advisory
// headroom, not a hard cap enforced by the write itself.
const estimatedRecordOverhead = 512

// AddArtifactData implements §4.4.1: it assigns a fresh id, writes an
// uncommitted WARC record into a pooled temp file, and returns a descriptor
// whose storage_url points at the temp offset. The caller (repository
// facade) is responsible for having already stamped the artifact's version
// onto data.Identifier - the store never assigns it.
func (s *Store) AddArtifactData(data *artifact.Data) (*artifact.Artifact, error) {
	if data == nil || data.Identifier == nil {
		return nil, artifact.NewInvalidArgument("store: nil artifact data or identifier")
	}
	if err := data.Identifier.Validate(); err != nil {
		return nil, err
	}
	data.Identifier.ID = artifact.NewID()

	rec, contentLength, contentDigest, err := buildResponseRecord(data)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rec.Close() }()

	base, err := s.chooseBasePath(contentLength + estimatedRecordOverhead)
	if err != nil {
		return nil, err
	}
	pool := s.pools[base]

	wf, err := pool.FindWarc(contentLength+estimatedRecordOverhead, s.cfg.UseWarcCompression)
	if err != nil {
		return nil, artifact.NewIoError(err, "store: acquire temp warc")
	}

	// Length takes the file's lock itself, so it is read before Lock.
	offset := wf.Length()
	wf.Lock()
	if _, err := wf.File.Seek(0, io.SeekEnd); err != nil {
		wf.Unlock()
		pool.ReturnWarc(wf)
		return nil, artifact.NewIoError(err, "store: seek temp warc")
	}
	written, err := writeRecord(wf.File, rec, wf.Compressed)
	if err != nil {
		wf.Unlock()
		pool.ReturnWarc(wf)
		return nil, artifact.NewIoError(err, "store: write temp warc record")
	}
	if err := wf.File.Sync(); err != nil {
		wf.Unlock()
		pool.ReturnWarc(wf)
		return nil, artifact.NewIoError(err, "store: sync temp warc")
	}
	wf.SetLength(offset + written)
	wf.Unlock()
	pool.ReturnWarc(wf)

	storageURL := artifact.NewStorageURL("file", wf.Path, offset, written).String()

	collectionDate := data.CollectionDate
	if collectionDate.IsZero() {
		collectionDate = time.Now().UTC()
	}

	return &artifact.Artifact{
		Identifier:     *data.Identifier,
		Committed:      false,
		StorageURL:     storageURL,
		ContentLength:  contentLength,
		ContentDigest:  contentDigest,
		CollectionDate: collectionDate,
	}, nil
}
