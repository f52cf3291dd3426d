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
	"io"
	"os"

	warcrecord "github.com/nlnwa/warcrepo"
	"github.com/nlnwa/warcrepo/pkg/artifact"
)

// GetArtifactData implements §4.4: opens a.StorageURL, seeks to the record
// offset, parses exactly one WARC record and exposes its payload as a
// single-consumption byte sequence.
func (s *Store) GetArtifactData(a *artifact.Artifact) (*artifact.Data, error) {
	if a == nil {
		return nil, artifact.NewInvalidArgument("store: nil artifact")
	}
	return readArtifactData(a.StorageURL)
}

func readArtifactData(storageURL string) (*artifact.Data, error) {
	su, err := artifact.ParseStorageURL(storageURL)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(su.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, artifact.NewNotFound("store: storage url %q does not resolve", storageURL)
		}
		return nil, artifact.NewIoError(err, "store: open %s", su.Path)
	}
	if su.HasRange {
		if _, err := f.Seek(su.Offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, artifact.NewIoError(err, "store: seek %s", su.Path)
		}
	}

	var r io.Reader = f
	if su.HasRange {
		r = io.LimitReader(f, su.Length)
	}

	u := warcrecord.NewUnmarshaler(bufio.NewReader(r))
	rec, _, err := u.Next()
	if err != nil {
		_ = f.Close()
		if err == io.EOF {
			return nil, artifact.NewNotFound("store: storage url %q does not resolve", storageURL)
		}
		return nil, artifact.NewMalformedRecord("store: parse record at %s: %v", storageURL, err)
	}

	data, err := parseResponseRecord(rec)
	if err != nil {
		_ = rec.Close()
		_ = f.Close()
		return nil, err
	}

	inner := data.Payload
	data.Payload = artifact.NewPayloadSource(func() (io.ReadCloser, error) {
		rc, err := inner.Open()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &fileClosingReadCloser{ReadCloser: rc, f: f}, nil
	})
	return data, nil
}

// fileClosingReadCloser closes the record (and, transitively, its
// diskbuffer/file handle) and then the backing os.File opened to read it.
type fileClosingReadCloser struct {
	io.ReadCloser
	f *os.File
}

func (c *fileClosingReadCloser) Close() error {
	err := c.ReadCloser.Close()
	if cerr := c.f.Close(); err == nil {
		err = cerr
	}
	return err
}
