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

package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// DigestWriter computes a content digest in the "algorithm:hex" shape §3
// specifies, reusing the same encoding style as the codec's digest.go
// (Base16 = lowercase hex) but hardcoded to sha256, the repository's
// artifact-level default (the codec's own default of sha1 is for
// block/payload digests inside a WARC record, a different concern).
type DigestWriter struct {
	algorithm string
	h         hash.Hash
}

func NewDigestWriter() *DigestWriter {
	return &DigestWriter{algorithm: "sha256", h: sha256.New()}
}

func (d *DigestWriter) Write(p []byte) (int, error) { return d.h.Write(p) }

func (d *DigestWriter) String() string {
	return fmt.Sprintf("%s:%s", d.algorithm, hex.EncodeToString(d.h.Sum(nil)))
}

// ComputeDigest drains r (after the caller is done needing the bytes
// elsewhere, e.g. via io.TeeReader) and returns its content digest.
func ComputeDigest(r io.Reader) (string, error) {
	d := NewDigestWriter()
	if _, err := io.Copy(d, r); err != nil {
		return "", err
	}
	return d.String(), nil
}
