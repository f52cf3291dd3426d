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
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// PayloadSource is a single-consumption lazy byte sequence: the first call
// to Open succeeds, every subsequent call fails with StreamAlreadyConsumed.
// This mirrors the codec's genericBlock/httpBlock readOp guard, generalized
// to the artifact's public payload contract (§9 "lazy stream consumption").
type PayloadSource struct {
	open     func() (io.ReadCloser, error)
	consumed int32
}

// NewPayloadSource wraps an opener that is invoked at most once.
func NewPayloadSource(open func() (io.ReadCloser, error)) *PayloadSource {
	return &PayloadSource{open: open}
}

// Open returns the payload reader. It may be called exactly once.
func (p *PayloadSource) Open() (io.ReadCloser, error) {
	if !atomic.CompareAndSwapInt32(&p.consumed, 0, 1) {
		return nil, StreamAlreadyConsumed
	}
	return p.open()
}

// Data is the ingestible/readable artifact: an identifier, an HTTP response
// status line and headers, a payload byte stream, and derived content
// length/digest. Once persisted it also carries a storage URL.
type Data struct {
	Identifier     *Identifier
	StatusCode     int
	Header         http.Header
	Payload        *PayloadSource
	ContentLength  int64
	ContentDigest  string // "algorithm:hex", e.g. "sha256:deadbeef..."
	CollectionDate time.Time
	StorageURL     string
}
