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

package warcrecord

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nlnwa/warcrepo/pkg/countingreader"
)

// Unmarshaler reads successive WARC records from an underlying file,
// tracking the byte offset each record started at (§4.1's "offset is
// caller-supplied" is satisfied by the caller reading LastOffset before
// calling Next again).
type Unmarshaler struct {
	r          *bufio.Reader
	opts       *options
	LastOffset int64
}

// NewUnmarshaler wraps r. opts controls header validation policy; it does
// not affect framing (gzip-per-record is auto-detected from the magic
// bytes, per §4.1).
func NewUnmarshaler(r *bufio.Reader, opts ...Option) *Unmarshaler {
	return &Unmarshaler{r: r, opts: newOptions(opts...)}
}

// Next parses the next record. It returns io.EOF once the underlying reader
// is exhausted.
//
// LastOffset only advances once the returned Record's Close is called: the
// content block and the CRLFCRLF record separator (or, for a gzip member,
// the compressed trailer) aren't actually consumed off the wire until then,
// since a PayloadBlock's content may be read lazily.
func (u *Unmarshaler) Next() (Record, int64, error) {
	offset := u.LastOffset

	magic, err := u.r.Peek(5)
	if err != nil {
		return nil, offset, err
	}

	var src *bufio.Reader
	var gz *gzip.Reader
	var byteCount *countingreader.Reader
	if magic[0] == 0x1f && magic[1] == 0x8b {
		// byteCount wraps the raw file stream so its count reflects the
		// compressed size of this gzip member, the unit LastOffset must
		// advance by.
		byteCount = countingreader.New(u.r)
		gz, err = gzip.NewReader(byteCount)
		if err != nil {
			return nil, offset, err
		}
		gz.Multistream(false)
		src = bufio.NewReader(gz)
	} else if bytes.Equal(magic, []byte("WARC/")) {
		byteCount = countingreader.New(u.r)
		src = bufio.NewReader(byteCount)
	} else {
		return nil, offset, newSyntaxError("expected start of record (WARC/ or gzip magic)", offset)
	}

	versionLine, err := src.ReadString('\n')
	if err != nil {
		return nil, offset, err
	}
	version, err := parseVersionLine(versionLine)
	if err != nil {
		return nil, offset, err
	}

	wf, err := parseHeaderFields(src)
	if err != nil {
		return nil, offset, err
	}

	var validation Validation
	rt, err := validateHeader(&wf, version, &validation, u.opts)
	if err != nil {
		return nil, offset, err
	}

	length, _ := strconv.ParseInt(wf.Get(ContentLength), 10, 64)
	limited := countingreader.NewLimited(src, length)

	r := &record{
		opts:       u.opts,
		version:    version,
		headers:    &wf,
		recordType: rt,
	}
	r.closer = func() error {
		_, err := io.Copy(io.Discard, limited)
		if err != nil {
			return err
		}
		// Consume the CRLFCRLF record separator Marshal always writes
		// after the content block, so byteCount reflects the whole record.
		trailer := make([]byte, len(CRLFCRLF))
		if _, err := io.ReadFull(src, trailer); err != nil {
			return err
		}
		if gz != nil {
			if err := gz.Close(); err != nil {
				return err
			}
		}
		u.LastOffset = offset + byteCount.N()
		return nil
	}

	contentType := strings.ToLower(wf.Get(ContentType))
	switch {
	case strings.HasPrefix(contentType, "application/http"):
		r.block, err = newHTTPBlock(limited)
	case strings.HasPrefix(contentType, "application/warc-fields"):
		r.block, err = newWarcFieldsBlock(limited)
	default:
		r.block = &genericBlock{rawBytes: limited}
	}
	if err != nil {
		return nil, offset, err
	}

	if !validation.Valid() {
		return r, offset, &validation
	}
	return r, offset, nil
}

func parseVersionLine(line string) (*Version, error) {
	if !strings.HasPrefix(line, "WARC/") {
		return nil, errors.New("missing WARC version line")
	}
	txt := strings.Trim(strings.TrimPrefix(line, "WARC/"), sphtcrlf)
	switch txt {
	case V1_0.txt:
		return V1_0, nil
	case V1_1.txt:
		return V1_1, nil
	default:
		return nil, fmt.Errorf("unsupported WARC version: %q", txt)
	}
}

// parseHeaderFields reads "Name: Value" lines from src up to and including
// the blank line that ends a WARC header, leaving src positioned at the
// first byte of the content block. Unlike parseWarcFields (used for
// application/warc-fields content blocks, which run to the end of a
// known-length reader), this stops at the first blank line.
func parseHeaderFields(src *bufio.Reader) (WarcFields, error) {
	var wf WarcFields
	for {
		line, err := src.ReadString('\n')
		if err != nil {
			return wf, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			return wf, nil
		}
		idx := strings.Index(trimmed, ":")
		if idx < 0 {
			return wf, newSyntaxError("malformed header line: "+trimmed, 0)
		}
		name := strings.TrimSpace(trimmed[:idx])
		value := strings.TrimSpace(trimmed[idx+1:])
		wf.Add(name, value)
	}
}
