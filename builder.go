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
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/nlnwa/warcrepo/internal/diskbuffer"
	"github.com/nlnwa/warcrepo/internal/timestamp"
)

// Builder accumulates a record's content block before producing a finalized,
// immutable Record. Content-Length and the block digest are computed from
// what was actually written. A caller-supplied Content-Length must match the
// written size; a caller-supplied WARC-Block-Digest is kept as given and is
// not checked.
type Builder interface {
	io.Writer
	io.StringWriter
	io.ReaderFrom
	AddWarcHeader(name, value string)
	Finalize() (Record, error)
}

type builder struct {
	opts       *options
	version    *Version
	headers    *WarcFields
	recordType RecordType
	content    diskbuffer.Buffer
}

// NewBuilder starts a new record of the given type under the supplied
// options. WARC-Type is set immediately; WARC-Record-ID, WARC-Date,
// Content-Length and the block digest are filled in by Finalize if missing.
func NewBuilder(recordType RecordType, opts ...Option) Builder {
	o := newOptions(opts...)
	var bufOpts []diskbuffer.Option
	if o.bufferTmpDir != "" {
		bufOpts = append(bufOpts, diskbuffer.WithTmpDir(o.bufferTmpDir))
	}
	if o.bufferMaxMemBytes > 0 {
		bufOpts = append(bufOpts, diskbuffer.WithMaxMemBytes(o.bufferMaxMemBytes))
	}
	b := &builder{
		opts:       o,
		version:    o.version,
		recordType: recordType,
		headers:    &WarcFields{},
		content:    diskbuffer.New(bufOpts...),
	}
	b.headers.Set(WarcType, recordType.String())
	return b
}

func (b *builder) Write(p []byte) (int, error)            { return b.content.Write(p) }
func (b *builder) WriteString(s string) (int, error)       { return b.content.WriteString(s) }
func (b *builder) ReadFrom(r io.Reader) (int64, error)     { return b.content.ReadFrom(r) }
func (b *builder) AddWarcHeader(name, value string)        { b.headers.Add(name, value) }

func (b *builder) Finalize() (Record, error) {
	if b.opts.addMissingRecordID && !b.headers.Has(WarcRecordID) {
		id, err := b.opts.recordIDFunc()
		if err != nil {
			return nil, err
		}
		b.headers.Set(WarcRecordID, id)
	}
	if !b.headers.Has(WarcDate) {
		b.headers.Set(WarcDate, timestamp.UTCNowW3cIso8601())
	}

	size := strconv.FormatInt(b.content.Size(), 10)
	if b.headers.Has(ContentLength) {
		if b.headers.Get(ContentLength) != size {
			return nil, errors.New("warcrecord: content length header does not match actual content size")
		}
	} else if b.opts.addMissingContentLength {
		b.headers.Set(ContentLength, size)
	}

	if b.opts.addMissingDigest && !b.headers.Has(WarcBlockDigest) {
		d, err := newDigest("", b.opts.defaultDigestAlgorithm, b.opts.defaultDigestEncoding)
		if err != nil {
			return nil, err
		}
		if _, err := b.content.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.Copy(d, b.content); err != nil {
			return nil, err
		}
		b.headers.Set(WarcBlockDigest, d.format())
	}
	if _, err := b.content.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var validation Validation
	rt, err := validateHeader(b.headers, b.version, &validation, b.opts)
	if err != nil {
		return nil, err
	}

	r := &record{
		opts:       b.opts,
		version:    b.version,
		headers:    b.headers,
		recordType: rt,
		closer:     b.content.Close,
	}

	if strings.HasPrefix(strings.ToLower(b.headers.Get(ContentType)), "application/http") {
		hb, err := newHTTPBlock(b.content)
		if err != nil {
			return nil, err
		}
		r.block = hb
	} else if strings.HasPrefix(strings.ToLower(b.headers.Get(ContentType)), "application/warc-fields") {
		wb, err := newWarcFieldsBlock(b.content)
		if err != nil {
			return nil, err
		}
		r.block = wb
	} else {
		r.block = &genericBlock{rawBytes: b.content}
	}

	if validation.Valid() {
		return r, nil
	}
	return r, &validation
}
