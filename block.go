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
	"errors"
	"io"
	"net/http"
	"strings"
)

// Block is the content block of a WARC record as defined by the spec:
// https://iipc.github.io/warc-specifications/specifications/warc-format/warc-1.1/#warc-record-content-block
//
// RawBytes enforces single-read semantics: the underlying content is read
// from the start of the block, and RawBytes (or PayloadBytes, for a
// PayloadBlock) may hand it out only once; a second call fails.
// BlockDigest only formats a digest already held by the block and never
// reads the content.
type Block interface {
	RawBytes() (io.Reader, error)
	BlockDigest() string
}

// PayloadBlock is a Block with a distinguishable payload (the body, net of
// whatever protocol framing - e.g. the HTTP status line and headers -
// precedes it).
type PayloadBlock interface {
	Block
	PayloadBytes() (io.Reader, error)
	PayloadDigest() string
}

// HTTPBlock is a PayloadBlock whose framing is an HTTP status line plus
// headers, decoded with net/http. Callers needing the status code and
// response headers of a response record (rather than just its raw or
// payload bytes) type-assert Block() to this interface.
type HTTPBlock interface {
	PayloadBlock
	StatusCode() int
	Proto() string
	Header() http.Header
}

// readOp tracks whether RawBytes/PayloadBytes has already been called, so a
// second call fails fast instead of silently returning a drained reader.
type readOp int8

const (
	opInitial readOp = iota
	opRawBytes
	opPayloadBytes
)

var errContentReAccessed = errors.New("warcrecord: block content accessed more than once")

// genericBlock is used for records whose Content-Type is neither
// application/http nor application/warc-fields.
type genericBlock struct {
	rawBytes    io.Reader
	blockDigest *digest
	readOp      readOp
}

func (b *genericBlock) RawBytes() (io.Reader, error) {
	if b.readOp != opInitial {
		return nil, errContentReAccessed
	}
	b.readOp = opRawBytes
	return b.rawBytes, nil
}

func (b *genericBlock) BlockDigest() string {
	if b.blockDigest == nil {
		return ""
	}
	return b.blockDigest.format()
}

// httpBlock wraps an HTTP response or request, decoded with net/http so the
// status line, headers and body follow exactly the same parsing rules the
// store uses when it later re-reads the artifact.
type httpBlock struct {
	rawBytes      io.Reader
	blockDigest   *digest
	payloadDigest *digest
	readOp        readOp

	statusCode int
	proto      string
	header     http.Header
	payload    io.Reader
}

// newHTTPBlock parses the HTTP response line and headers from r (the raw
// WARC content block for a response/resource/request record), leaving the
// remaining bytes available as the payload.
func newHTTPBlock(r io.Reader) (*httpBlock, error) {
	br := bufio.NewReader(r)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return nil, err
	}
	head := &bytes.Buffer{}
	head.WriteString(resp.Proto + " " + resp.Status + "\r\n")
	_ = resp.Header.Write(head)
	head.WriteString("\r\n")

	return &httpBlock{
		statusCode: resp.StatusCode,
		proto:      resp.Proto,
		header:     resp.Header,
		payload:    resp.Body,
		rawBytes:   io.MultiReader(bytes.NewReader(head.Bytes()), resp.Body),
	}, nil
}

func (b *httpBlock) StatusCode() int       { return b.statusCode }
func (b *httpBlock) Proto() string         { return b.proto }
func (b *httpBlock) Header() http.Header   { return b.header }

func (b *httpBlock) RawBytes() (io.Reader, error) {
	if b.readOp != opInitial {
		return nil, errContentReAccessed
	}
	b.readOp = opRawBytes
	return b.rawBytes, nil
}

func (b *httpBlock) PayloadBytes() (io.Reader, error) {
	if b.readOp != opInitial {
		return nil, errContentReAccessed
	}
	b.readOp = opPayloadBytes
	return b.payload, nil
}

func (b *httpBlock) BlockDigest() string {
	if b.blockDigest == nil {
		return ""
	}
	return b.blockDigest.format()
}

func (b *httpBlock) PayloadDigest() string {
	if b.payloadDigest == nil {
		return ""
	}
	return b.payloadDigest.format()
}

// warcFieldsBlock is used for application/warc-fields content: warcinfo
// records, and every record in the per-AU metadata journal.
type warcFieldsBlock struct {
	fields      WarcFields
	blockDigest *digest
	readOp      readOp
}

func newWarcFieldsBlock(r io.Reader) (*warcFieldsBlock, error) {
	fields, err := parseWarcFields(r)
	if err != nil {
		return nil, err
	}
	return &warcFieldsBlock{fields: fields}, nil
}

func (b *warcFieldsBlock) Fields() *WarcFields { return &b.fields }

func (b *warcFieldsBlock) RawBytes() (io.Reader, error) {
	if b.readOp != opInitial {
		return nil, errContentReAccessed
	}
	b.readOp = opRawBytes
	return strings.NewReader(b.fields.String()), nil
}

func (b *warcFieldsBlock) BlockDigest() string {
	if b.blockDigest == nil {
		return ""
	}
	return b.blockDigest.format()
}

// parseWarcFields parses an application/warc-fields payload: one "Name:
// Value" pair per CRLF-terminated line, same grammar as a WARC header.
func parseWarcFields(r io.Reader) (WarcFields, error) {
	var wf WarcFields
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			idx := strings.Index(trimmed, ":")
			if idx < 0 {
				return nil, newSyntaxError("malformed warc-fields line: "+trimmed, 0)
			}
			name := strings.TrimSpace(trimmed[:idx])
			value := strings.TrimSpace(trimmed[idx+1:])
			wf.Add(name, value)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return wf, nil
}
