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
	"fmt"
	"io"
	"net/http"
	"strconv"

	warcrecord "github.com/nlnwa/warcrepo"
	"github.com/nlnwa/warcrepo/pkg/artifact"
)

// buildResponseRecord serializes data's HTTP status line, headers and
// payload into a response WARC record whose headers are exactly the §6
// bit-exact set: WARC-Type=response, Content-Type=application/http;
// msgtype=response, plus the X-Lockss-* identity fields. It returns the
// finalized record alongside the payload length and digest (computed over
// the body only, not the WARC wire framing - this is what §4.4.1's
// "content length and digest from the stream" and the S1 scenario's
// content-length=16-for-a-16-byte-body both mean).
func buildResponseRecord(data *artifact.Data) (warcrecord.Record, int64, string, error) {
	if data.Payload == nil {
		return nil, 0, "", artifact.NewInvalidArgument("store: artifact data has no payload")
	}
	body, err := data.Payload.Open()
	if err != nil {
		return nil, 0, "", err
	}
	defer func() { _ = body.Close() }()

	b := warcrecord.NewBuilder(warcrecord.Response)
	b.AddWarcHeader(warcrecord.ContentType, "application/http; msgtype=response")
	b.AddWarcHeader(warcrecord.XLockssArtifactID, data.Identifier.ID)
	b.AddWarcHeader(warcrecord.XLockssCollection, data.Identifier.Collection)
	b.AddWarcHeader(warcrecord.XLockssAuid, data.Identifier.Auid)
	b.AddWarcHeader(warcrecord.XLockssUri, data.Identifier.URI)
	b.AddWarcHeader(warcrecord.XLockssVersion, strconv.Itoa(data.Identifier.Version))

	header := data.Header
	if header == nil {
		header = make(http.Header)
	}
	statusText := http.StatusText(data.StatusCode)
	if _, err := fmt.Fprintf(b, "HTTP/1.1 %d %s\r\n", data.StatusCode, statusText); err != nil {
		return nil, 0, "", artifact.NewIoError(err, "store: write status line")
	}
	if err := header.Write(b); err != nil {
		return nil, 0, "", artifact.NewIoError(err, "store: write headers")
	}
	if _, err := io.WriteString(b, "\r\n"); err != nil {
		return nil, 0, "", artifact.NewIoError(err, "store: write header terminator")
	}

	digestWriter := artifact.NewDigestWriter()
	n, err := io.Copy(io.MultiWriter(b, digestWriter), body)
	if err != nil {
		return nil, 0, "", artifact.NewIoError(err, "store: copy payload")
	}
	b.AddWarcHeader(warcrecord.XLockssLength, strconv.FormatInt(n, 10))
	b.AddWarcHeader(warcrecord.XLockssDigest, digestWriter.String())

	rec, err := b.Finalize()
	if err != nil {
		if _, ok := err.(*warcrecord.Validation); !ok {
			return nil, 0, "", artifact.NewMalformedRecord("store: finalize artifact record: %v", err)
		}
	}
	return rec, n, digestWriter.String(), nil
}

// parseResponseRecord recovers an artifact.Data from a parsed response
// record: identity from the X-Lockss-* headers, status/headers/payload from
// the HTTPBlock. The payload is exposed as a single-consumption
// PayloadSource wrapping rec itself, so closing the returned stream also
// releases rec's block resources.
func parseResponseRecord(rec warcrecord.Record) (*artifact.Data, error) {
	hb, ok := rec.Block().(warcrecord.HTTPBlock)
	if !ok {
		return nil, artifact.NewMalformedRecord("store: record is not an HTTP response block")
	}
	wh := rec.WarcHeader()
	version, _ := strconv.Atoi(wh.Get(warcrecord.XLockssVersion))
	length, _ := strconv.ParseInt(wh.Get(warcrecord.XLockssLength), 10, 64)

	data := &artifact.Data{
		Identifier: &artifact.Identifier{
			ID:         wh.Get(warcrecord.XLockssArtifactID),
			Collection: wh.Get(warcrecord.XLockssCollection),
			Auid:       wh.Get(warcrecord.XLockssAuid),
			URI:        wh.Get(warcrecord.XLockssUri),
			Version:    version,
		},
		StatusCode:    hb.StatusCode(),
		Header:        hb.Header(),
		ContentLength: length,
		ContentDigest: wh.Get(warcrecord.XLockssDigest),
		Payload: artifact.NewPayloadSource(func() (io.ReadCloser, error) {
			payload, err := hb.PayloadBytes()
			if err != nil {
				return nil, err
			}
			return &recordPayloadCloser{Reader: payload, rec: rec}, nil
		}),
	}
	return data, nil
}

// recordPayloadCloser closes the owning record once the caller is done
// reading the payload, releasing the underlying file/diskbuffer.
type recordPayloadCloser struct {
	io.Reader
	rec warcrecord.Record
}

func (c *recordPayloadCloser) Close() error { return c.rec.Close() }
