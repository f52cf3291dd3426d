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
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

type digestEncoding uint8

const (
	unknownEncoding digestEncoding = iota
	Base16
	Base32
	Base64
)

func (d digestEncoding) encode(dig *digest) string {
	sum := dig.Sum(nil)
	switch d {
	case Base16:
		return strings.ToLower(hex.EncodeToString(sum))
	case Base32:
		return base32.StdEncoding.EncodeToString(sum)
	case Base64:
		return base64.StdEncoding.EncodeToString(sum)
	default:
		return string(sum)
	}
}

func detectEncoding(algorithm, digestValue string, defaultEncoding digestEncoding) digestEncoding {
	var algorithmLength int
	switch algorithm {
	case "md5":
		algorithmLength = md5.Size
	case "sha1":
		algorithmLength = sha1.Size
	case "sha256":
		algorithmLength = sha256.Size
	case "sha512":
		algorithmLength = sha512.Size
	}
	switch len(digestValue) {
	case algorithmLength * 2:
		return Base16
	case base32.StdEncoding.EncodedLen(algorithmLength):
		return Base32
	case base64.StdEncoding.EncodedLen(algorithmLength):
		return Base64
	}
	return defaultEncoding
}

// digest wraps a running hash together with the algorithm name and, when
// parsed from a header value, the hash that value claims - so the computed
// sum can be checked against it once the block has been fully read.
type digest struct {
	hash.Hash
	algorithm string
	claimed   string
	encoding  digestEncoding
}

func (d *digest) format() string {
	return fmt.Sprintf("%s:%s", d.algorithm, d.encoding.encode(d))
}

// validate compares the claimed digest (parsed from a WARC-Block-Digest or
// WARC-Payload-Digest header) against the actual running sum.
func (d *digest) validate() error {
	if d.claimed == "" {
		return nil
	}
	computed := d.encoding.encode(d)
	if !strings.EqualFold(d.claimed, computed) {
		return fmt.Errorf("wrong digest: expected %s:%s, computed %s:%s", d.algorithm, d.claimed, d.algorithm, computed)
	}
	return nil
}

// newDigest parses a "algorithm:hash" field value (hash may be empty, as
// when starting a fresh digest for a record under construction).
func newDigest(fieldValue string, defaultAlgorithm string, defaultEncoding digestEncoding) (*digest, error) {
	algorithm := defaultAlgorithm
	var claimed string
	if fieldValue != "" {
		parts := strings.SplitN(fieldValue, ":", 2)
		algorithm = strings.ToLower(parts[0])
		if len(parts) > 1 {
			claimed = parts[1]
		}
	}
	encoding := detectEncoding(algorithm, claimed, defaultEncoding)

	var h hash.Hash
	switch algorithm {
	case "md5":
		h = md5.New()
	case "sha1", "":
		algorithm = "sha1"
		h = sha1.New()
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", algorithm)
	}
	return &digest{Hash: h, algorithm: algorithm, claimed: claimed, encoding: encoding}, nil
}

// digestFilterReader feeds every byte read through it into one or more
// digests, without altering what the caller sees.
type digestFilterReader struct {
	src     io.Reader
	digests []*digest
}

func newDigestFilterReader(src io.Reader, digests ...*digest) *digestFilterReader {
	return &digestFilterReader{src: src, digests: digests}
}

func (d *digestFilterReader) Read(p []byte) (n int, err error) {
	n, err = d.src.Read(p)
	if n > 0 {
		for _, dd := range d.digests {
			_, _ = dd.Write(p[:n])
		}
	}
	return
}
