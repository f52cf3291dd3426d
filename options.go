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
	"github.com/google/uuid"
)

// errorPolicy describes how to handle a violation of the WARC header field
// grammar or the per-record-type legality rules.
type errorPolicy int8

const (
	ErrIgnore errorPolicy = iota // Don't validate, don't report.
	ErrWarn                      // Validate; collect violations in Validation, keep going.
	ErrFail                      // Validate; return the first violation as an error.
)

type options struct {
	version                 *Version
	errSpec                 errorPolicy
	errUnknownRecordType    errorPolicy
	addMissingRecordID      bool
	recordIDFunc            func() (string, error)
	addMissingContentLength bool
	addMissingDigest        bool
	defaultDigestAlgorithm  string
	defaultDigestEncoding   digestEncoding
	bufferTmpDir            string
	bufferMaxMemBytes       int64
}

func defaultOptions() options {
	return options{
		version:                 V1_1,
		errSpec:                 ErrWarn,
		errUnknownRecordType:    ErrWarn,
		addMissingRecordID:      true,
		recordIDFunc:            defaultRecordIDFunc,
		addMissingContentLength: true,
		addMissingDigest:        true,
		defaultDigestAlgorithm:  "sha1",
		defaultDigestEncoding:   Base32,
		bufferMaxMemBytes:       1 << 20,
	}
}

func defaultRecordIDFunc() (string, error) {
	return "<urn:uuid:" + uuid.New().String() + ">", nil
}

// Option configures record validation, marshaling and unmarshaling.
type Option interface {
	apply(*options)
}

type funcOption struct {
	f func(*options)
}

func (fo *funcOption) apply(o *options) { fo.f(o) }

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{f: f}
}

func newOptions(opts ...Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	return &o
}

// WithVersion sets the WARC version used for records built with this
// configuration. Defaults to WARC/1.1.
func WithVersion(version *Version) Option {
	return newFuncOption(func(o *options) { o.version = version })
}

// WithSpecViolationPolicy sets the policy for fields that violate §4.1's
// legality rules. Defaults to ErrWarn.
func WithSpecViolationPolicy(policy errorPolicy) Option {
	return newFuncOption(func(o *options) { o.errSpec = policy })
}

// WithUnknownRecordTypePolicy sets the policy for an unrecognized WARC-Type
// value. Defaults to ErrWarn.
func WithUnknownRecordTypePolicy(policy errorPolicy) Option {
	return newFuncOption(func(o *options) { o.errUnknownRecordType = policy })
}

// WithRecordIDFunc overrides how WARC-Record-ID values are generated.
// Expected output is a URI wrapped in "<" ">", per the WARC spec. Defaults
// to a urn:uuid.
func WithRecordIDFunc(f func() (string, error)) Option {
	return newFuncOption(func(o *options) { o.recordIDFunc = f })
}

// WithDefaultDigestAlgorithm sets which algorithm is used to compute a
// digest when building a record that doesn't already carry one. Valid
// values: md5, sha1, sha256, sha512. Defaults to sha1.
func WithDefaultDigestAlgorithm(algorithm string) Option {
	return newFuncOption(func(o *options) { o.defaultDigestAlgorithm = algorithm })
}

// WithDefaultDigestEncoding sets the text encoding used when formatting a
// computed digest. Defaults to Base32.
func WithDefaultDigestEncoding(encoding digestEncoding) Option {
	return newFuncOption(func(o *options) { o.defaultDigestEncoding = encoding })
}

// WithBufferTmpDir sets the directory the builder's disk-spilling payload
// buffer uses once it exceeds WithBufferMaxMemBytes. Defaults to os.TempDir.
func WithBufferTmpDir(dir string) Option {
	return newFuncOption(func(o *options) { o.bufferTmpDir = dir })
}

// WithBufferMaxMemBytes sets how much of a record's content block the
// builder keeps in memory before spilling to disk. Defaults to 1 MiB.
func WithBufferMaxMemBytes(size int64) Option {
	return newFuncOption(func(o *options) { o.bufferMaxMemBytes = size })
}

// WithStrictValidation fails fast on the first header violation or unknown
// record type, instead of warning and continuing.
func WithStrictValidation() Option {
	return newFuncOption(func(o *options) {
		o.errSpec = ErrFail
		o.errUnknownRecordType = ErrFail
	})
}
