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
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nlnwa/whatwg-url/url"
)

// WARC header field name constants.
const (
	ContentLength             = "Content-Length"
	ContentType               = "Content-Type"
	WarcBlockDigest           = "WARC-Block-Digest"
	WarcConcurrentTo          = "WARC-Concurrent-To"
	WarcDate                  = "WARC-Date"
	WarcFilename              = "WARC-Filename"
	WarcIPAddress             = "WARC-IP-Address"
	WarcIdentifiedPayloadType = "WARC-Identified-Payload-Type"
	WarcPayloadDigest         = "WARC-Payload-Digest"
	WarcProfile               = "WARC-Profile"
	WarcRecordID              = "WARC-Record-ID"
	WarcRefersTo              = "WARC-Refers-To"
	WarcRefersToDate          = "WARC-Refers-To-Date"
	WarcRefersToTargetURI     = "WARC-Refers-To-Target-URI"
	WarcSegmentNumber         = "WARC-Segment-Number"
	WarcSegmentOriginID       = "WARC-Segment-Origin-ID"
	WarcSegmentTotalLength    = "WARC-Segment-Total-Length"
	WarcTargetURI             = "WARC-Target-URI"
	WarcTruncated             = "WARC-Truncated"
	WarcType                  = "WARC-Type"
	WarcWarcinfoID            = "WARC-Warcinfo-ID"

	// Custom fields carrying the artifact identifier alongside the raw HTTP
	// response, so that a record can be resolved to an artifact without
	// consulting the index (§4.1, §6).
	XLockssArtifactID = "X-Lockss-Artifact-Id"
	XLockssCollection = "X-Lockss-Collection"
	XLockssAuid       = "X-Lockss-Auid"
	XLockssUri        = "X-Lockss-Uri"
	XLockssVersion    = "X-Lockss-Version"
	XLockssLength     = "X-Lockss-Length"
	XLockssDigest     = "X-Lockss-Digest"
)

var requiredFields = []string{WarcRecordID, ContentLength, WarcDate, WarcType}

type validationFunc func(opts *options, name, value string, version *Version, recordType RecordType, def fieldDef) (string, error)

type fieldDef struct {
	name          string
	validate      validationFunc
	repeatable    bool
	supportedRec  RecordType
	supportedSpec uint8
}

const allSpecs = 0xff

var allRecordTypes = Warcinfo | Response | Resource | Request | Metadata | Revisit | Conversion | Continuation

var fieldDefs = []fieldDef{
	{"", pUnknown, true, allRecordTypes, allSpecs},
	{ContentLength, pLong, false, allRecordTypes, allSpecs},
	{ContentType, pString, false, allRecordTypes, allSpecs},
	{WarcBlockDigest, pDigest, false, allRecordTypes, allSpecs},
	{WarcConcurrentTo, pWarcID, true, Response | Resource | Request | Metadata | Revisit, allSpecs},
	{WarcDate, pTime, false, allRecordTypes, allSpecs},
	{WarcFilename, pString, false, Warcinfo, allSpecs},
	{WarcIPAddress, pIP, false, Response | Resource | Request | Metadata | Revisit, allSpecs},
	{WarcIdentifiedPayloadType, pString, false, allRecordTypes, allSpecs},
	{WarcPayloadDigest, pDigest, false, allRecordTypes, allSpecs},
	{WarcProfile, pURI, false, Revisit, allSpecs},
	{WarcRecordID, pWarcID, false, allRecordTypes, allSpecs},
	{WarcRefersTo, pWarcID, false, Metadata | Revisit | Conversion, allSpecs},
	{WarcRefersToDate, pTime, false, Revisit, allSpecs},
	{WarcRefersToTargetURI, pURI, false, Revisit, allSpecs},
	{WarcSegmentNumber, pInt, false, allRecordTypes, allSpecs},
	{WarcSegmentOriginID, pWarcID, false, Continuation, allSpecs},
	{WarcSegmentTotalLength, pLong, false, Continuation, allSpecs},
	{WarcTargetURI, pURI, false, allRecordTypes, allSpecs},
	{WarcTruncated, pString, false, allRecordTypes, allSpecs},
	{WarcType, pString, false, allRecordTypes, allSpecs},
	{WarcWarcinfoID, pWarcID, false, Response | Resource | Request | Metadata | Revisit | Conversion | Continuation, allSpecs},

	// X-Lockss-* carry repository identifiers, not WARC-spec values. None is
	// required; each is checked for legality in its record types, and Uri,
	// Version and Length are also checked as a URI, int and long.
	{XLockssArtifactID, pString, false, Response | Warcinfo, allSpecs},
	{XLockssCollection, pString, false, Response | Warcinfo, allSpecs},
	{XLockssAuid, pString, false, Response | Warcinfo, allSpecs},
	{XLockssUri, pURI, false, Response, allSpecs},
	{XLockssVersion, pInt, false, Response, allSpecs},
	{XLockssLength, pLong, false, Response, allSpecs},
	{XLockssDigest, pString, false, Response, allSpecs},
}

var lcHdrNameToDef = make(map[string]fieldDef)

func init() {
	for _, fd := range fieldDefs {
		lcHdrNameToDef[strings.ToLower(fd.name)] = fd
	}
}

func normalizeName(name string) (string, fieldDef) {
	lc := strings.ToLower(name)
	if f, ok := lcHdrNameToDef[lc]; ok && f.name != "" {
		return f.name, f
	}
	return http.CanonicalHeaderKey(name), lcHdrNameToDef[""]
}

// validateHeader validates every field of wf against its definition and
// resolves the record's type, applying opts.errSpec to decide whether a
// violation is ignored, collected in validation, or returned as an error.
func validateHeader(wf *WarcFields, version *Version, validation *Validation, opts *options) (RecordType, error) {
	rt, err := resolveRecordType(wf, validation, opts)
	if err != nil {
		return rt, err
	}

	if opts.errSpec == ErrIgnore {
		return rt, nil
	}

	for _, nv := range *wf {
		name, def := normalizeName(nv.Name)
		value, verr := def.validate(opts, name, nv.Value, version, rt, def)
		nv.Name = name
		nv.Value = value
		if verr != nil {
			switch opts.errSpec {
			case ErrWarn:
				validation.addError(newHeaderFieldError(name, verr.Error()))
			case ErrFail:
				return rt, newHeaderFieldError(name, verr.Error())
			}
		}
		if !def.repeatable && len(wf.GetAll(name)) > 1 {
			switch opts.errSpec {
			case ErrWarn:
				validation.addError(newHeaderFieldError(name, "field occurs more than once"))
			case ErrFail:
				return rt, newHeaderFieldError(name, "field occurs more than once")
			}
		}
	}

	for _, f := range requiredFields {
		if !wf.Has(f) {
			if err := reportMissing(validation, opts, f); err != nil {
				return rt, err
			}
		}
	}
	contentLength, _ := strconv.ParseInt(wf.Get(ContentLength), 10, 64)
	if rt != Continuation && contentLength > 0 && !wf.Has(ContentType) {
		if err := reportMissing(validation, opts, ContentType); err != nil {
			return rt, err
		}
	}

	if (Warcinfo|Conversion|Continuation)&rt != 0 && wf.Has(WarcConcurrentTo) {
		msg := fmt.Sprintf("field %s is not allowed for record type %s", WarcConcurrentTo, rt)
		switch opts.errSpec {
		case ErrWarn:
			validation.addError(newHeaderFieldError(WarcConcurrentTo, msg))
		case ErrFail:
			return rt, newHeaderFieldError(WarcConcurrentTo, msg)
		}
	}

	return rt, nil
}

func reportMissing(validation *Validation, opts *options, field string) error {
	msg := fmt.Sprintf("missing required field: %s", field)
	switch opts.errSpec {
	case ErrWarn:
		validation.addError(newHeaderFieldError(field, msg))
	case ErrFail:
		return newHeaderFieldError(field, msg)
	}
	return nil
}

func resolveRecordType(wf *WarcFields, validation *Validation, opts *options) (RecordType, error) {
	typeField := wf.Get(WarcType)
	if typeField == "" {
		if opts.errSpec == ErrFail {
			return 0, newHeaderFieldError(WarcType, "missing required field WARC-Type")
		}
		if opts.errSpec == ErrWarn {
			validation.addError(newHeaderFieldError(WarcType, "missing required field WARC-Type"))
		}
		return 0, nil
	}
	rt := stringToRecordType(strings.ToLower(typeField))
	if rt == 0 {
		msg := fmt.Sprintf("unrecognized value %q in field WARC-Type", typeField)
		switch opts.errUnknownRecordType {
		case ErrWarn:
			validation.addError(newHeaderFieldError(WarcType, msg))
		case ErrFail:
			return rt, newHeaderFieldError(WarcType, msg)
		}
	}
	return rt, nil
}

func checkLegal(opts *options, name string, version *Version, recordType RecordType, def fieldDef) (shouldValidate bool, err error) {
	if recordType == 0 {
		// Unknown record type: don't second-guess its fields.
		return false, nil
	}
	if recordType&def.supportedRec == 0 {
		return false, fmt.Errorf("field %q is not legal in record type %q", name, recordType)
	}
	return true, nil
}

var pUnknown validationFunc = func(opts *options, name, value string, version *Version, recordType RecordType, def fieldDef) (string, error) {
	return value, nil
}

var pString validationFunc = func(opts *options, name, value string, version *Version, recordType RecordType, def fieldDef) (string, error) {
	_, err := checkLegal(opts, name, version, recordType, def)
	return value, err
}

var pURI validationFunc = func(opts *options, name, value string, version *Version, recordType RecordType, def fieldDef) (string, error) {
	ok, err := checkLegal(opts, name, version, recordType, def)
	if err != nil {
		return value, err
	}
	if ok {
		if _, err := url.Parse(value); err != nil {
			return value, fmt.Errorf("illegal URI %q: %w", value, err)
		}
	}
	return value, nil
}

var pIP validationFunc = func(opts *options, name, value string, version *Version, recordType RecordType, def fieldDef) (string, error) {
	ok, err := checkLegal(opts, name, version, recordType, def)
	if err != nil {
		return value, err
	}
	if ok && net.ParseIP(value) == nil {
		return value, fmt.Errorf("illegal ip address: %s", value)
	}
	return value, nil
}

var pTime validationFunc = func(opts *options, name, value string, version *Version, recordType RecordType, def fieldDef) (string, error) {
	ok, err := checkLegal(opts, name, version, recordType, def)
	if err != nil {
		return value, err
	}
	if ok {
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			return value, err
		}
	}
	return value, nil
}

var pWarcID validationFunc = func(opts *options, name, value string, version *Version, recordType RecordType, def fieldDef) (string, error) {
	ok, err := checkLegal(opts, name, version, recordType, def)
	if err != nil {
		return value, err
	}
	if ok {
		v := strings.Trim(value, "<>")
		if len(value) != len(v)+2 {
			return value, fmt.Errorf("WARC id %q must be encapsulated by <>", value)
		}
		if _, err := url.Parse(v); err != nil {
			return value, fmt.Errorf("illegal WARC id %q: %w", value, err)
		}
	}
	return value, nil
}

var pInt validationFunc = func(opts *options, name, value string, version *Version, recordType RecordType, def fieldDef) (string, error) {
	ok, err := checkLegal(opts, name, version, recordType, def)
	if err != nil {
		return value, err
	}
	if ok {
		if _, err := strconv.Atoi(value); err != nil {
			return value, err
		}
	}
	return value, nil
}

var pLong validationFunc = func(opts *options, name, value string, version *Version, recordType RecordType, def fieldDef) (string, error) {
	ok, err := checkLegal(opts, name, version, recordType, def)
	if err != nil {
		return value, err
	}
	if ok {
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return value, err
		}
	}
	return value, nil
}

var pDigest validationFunc = func(opts *options, name, value string, version *Version, recordType RecordType, def fieldDef) (string, error) {
	_, err := checkLegal(opts, name, version, recordType, def)
	return value, err
}
