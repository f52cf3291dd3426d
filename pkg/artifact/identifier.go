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
	"github.com/google/uuid"
	"github.com/nlnwa/whatwg-url/url"
)

// Identifier is the identity tuple of an artifact: a 128-bit id assigned on
// first ingest, plus the (collection, auid, uri, version) naming tuple.
// Version is a strictly positive integer, monotonically assigned by the
// repository facade - the store never assigns it.
type Identifier struct {
	ID         string
	Collection string
	Auid       string
	URI        string
	Version    int
}

// NewID generates a fresh artifact id.
func NewID() string {
	return uuid.New().String()
}

// ValidateURI normalizes and validates URI using the same whatwg-url parser
// the WARC codec uses for WARC-Target-URI. A URI that fails to parse is
// InvalidArgument, per §3's supplemental validation note.
func ValidateURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", NewInvalidArgument("malformed uri %q: %v", uri, err)
	}
	return u.Href(false), nil
}

// Validate checks that every required field of the identifier is present
// and that URI parses. Version is not checked here - it's either unset
// (pending assignment by the facade) or already assigned.
func (id *Identifier) Validate() error {
	if id == nil {
		return NewInvalidArgument("nil artifact identifier")
	}
	if id.Collection == "" {
		return NewInvalidArgument("missing collection")
	}
	if id.Auid == "" {
		return NewInvalidArgument("missing auid")
	}
	if id.URI == "" {
		return NewInvalidArgument("missing uri")
	}
	if _, err := ValidateURI(id.URI); err != nil {
		return err
	}
	return nil
}
