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
	"io"
	"sort"
	"strings"
)

// NameValue is one WARC header field.
type NameValue struct {
	Name  string
	Value string
}

// WarcFields is an ordered multimap of WARC header fields, also used
// verbatim as the payload shape of application/warc-fields blocks (warcinfo
// records, and the metadata journal).
type WarcFields []*NameValue

// Get returns the first value associated with name, or "" if absent.
func (wf *WarcFields) Get(name string) string {
	for _, nv := range *wf {
		if strings.EqualFold(nv.Name, name) {
			return nv.Value
		}
	}
	return ""
}

// GetAll returns every value associated with name, in insertion order.
func (wf *WarcFields) GetAll(name string) []string {
	var result []string
	for _, nv := range *wf {
		if strings.EqualFold(nv.Name, name) {
			result = append(result, nv.Value)
		}
	}
	return result
}

func (wf *WarcFields) Has(name string) bool {
	for _, nv := range *wf {
		if strings.EqualFold(nv.Name, name) {
			return true
		}
	}
	return false
}

// Names returns the distinct field names present, in first-seen order.
func (wf *WarcFields) Names() []string {
	seen := make(map[string]bool)
	var result []string
	for _, nv := range *wf {
		if !seen[nv.Name] {
			seen[nv.Name] = true
			result = append(result, nv.Name)
		}
	}
	return result
}

// Add appends a field, allowing repeated names.
func (wf *WarcFields) Add(name, value string) {
	*wf = append(*wf, &NameValue{Name: name, Value: value})
}

// Set replaces all existing values for name with a single value.
func (wf *WarcFields) Set(name, value string) {
	isSet := false
	kept := (*wf)[:0]
	for _, nv := range *wf {
		if strings.EqualFold(nv.Name, name) {
			if !isSet {
				nv.Value = value
				kept = append(kept, nv)
				isSet = true
			}
			continue
		}
		kept = append(kept, nv)
	}
	*wf = kept
	if !isSet {
		*wf = append(*wf, &NameValue{Name: name, Value: value})
	}
}

func (wf *WarcFields) Delete(name string) {
	var result []*NameValue
	for _, nv := range *wf {
		if !strings.EqualFold(nv.Name, name) {
			result = append(result, nv)
		}
	}
	*wf = result
}

func (wf *WarcFields) Sort() {
	sort.SliceStable(*wf, func(i, j int) bool {
		return (*wf)[i].Name < (*wf)[j].Name
	})
}

// WriteTo writes the fields CRLF-terminated, as they appear in a WARC
// header or an application/warc-fields block.
func (wf *WarcFields) WriteTo(w io.Writer) (bytesWritten int64, err error) {
	var n int
	for _, field := range *wf {
		n, err = fmt.Fprintf(w, "%s: %s\r\n", field.Name, field.Value)
		bytesWritten += int64(n)
		if err != nil {
			return
		}
	}
	return
}

func (wf *WarcFields) String() string {
	sb := &strings.Builder{}
	_, _ = wf.WriteTo(sb)
	return sb.String()
}
