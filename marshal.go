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
)

// Marshal writes record in WARC wire format to w: the version line, the
// header fields, a blank line, the content block, and the trailing blank
// line that separates records in a WARC file. It returns the number of
// bytes written.
func Marshal(w io.Writer, record Record) (int64, error) {
	var written int64

	n, err := fmt.Fprintf(w, "%s\r\n", record.Version())
	written += int64(n)
	if err != nil {
		return written, err
	}

	bw, err := record.WarcHeader().WriteTo(w)
	written += bw
	if err != nil {
		return written, err
	}

	n, err = w.Write([]byte(CRLF))
	written += int64(n)
	if err != nil {
		return written, err
	}

	r, err := record.Block().RawBytes()
	if err != nil {
		return written, err
	}
	bw, err = io.Copy(w, r)
	written += bw
	if err != nil {
		return written, err
	}

	n, err = w.Write([]byte(CRLFCRLF))
	written += int64(n)
	return written, err
}
