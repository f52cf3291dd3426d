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

/*
Package warcrecord implements the WARC/1.0 and WARC/1.1 record format:
https://iipc.github.io/warc-specifications/specifications/warc-format/warc-1.1/

It is the codec layer used by the artifact data store to frame artifacts as
append-only WARC records, and by the metadata journal to frame per archival
unit metadata records as warcinfo/metadata records. It knows nothing about
collections, archival units or artifact versioning; that is the concern of
the packages built on top of it.

Creating a record

	rb := warcrecord.NewBuilder(warcrecord.Response)
	rb.AddWarcHeader(warcrecord.WarcTargetURI, "https://example.com/")
	rb.WriteString("HTTP/1.1 200 OK\r\n\r\nhello")
	record, err := rb.Finalize()

Reading records from a file

	r := warcrecord.NewUnmarshaler(bufio.NewReader(f), opts...)
	for {
		record, offset, err := r.Next()
		if err == io.EOF {
			break
		}
		...
	}
*/
package warcrecord
