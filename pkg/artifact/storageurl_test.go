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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStorageURL_ranged(t *testing.T) {
	u, err := ParseStorageURL("file:///data/collections/c1/a1/active.warc?offset=100&length=50")
	require.NoError(t, err)
	assert.Equal(t, "file", u.Scheme)
	assert.Equal(t, "/data/collections/c1/a1/active.warc", u.Path)
	assert.True(t, u.HasRange)
	assert.EqualValues(t, 100, u.Offset)
	assert.EqualValues(t, 50, u.Length)
}

func TestParseStorageURL_wholeFile(t *testing.T) {
	u, err := ParseStorageURL("volatile:///tmp/warc1")
	require.NoError(t, err)
	assert.False(t, u.HasRange)
}

func TestParseStorageURL_malformed(t *testing.T) {
	tests := []string{
		"",
		"no-scheme-here",
		"file:///x?offset=abc&length=10",
		"file:///x?offset=10&length=abc",
		"file:///x?offset=-1&length=10",
	}
	for _, raw := range tests {
		_, err := ParseStorageURL(raw)
		assert.Errorf(t, err, "expected error for %q", raw)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestStorageURL_roundTrip(t *testing.T) {
	original := NewStorageURL("file", "/data/x.warc", 10, 20)
	parsed, err := ParseStorageURL(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestNewWholeFileStorageURL_hasNoRange(t *testing.T) {
	u := NewWholeFileStorageURL("file", "/data/x.warc")
	assert.False(t, u.HasRange)
	assert.Equal(t, "file:///data/x.warc", u.String())
}
