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
)

func TestValidate_missingFields(t *testing.T) {
	tests := []struct {
		name string
		id   *Identifier
	}{
		{"nil", nil},
		{"missing collection", &Identifier{Auid: "au1", URI: "https://example.com"}},
		{"missing auid", &Identifier{Collection: "c1", URI: "https://example.com"}},
		{"missing uri", &Identifier{Collection: "c1", Auid: "au1"}},
		{"malformed uri", &Identifier{Collection: "c1", Auid: "au1", URI: "://not-a-url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			assert.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestValidate_ok(t *testing.T) {
	id := &Identifier{Collection: "c1", Auid: "au1", URI: "https://example.com/x"}
	assert.NoError(t, id.Validate())
}

func TestNewID_unique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
