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
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadSource_singleConsumption(t *testing.T) {
	opened := 0
	p := NewPayloadSource(func() (io.ReadCloser, error) {
		opened++
		return io.NopCloser(strings.NewReader("payload")), nil
	})

	rc, err := p.Open()
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.NoError(t, rc.Close())
	assert.Equal(t, "payload", string(b))
	assert.Equal(t, 1, opened)

	_, err = p.Open()
	assert.ErrorIs(t, err, StreamAlreadyConsumed)
	assert.Equal(t, 1, opened)
}
