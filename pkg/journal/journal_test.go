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

package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nlnwa/warcrepo/pkg/artifact"
)

func TestAppendAndReplay_lastWriteWins(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "lockss-repo.warc")

	j, err := Open(path)
	assert.NoError(err)

	_, err = j.Append(artifact.Metadata{ArtifactID: "a1", Committed: false, Deleted: false})
	assert.NoError(err)
	_, err = j.Append(artifact.Metadata{ArtifactID: "a1", Committed: true, Deleted: false})
	assert.NoError(err)
	_, err = j.Append(artifact.Metadata{ArtifactID: "a2", Committed: true, Deleted: false})
	assert.NoError(err)
	_, err = j.Append(artifact.Metadata{ArtifactID: "a2", Committed: true, Deleted: true})
	assert.NoError(err)
	assert.NoError(j.Close())

	state, err := Replay(path)
	assert.NoError(err)
	assert.Len(state, 2)
	assert.True(state["a1"].Committed)
	assert.False(state["a1"].Deleted)
	assert.True(state["a2"].Committed)
	assert.True(state["a2"].Deleted)
}

func TestReplay_missingFileIsEmpty(t *testing.T) {
	assert := assert.New(t)
	state, err := Replay(filepath.Join(t.TempDir(), "does-not-exist.warc"))
	assert.NoError(err)
	assert.Empty(state)
}

func TestAppend_storageURLOverride(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "lockss-repo.warc")

	j, err := Open(path)
	assert.NoError(err)
	_, err = j.Append(artifact.Metadata{
		ArtifactID:         "a1",
		Committed:          true,
		StorageURLOverride: "file:///data/collections/c1/au-x/artifacts_1.warc?offset=0&length=100",
	})
	assert.NoError(err)
	assert.NoError(j.Close())

	state, err := Replay(path)
	assert.NoError(err)
	assert.Equal("file:///data/collections/c1/au-x/artifacts_1.warc?offset=0&length=100", state["a1"].StorageURLOverride)
}
