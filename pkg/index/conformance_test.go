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

package index

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nlnwa/warcrepo/pkg/artifact"
)

// factories is the set of ArtifactIndex implementations under test; every
// test in this file runs once per factory so both backends satisfy the
// same contract.
func factories(t *testing.T) map[string]func() ArtifactIndex {
	return map[string]func() ArtifactIndex{
		"MemIndex": func() ArtifactIndex { return NewMemIndex() },
		"BadgerIndex": func() ArtifactIndex {
			idx, err := OpenBadgerIndex(t.TempDir())
			if err != nil {
				t.Fatalf("open badger index: %v", err)
			}
			t.Cleanup(func() { _ = idx.Close() })
			return idx
		},
	}
}

func newData(id, collection, auid, uri string, version int, length int64) *artifact.Data {
	return &artifact.Data{
		Identifier: &artifact.Identifier{
			ID:         id,
			Collection: collection,
			Auid:       auid,
			URI:        uri,
			Version:    version,
		},
		ContentLength:  length,
		ContentDigest:  "sha256:deadbeef",
		CollectionDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		StorageURL:     "volatile://tmp?offset=0&length=" + strconv.FormatInt(length, 10),
	}
}

func forEachIndex(t *testing.T, fn func(t *testing.T, idx ArtifactIndex)) {
	for name, factory := range factories(t) {
		name, factory := name, factory
		t.Run(name, func(t *testing.T) {
			fn(t, factory())
		})
	}
}

func TestIndexArtifact_thenGetByID(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx ArtifactIndex) {
		assert := assert.New(t)
		a, err := idx.IndexArtifact(newData("id1", "c1", "a1", "http://h/x", 1, 10))
		assert.NoError(err)
		assert.False(a.Committed)

		got, err := idx.GetArtifactByID("id1")
		assert.NoError(err)
		assert.Equal("id1", got.Identifier.ID)
		assert.False(got.Committed)
	})
}

func TestGetArtifactByID_notFound(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx ArtifactIndex) {
		_, err := idx.GetArtifactByID("missing")
		assert.Error(t, err)
	})
}

func TestCommitArtifact_makesVisibleInEnumeration(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx ArtifactIndex) {
		assert := assert.New(t)
		_, err := idx.IndexArtifact(newData("id1", "c1", "a1", "http://h/x", 1, 10))
		assert.NoError(err)

		empty, err := idx.GetArtifacts("c1", "a1")
		assert.NoError(err)
		assert.Empty(empty)

		_, err = idx.CommitArtifact("id1")
		assert.NoError(err)

		list, err := idx.GetArtifacts("c1", "a1")
		assert.NoError(err)
		assert.Len(list, 1)
		assert.Equal("http://h/x", list[0].Identifier.URI)
	})
}

func TestDeleteArtifact_removesFromIndex(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx ArtifactIndex) {
		assert := assert.New(t)
		_, err := idx.IndexArtifact(newData("id1", "c1", "a1", "http://h/x", 1, 10))
		assert.NoError(err)
		_, err = idx.CommitArtifact("id1")
		assert.NoError(err)

		ok, err := idx.DeleteArtifact("id1")
		assert.NoError(err)
		assert.True(ok)

		_, err = idx.GetArtifactByID("id1")
		assert.Error(err)

		ok, err = idx.DeleteArtifact("id1")
		assert.NoError(err)
		assert.False(ok)
	})
}

func TestUpdateStorageURL(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx ArtifactIndex) {
		assert := assert.New(t)
		_, err := idx.IndexArtifact(newData("id1", "c1", "a1", "http://h/x", 1, 10))
		assert.NoError(err)

		updated, err := idx.UpdateStorageURL("id1", "file:///permanent?offset=0&length=10")
		assert.NoError(err)
		assert.Equal("file:///permanent?offset=0&length=10", updated.StorageURL)
	})
}

func TestGetArtifacts_latestVersionOnly(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx ArtifactIndex) {
		assert := assert.New(t)
		for v := 1; v <= 3; v++ {
			_, err := idx.IndexArtifact(newData("id"+string(rune('0'+v)), "c1", "a1", "http://h/x", v, 10))
			assert.NoError(err)
			_, err = idx.CommitArtifact("id" + string(rune('0'+v)))
			assert.NoError(err)
		}

		list, err := idx.GetArtifacts("c1", "a1")
		assert.NoError(err)
		assert.Len(list, 1)
		assert.Equal(3, list[0].Identifier.Version)

		all, err := idx.GetArtifactsAllVersions("c1", "a1")
		assert.NoError(err)
		assert.Len(all, 3)
		assert.Equal(3, all[0].Identifier.Version)
		assert.Equal(2, all[1].Identifier.Version)
		assert.Equal(1, all[2].Identifier.Version)
	})
}

func TestGetArtifactsWithPrefix(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx ArtifactIndex) {
		assert := assert.New(t)
		urls := []string{"http://h/a", "http://h/aa", "http://h/b"}
		for i, u := range urls {
			id := "id" + string(rune('0'+i))
			_, err := idx.IndexArtifact(newData(id, "c1", "a1", u, 1, 10))
			assert.NoError(err)
			_, err = idx.CommitArtifact(id)
			assert.NoError(err)
		}

		got, err := idx.GetArtifactsWithPrefix("c1", "a1", "http://h/a")
		assert.NoError(err)
		assert.Len(got, 2)
		assert.Equal("http://h/a", got[0].Identifier.URI)
		assert.Equal("http://h/aa", got[1].Identifier.URI)

		none, err := idx.GetArtifactsWithPrefix("c1", "a1", "http://h/z")
		assert.NoError(err)
		assert.Empty(none)
	})
}

func TestGetArtifactVersion_includeUncommitted(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx ArtifactIndex) {
		assert := assert.New(t)
		_, err := idx.IndexArtifact(newData("id1", "c1", "a1", "http://h/x", 1, 10))
		assert.NoError(err)

		_, err = idx.GetArtifactVersion("c1", "a1", "http://h/x", 1, false)
		assert.Error(err)

		got, err := idx.GetArtifactVersion("c1", "a1", "http://h/x", 1, true)
		assert.NoError(err)
		assert.Equal("id1", got.Identifier.ID)
	})
}

func TestAuSize_sumsLatestVersionOnly(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx ArtifactIndex) {
		assert := assert.New(t)
		_, err := idx.IndexArtifact(newData("id1", "c1", "a1", "http://h/x", 1, 100))
		assert.NoError(err)
		_, err = idx.CommitArtifact("id1")
		assert.NoError(err)
		_, err = idx.IndexArtifact(newData("id2", "c1", "a1", "http://h/x", 2, 200))
		assert.NoError(err)
		_, err = idx.CommitArtifact("id2")
		assert.NoError(err)
		_, err = idx.IndexArtifact(newData("id3", "c1", "a1", "http://h/y", 1, 50))
		assert.NoError(err)
		_, err = idx.CommitArtifact("id3")
		assert.NoError(err)

		size, err := idx.AuSize("c1", "a1")
		assert.NoError(err)
		assert.EqualValues(250, size)
	})
}

func TestMaxVersion_survivesDeleteAndUncommitted(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx ArtifactIndex) {
		assert := assert.New(t)

		max, err := idx.MaxVersion("c1", "a1", "http://h/x")
		assert.NoError(err)
		assert.Equal(0, max)

		_, err = idx.IndexArtifact(newData("id1", "c1", "a1", "http://h/x", 1, 10))
		assert.NoError(err)
		max, err = idx.MaxVersion("c1", "a1", "http://h/x")
		assert.NoError(err)
		assert.Equal(1, max)

		// Still uncommitted, but MaxVersion must already reflect it -
		// otherwise a second concurrent add for the same URL would reuse
		// version 1.
		_, err = idx.IndexArtifact(newData("id2", "c1", "a1", "http://h/x", 2, 10))
		assert.NoError(err)
		max, err = idx.MaxVersion("c1", "a1", "http://h/x")
		assert.NoError(err)
		assert.Equal(2, max)

		_, err = idx.CommitArtifact("id1")
		assert.NoError(err)
		_, err = idx.CommitArtifact("id2")
		assert.NoError(err)

		ok, err := idx.DeleteArtifact("id2")
		assert.NoError(err)
		assert.True(ok)

		// Deleting the highest version must not roll the high-water-mark
		// back down - a later Add should still get version 3, not 2.
		max, err = idx.MaxVersion("c1", "a1", "http://h/x")
		assert.NoError(err)
		assert.Equal(2, max)
	})
}

func TestCollectionAndAuEnumeration(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx ArtifactIndex) {
		assert := assert.New(t)
		_, err := idx.IndexArtifact(newData("id1", "c1", "a1", "http://h/x", 1, 10))
		assert.NoError(err)
		_, err = idx.CommitArtifact("id1")
		assert.NoError(err)
		_, err = idx.IndexArtifact(newData("id2", "c2", "a2", "http://h/y", 1, 10))
		assert.NoError(err)
		_, err = idx.CommitArtifact("id2")
		assert.NoError(err)

		cols, err := idx.CollectionIDs()
		assert.NoError(err)
		assert.Equal([]string{"c1", "c2"}, cols)

		aus, err := idx.AuIDs("c1")
		assert.NoError(err)
		assert.Equal([]string{"a1"}, aus)
	})
}
