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

package store

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlnwa/warcrepo/pkg/artifact"
	"github.com/nlnwa/warcrepo/pkg/index"
	"github.com/nlnwa/warcrepo/pkg/warcpath"
)

func testData(collection, auid, uri, body string) *artifact.Data {
	return &artifact.Data{
		Identifier: &artifact.Identifier{Collection: collection, Auid: auid, URI: uri, Version: 1},
		StatusCode: 200,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Payload: artifact.NewPayloadSource(func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		}),
	}
}

func newTestStore(t *testing.T) (*Store, *index.MemIndex) {
	t.Helper()
	idx := index.NewMemIndex()
	s := New(NewConfig([]string{t.TempDir()}), idx)
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Close() })
	return s, idx
}

func TestAddArtifactData_roundTrip(t *testing.T) {
	assert := assert.New(t)
	s, _ := newTestStore(t)

	data := testData("coll", "au1", "https://example.com/x", "hello world")
	a, err := s.AddArtifactData(data)
	assert.NoError(err)
	assert.NotEmpty(a.Identifier.ID)
	assert.False(a.Committed)
	assert.Equal(int64(len("hello world")), a.ContentLength)
	assert.True(warcpath.IsTempPath(mustParse(t, a.StorageURL).Path))

	got, err := s.GetArtifactData(a)
	assert.NoError(err)
	assert.Equal(200, got.StatusCode)
	assert.Equal(a.ContentDigest, got.ContentDigest)

	body, err := got.Payload.Open()
	assert.NoError(err)
	b, err := io.ReadAll(body)
	assert.NoError(err)
	assert.NoError(body.Close())
	assert.Equal("hello world", string(b))
}

func TestAddArtifactData_nilRejected(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.AddArtifactData(nil)
	assert.Error(t, err)
	assert.ErrorIs(t, err, artifact.ErrInvalidArgument)
}

func TestCommitArtifactData_movesIntoPermanentStorage(t *testing.T) {
	assert := assert.New(t)
	s, idx := newTestStore(t)

	data := testData("coll", "au1", "https://example.com/x", "hello world")
	added, err := s.AddArtifactData(data)
	assert.NoError(err)
	_, err = idx.IndexArtifact(&artifact.Data{
		Identifier:     &added.Identifier,
		ContentLength:  added.ContentLength,
		ContentDigest:  added.ContentDigest,
		CollectionDate: added.CollectionDate,
		StorageURL:     added.StorageURL,
	})
	assert.NoError(err)

	future, err := s.CommitArtifactData(added)
	assert.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	committed, err := future.Wait(ctx)
	assert.NoError(err)
	assert.NotNil(committed)
	assert.True(committed.Committed)

	su := mustParse(t, committed.StorageURL)
	assert.False(warcpath.IsTempPath(su.Path))

	got, err := s.GetArtifactData(committed)
	assert.NoError(err)
	body, err := got.Payload.Open()
	assert.NoError(err)
	b, err := io.ReadAll(body)
	assert.NoError(err)
	assert.NoError(body.Close())
	assert.Equal("hello world", string(b))

	// Re-commit is idempotent: the copy task recognizes the storage url
	// already points at permanent storage and does not move it again.
	future2, err := s.CommitArtifactData(committed)
	assert.NoError(err)
	again, err := future2.Wait(ctx)
	assert.NoError(err)
	assert.Equal(committed.StorageURL, again.StorageURL)
}

func TestCommitArtifactData_deletionWins(t *testing.T) {
	assert := assert.New(t)
	s, idx := newTestStore(t)

	data := testData("coll", "au1", "https://example.com/x", "hello world")
	added, err := s.AddArtifactData(data)
	assert.NoError(err)
	_, err = idx.IndexArtifact(&artifact.Data{
		Identifier:     &added.Identifier,
		ContentLength:  added.ContentLength,
		ContentDigest:  added.ContentDigest,
		CollectionDate: added.CollectionDate,
		StorageURL:     added.StorageURL,
	})
	assert.NoError(err)

	deleted, err := idx.DeleteArtifact(added.Identifier.ID)
	assert.NoError(err)
	assert.True(deleted)

	future, err := s.CommitArtifactData(added)
	assert.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := future.Wait(ctx)
	assert.NoError(err)
	assert.Nil(result)
}

func TestDeleteArtifactData_journalsDeletion(t *testing.T) {
	assert := assert.New(t)
	s, _ := newTestStore(t)

	data := testData("coll", "au1", "https://example.com/x", "hello world")
	added, err := s.AddArtifactData(data)
	assert.NoError(err)

	assert.NoError(s.DeleteArtifactData(added))
}

func TestReloadTempWarcs_recoversUncommittedIntoIndex(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	base := t.TempDir()
	idx1 := index.NewMemIndex()
	s1 := New(NewConfig([]string{base}), idx1)
	require.NoError(s1.Init())

	data := testData("coll", "au1", "https://example.com/x", "hello world")
	added, err := s1.AddArtifactData(data)
	require.NoError(err)
	require.NoError(s1.Close())

	idx2 := index.NewMemIndex()
	s2 := New(NewConfig([]string{base}), idx2)
	require.NoError(s2.Init())
	defer func() { _ = s2.Close() }()

	reindexed, err := idx2.GetArtifactByID(added.Identifier.ID)
	assert.NoError(err)
	assert.False(reindexed.Committed)
	assert.Equal(added.ContentDigest, reindexed.ContentDigest)
}

// addAndCommit runs one add->index->commit->wait cycle against s/idx and
// returns the committed artifact.
func addAndCommit(t *testing.T, s *Store, idx *index.MemIndex, uri, body string) *artifact.Artifact {
	t.Helper()
	data := testData("coll", "au1", uri, body)
	added, err := s.AddArtifactData(data)
	require.NoError(t, err)
	_, err = idx.IndexArtifact(&artifact.Data{
		Identifier:     &added.Identifier,
		ContentLength:  added.ContentLength,
		ContentDigest:  added.ContentDigest,
		CollectionDate: added.CollectionDate,
		StorageURL:     added.StorageURL,
	})
	require.NoError(t, err)

	future, err := s.CommitArtifactData(added)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	committed, err := future.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, committed)
	return committed
}

// TestCommitArtifactData_sealsOnThreshold covers S6: three ~500B commits
// under a 1 KiB threshold seal the active WARC after the second commit, and
// the third commit opens a fresh one.
func TestCommitArtifactData_sealsOnThreshold(t *testing.T) {
	base := t.TempDir()
	idx := index.NewMemIndex()
	s := New(NewConfig([]string{base}, WithThresholdWarcSize(1024)), idx)
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Close() })

	body := strings.Repeat("x", 500)
	addAndCommit(t, s, idx, "https://example.com/1", body)
	addAndCommit(t, s, idx, "https://example.com/2", body)

	entries, err := os.ReadDir(warcpath.SealedDirPath(base))
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "expected active warc to be sealed after crossing threshold")

	third := addAndCommit(t, s, idx, "https://example.com/3", body)
	su, err := artifact.ParseStorageURL(third.StorageURL)
	require.NoError(t, err)
	assert.False(t, warcpath.IsTempPath(su.Path))
	assert.NotContains(t, filepath.Dir(su.Path), "sealed",
		"third commit should land in a fresh active warc, not the just-sealed one")
}

// TestReloadAndGC_expiresUncommittedPastTTL covers S7: an uncommitted
// artifact older than a zero-duration TTL is classified EXPIRED on reload
// and its temp WARC is reclaimed by GC.
func TestReloadAndGC_expiresUncommittedPastTTL(t *testing.T) {
	base := t.TempDir()
	idx1 := index.NewMemIndex()
	s1 := New(NewConfig([]string{base}), idx1)
	require.NoError(t, s1.Init())

	data := testData("coll", "au1", "https://example.com/x", "hello world")
	added, err := s1.AddArtifactData(data)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	idx2 := index.NewMemIndex()
	s2 := New(NewConfig([]string{base}, WithUncommittedExpiration(0)), idx2)
	require.NoError(t, s2.Init())
	t.Cleanup(func() { _ = s2.Close() })

	_, err = idx2.GetArtifactByID(added.Identifier.ID)
	assert.ErrorIs(t, err, artifact.ErrNotFound, "expired uncommitted artifact must not be reindexed")

	s2.RunGC()

	su := mustParse(t, added.StorageURL)
	_, statErr := os.Stat(su.Path)
	assert.True(t, os.IsNotExist(statErr), "expired temp warc should have been reclaimed")
}

func mustParse(t *testing.T, raw string) artifact.StorageURL {
	t.Helper()
	su, err := artifact.ParseStorageURL(raw)
	require.NoError(t, err)
	return su
}
