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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	log "github.com/sirupsen/logrus"

	"github.com/nlnwa/warcrepo/pkg/artifact"
)

// BadgerIndex is a persisted ArtifactIndex backed by a single badger
// database, grounded on pkg/index/db.go's keyspace layout: an id keyspace
// mapping artifact id to its JSON-encoded descriptor, and an AU/URL
// ordering keyspace mapping a sortable (collection, auid, uri,
// reverse-version) key to the artifact id, so a prefix scan over the AU
// keyspace yields URL-ascending/version-descending order directly from
// badger's own key ordering.
//
// Unlike db.go's batched-write-with-periodic-flush idiom (acceptable there
// because the CDX search index is a best-effort secondary structure), every
// write here is committed in synchronous badger transactions before the
// method returns (IndexArtifact uses two: the entry, then the version
// high-water-mark), with no batching or flush queue: §5 requires
// the index to offer linearizable single-key ops, which an async flush
// queue would violate.
type BadgerIndex struct {
	db           *badger.DB
	gcTicker     *time.Ticker
	gcStop       chan struct{}
	gcOnce       sync.Once
}

const (
	idPrefix = "id:"
	auPrefix = "au:"
	mvPrefix = "mv:"
)

// OpenBadgerIndex opens (creating if necessary) a badger database at dir.
func OpenBadgerIndex(dir string) (*BadgerIndex, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = log.StandardLogger()
	db, err := badger.Open(opts)
	if err != nil {
		return nil, artifact.NewIoError(err, "index: open badger db at %s", dir)
	}
	b := &BadgerIndex{
		db:       db,
		gcTicker: time.NewTicker(5 * time.Minute),
		gcStop:   make(chan struct{}),
	}
	go b.runValueLogGC()
	return b, nil
}

func (b *BadgerIndex) runValueLogGC() {
	for {
		select {
		case <-b.gcTicker.C:
		again:
			if err := b.db.RunValueLogGC(0.5); err == nil {
				goto again
			}
		case <-b.gcStop:
			return
		}
	}
}

// auKey builds the AU-ordering key. version is encoded so that ascending
// byte order sorts by version descending (MaxInt32 - version, zero-padded).
func auKey(collection, auid, uri string, version int) []byte {
	reverse := math.MaxInt32 - version
	return []byte(fmt.Sprintf("%s%s\x00%s\x00%s\x00%010d", auPrefix, collection, auid, uri, reverse))
}

func auKeyPrefix(collection, auid string) []byte {
	return []byte(fmt.Sprintf("%s%s\x00%s\x00", auPrefix, collection, auid))
}

func idKey(id string) []byte { return []byte(idPrefix + id) }

// mvKey addresses the high-water-mark version counter for (collection,
// auid, uri). This key is never deleted by DeleteArtifact, unlike idKey and
// auKey, so a version number is never reassigned after its artifact is
// removed from the index.
func mvKey(collection, auid, uri string) []byte {
	return []byte(fmt.Sprintf("%s%s\x00%s\x00%s", mvPrefix, collection, auid, uri))
}

// bumpMaxVersion records version as the high-water-mark for (collection,
// auid, uri) if it exceeds whatever is currently stored.
func (b *BadgerIndex) bumpMaxVersion(collection, auid, uri string, version int) error {
	key := mvKey(collection, auid, uri)
	return b.db.Update(func(txn *badger.Txn) error {
		current := 0
		item, err := txn.Get(key)
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil {
			if verr := item.Value(func(val []byte) error {
				_, serr := fmt.Sscanf(string(val), "%d", &current)
				return serr
			}); verr != nil {
				return verr
			}
		}
		if version <= current {
			return nil
		}
		return txn.Set(key, []byte(fmt.Sprintf("%d", version)))
	})
}

// MaxVersion returns the highest version ever assigned to (collection,
// auid, uri), or 0 if none has been. Unlike scanAU/GetArtifactVersion, this
// reads the mv: keyspace, which DeleteArtifact never touches.
func (b *BadgerIndex) MaxVersion(collection, auid, uri string) (int, error) {
	var current int
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(mvKey(collection, auid, uri))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			_, serr := fmt.Sscanf(string(val), "%d", &current)
			return serr
		})
	})
	if err != nil {
		return 0, artifact.NewIoError(err, "index: max version %s/%s %s", collection, auid, uri)
	}
	return current, nil
}

func (b *BadgerIndex) putArtifact(a *artifact.Artifact) error {
	val, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(idKey(a.Identifier.ID), val); err != nil {
			return err
		}
		return txn.Set(auKey(a.Identifier.Collection, a.Identifier.Auid, a.Identifier.URI, a.Identifier.Version), []byte(a.Identifier.ID))
	})
}

func (b *BadgerIndex) getArtifact(id string) (*artifact.Artifact, error) {
	var a artifact.Artifact
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &a)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, artifact.NewNotFound("index: artifact %q not found", id)
	}
	if err != nil {
		return nil, artifact.NewIoError(err, "index: read %q", id)
	}
	return &a, nil
}

func (b *BadgerIndex) IndexArtifact(data *artifact.Data) (*artifact.Artifact, error) {
	if data == nil || data.Identifier == nil {
		return nil, artifact.NewInvalidArgument("index: nil artifact data or identifier")
	}
	a := &artifact.Artifact{
		Identifier:     *data.Identifier,
		Committed:      false,
		StorageURL:     data.StorageURL,
		ContentLength:  data.ContentLength,
		ContentDigest:  data.ContentDigest,
		CollectionDate: data.CollectionDate,
	}
	if err := b.putArtifact(a); err != nil {
		return nil, artifact.NewIoError(err, "index: insert %q", a.Identifier.ID)
	}
	if err := b.bumpMaxVersion(a.Identifier.Collection, a.Identifier.Auid, a.Identifier.URI, a.Identifier.Version); err != nil {
		return nil, artifact.NewIoError(err, "index: bump max version %q", a.Identifier.ID)
	}
	return a, nil
}

func (b *BadgerIndex) GetArtifactByID(id string) (*artifact.Artifact, error) {
	return b.getArtifact(id)
}

func (b *BadgerIndex) CommitArtifact(id string) (*artifact.Artifact, error) {
	a, err := b.getArtifact(id)
	if err != nil {
		return nil, err
	}
	a.Committed = true
	if err := b.putArtifact(a); err != nil {
		return nil, artifact.NewIoError(err, "index: commit %q", id)
	}
	return a, nil
}

func (b *BadgerIndex) DeleteArtifact(id string) (bool, error) {
	a, err := b.getArtifact(id)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(idKey(id)); err != nil {
			return err
		}
		return txn.Delete(auKey(a.Identifier.Collection, a.Identifier.Auid, a.Identifier.URI, a.Identifier.Version))
	})
	if err != nil {
		return false, artifact.NewIoError(err, "index: delete %q", id)
	}
	return true, nil
}

func (b *BadgerIndex) UpdateStorageURL(id, storageURL string) (*artifact.Artifact, error) {
	a, err := b.getArtifact(id)
	if err != nil {
		return nil, err
	}
	a.StorageURL = storageURL
	if err := b.putArtifact(a); err != nil {
		return nil, artifact.NewIoError(err, "index: update storage url %q", id)
	}
	return a, nil
}

// scanAU returns every committed artifact in (collection, auid), in
// URL-ascending/version-descending order (badger's own key order over the
// AU keyspace already guarantees this).
func (b *BadgerIndex) scanAU(collection, auid string) ([]*artifact.Artifact, error) {
	prefix := auKeyPrefix(collection, auid)
	var ids []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, artifact.NewIoError(err, "index: scan au %s/%s", collection, auid)
	}

	out := make([]*artifact.Artifact, 0, len(ids))
	for _, id := range ids {
		a, err := b.getArtifact(id)
		if err != nil {
			continue
		}
		if a.Committed {
			out = append(out, a)
		}
	}
	return out, nil
}

func (b *BadgerIndex) CollectionIDs() ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(idPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(idPrefix)); it.ValidForPrefix([]byte(idPrefix)); it.Next() {
			var a artifact.Artifact
			err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &a) })
			if err != nil {
				return err
			}
			if a.Committed && !seen[a.Identifier.Collection] {
				seen[a.Identifier.Collection] = true
				out = append(out, a.Identifier.Collection)
			}
		}
		return nil
	})
	if err != nil {
		return nil, artifact.NewIoError(err, "index: list collections")
	}
	sort.Strings(out)
	return out, nil
}

func (b *BadgerIndex) AuIDs(collection string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(idPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(idPrefix)); it.ValidForPrefix([]byte(idPrefix)); it.Next() {
			var a artifact.Artifact
			err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &a) })
			if err != nil {
				return err
			}
			if a.Committed && a.Identifier.Collection == collection && !seen[a.Identifier.Auid] {
				seen[a.Identifier.Auid] = true
				out = append(out, a.Identifier.Auid)
			}
		}
		return nil
	})
	if err != nil {
		return nil, artifact.NewIoError(err, "index: list aus")
	}
	sort.Strings(out)
	return out, nil
}

func (b *BadgerIndex) GetArtifacts(collection, auid string) ([]*artifact.Artifact, error) {
	return b.GetArtifactsWithPrefix(collection, auid, "")
}

func (b *BadgerIndex) GetArtifactsAllVersions(collection, auid string) ([]*artifact.Artifact, error) {
	return b.GetArtifactsWithPrefixAllVersions(collection, auid, "")
}

func (b *BadgerIndex) GetArtifactsWithPrefix(collection, auid, prefix string) ([]*artifact.Artifact, error) {
	all, err := b.GetArtifactsWithPrefixAllVersions(collection, auid, prefix)
	if err != nil {
		return nil, err
	}
	return latestPerURL(all, true), nil
}

func (b *BadgerIndex) GetArtifactsWithPrefixAllVersions(collection, auid, prefix string) ([]*artifact.Artifact, error) {
	all, err := b.scanAU(collection, auid)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		return all, nil
	}
	out := all[:0:0]
	for _, a := range all {
		if strings.HasPrefix(a.Identifier.URI, prefix) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (b *BadgerIndex) GetArtifactsAcrossAUsWithPrefix(collection, prefix string) ([]*artifact.Artifact, error) {
	all, err := b.GetArtifactsAcrossAUsWithPrefixAllVersions(collection, prefix)
	if err != nil {
		return nil, err
	}
	return latestPerURL(all, false), nil
}

func (b *BadgerIndex) GetArtifactsAcrossAUsWithPrefixAllVersions(collection, prefix string) ([]*artifact.Artifact, error) {
	auids, err := b.AuIDs(collection)
	if err != nil {
		return nil, err
	}
	var out []*artifact.Artifact
	for _, auid := range auids {
		items, err := b.GetArtifactsWithPrefixAllVersions(collection, auid, prefix)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	sortAcrossAUs(out)
	return out, nil
}

func (b *BadgerIndex) GetArtifactVersion(collection, auid, uri string, version int, includeUncommitted bool) (*artifact.Artifact, error) {
	var id string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(auKey(collection, auid, uri, version))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, artifact.NewNotFound("index: no version %d of %s in %s/%s", version, uri, collection, auid)
	}
	if err != nil {
		return nil, artifact.NewIoError(err, "index: get version")
	}
	a, err := b.getArtifact(id)
	if err != nil {
		return nil, err
	}
	if !a.Committed && !includeUncommitted {
		return nil, artifact.NewNotFound("index: no version %d of %s in %s/%s", version, uri, collection, auid)
	}
	return a, nil
}

func (b *BadgerIndex) AuSize(collection, auid string) (uint64, error) {
	latest, err := b.GetArtifacts(collection, auid)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, a := range latest {
		total += uint64(a.ContentLength)
	}
	return total, nil
}

func (b *BadgerIndex) Ready() bool { return b.db != nil }

func (b *BadgerIndex) Close() error {
	b.gcOnce.Do(func() { close(b.gcStop) })
	b.gcTicker.Stop()
	if err := b.db.RunValueLogGC(0.3); err != nil && err != badger.ErrNoRewrite {
		log.Warnf("index: value log gc on close: %v", err)
	}
	return b.db.Close()
}
