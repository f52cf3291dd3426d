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

// Package repository is the thin coordinator that keeps the artifact index
// and the WARC data store mutually consistent under the add/commit/delete
// protocols (§4.7), mirroring the loader package's "compose a pluggable
// backend behind one coordinator" shape: Repository holds an Index and a
// Store, and every method is a short sequence of calls against the two,
// never business logic of its own.
package repository

import (
	"errors"

	"github.com/nlnwa/warcrepo/pkg/artifact"
	"github.com/nlnwa/warcrepo/pkg/index"
	"github.com/nlnwa/warcrepo/pkg/store"
)

// Repository orchestrates Add/Commit/Delete/Get across an ArtifactIndex and
// a Store so the invariants of §3 hold: version numbering, committed-iff-
// last-journal-entry-says-so, and deletion-wins-over-commit.
type Repository struct {
	idx index.ArtifactIndex
	str *store.Store
}

// New builds a Repository over an already-constructed index and store. The
// caller is responsible for having called store.Init (and, for a persisted
// index, whatever start-up it needs) before using the repository - Ready
// reports whether that has happened.
func New(idx index.ArtifactIndex, str *store.Store) *Repository {
	return &Repository{idx: idx, str: str}
}

// Ready reports whether both the store and the index have finished
// initializing (§5's readiness contract).
func (r *Repository) Ready() bool {
	return r.str.Ready() && r.idx.Ready()
}

// Add implements §4.7's add: it assigns the next version for
// (collection, auid, uri), writes the record via the store, and indexes
// the resulting descriptor. If the index insert fails after the store
// write, the bytes are left as unreferenced temp-WARC garbage rather than
// retried - the next GC cycle reclaims them.
func (r *Repository) Add(data *artifact.Data) (*artifact.Artifact, error) {
	if data == nil || data.Identifier == nil {
		return nil, artifact.NewInvalidArgument("repository: nil artifact data or identifier")
	}
	if err := data.Identifier.Validate(); err != nil {
		return nil, err
	}

	version, err := r.nextVersion(data.Identifier.Collection, data.Identifier.Auid, data.Identifier.URI)
	if err != nil {
		return nil, err
	}
	data.Identifier.Version = version

	added, err := r.str.AddArtifactData(data)
	if err != nil {
		return nil, err
	}

	data.StorageURL = added.StorageURL
	data.ContentLength = added.ContentLength
	data.ContentDigest = added.ContentDigest
	data.CollectionDate = added.CollectionDate

	indexed, err := r.idx.IndexArtifact(data)
	if err != nil {
		// The artifact's bytes are already durable in a temp WARC but
		// unreachable via the index; leave them for GC rather than retry
		// (§4.7's explicit guidance).
		return nil, err
	}
	return indexed, nil
}

// nextVersion is 1 + the highest version ever assigned to (collection,
// auid, uri). It must use MaxVersion rather than scanning committed entries:
// an uncommitted prior version would be invisible to GetArtifactsWithPrefix-
// AllVersions (committed-only), and a deleted one is purged from the index
// entirely, so only a dedicated high-water-mark survives both (§3 invariant
// 2: a deleted version's number is never reused).
func (r *Repository) nextVersion(collection, auid, uri string) (int, error) {
	max, err := r.idx.MaxVersion(collection, auid, uri)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// Commit implements §4.7's commit: it looks up the descriptor, and - unless
// the artifact has been deleted (deletion wins: GetArtifactByID returns
// NotFound once an entry is deleted) - marks it committed in the index
// before submitting the byte move to the store. The store's own copy task
// performs the matching index storage-url update once the move completes
// (see DESIGN.md's resolution of the update_storage_url ownership question),
// so this method does not call it a second time.
func (r *Repository) Commit(id string) (*store.Future, error) {
	a, err := r.idx.GetArtifactByID(id)
	if err != nil {
		return nil, err
	}
	if !a.Committed {
		committed, err := r.idx.CommitArtifact(id)
		if err != nil {
			return nil, err
		}
		a = committed
	}
	return r.str.CommitArtifactData(a)
}

// Delete implements §4.7's delete: the store records the tombstone in its
// AU journal first (the system of record), then the index entry is dropped
// so lookups stop seeing it immediately.
func (r *Repository) Delete(id string) (bool, error) {
	a, err := r.idx.GetArtifactByID(id)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := r.str.DeleteArtifactData(a); err != nil {
		return false, err
	}
	return r.idx.DeleteArtifact(id)
}

// GetArtifactData opens a's content via the store (index lookups locate the
// descriptor; this call streams the bytes it points at).
func (r *Repository) GetArtifactData(a *artifact.Artifact) (*artifact.Data, error) {
	return r.str.GetArtifactData(a)
}

// GetLatest returns the highest-version committed entry for uri in an AU.
func (r *Repository) GetLatest(collection, auid, uri string) (*artifact.Artifact, error) {
	candidates, err := r.idx.GetArtifactsWithPrefix(collection, auid, uri)
	if err != nil {
		return nil, err
	}
	for _, a := range candidates {
		if a.Identifier.URI == uri {
			return a, nil
		}
	}
	return nil, artifact.NewNotFound("repository: no committed version of %s in %s/%s", uri, collection, auid)
}

// GetAllVersions returns every committed version of uri in an AU, version
// descending.
func (r *Repository) GetAllVersions(collection, auid, uri string) ([]*artifact.Artifact, error) {
	all, err := r.idx.GetArtifactsWithPrefixAllVersions(collection, auid, uri)
	if err != nil {
		return nil, err
	}
	out := make([]*artifact.Artifact, 0, len(all))
	for _, a := range all {
		if a.Identifier.URI == uri {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetWithPrefix returns the latest committed version of every URL under
// prefix in an AU.
func (r *Repository) GetWithPrefix(collection, auid, prefix string) ([]*artifact.Artifact, error) {
	return r.idx.GetArtifactsWithPrefix(collection, auid, prefix)
}

// GetVersion looks up one specific version, optionally including an
// uncommitted entry.
func (r *Repository) GetVersion(collection, auid, uri string, version int, includeUncommitted bool) (*artifact.Artifact, error) {
	return r.idx.GetArtifactVersion(collection, auid, uri, version, includeUncommitted)
}

// AuSize sums content_length over the latest committed version of each URL
// in the AU.
func (r *Repository) AuSize(collection, auid string) (uint64, error) {
	return r.idx.AuSize(collection, auid)
}
