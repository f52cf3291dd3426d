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

// Package index defines the ArtifactIndex contract and two implementations:
// MemIndex (volatile, in-process) and BadgerIndex (persisted, backed by
// badger). Both satisfy the same interface so the repository facade is
// storage-backend-agnostic (§9 "plug-in index").
package index

import "github.com/nlnwa/warcrepo/pkg/artifact"

// ArtifactIndex is the contract every index backend must satisfy. id is
// unique across the index; no two entries share (collection, auid, uri,
// version). Enumeration methods skip uncommitted entries unless stated
// otherwise, and yield lazy-in-spirit but here simply materialized,
// snapshot-consistent, non-restartable slices.
//
// Ordering contract: within an AU, results are sorted by URL ascending then
// version descending. Across all AUs of a collection, results are sorted by
// URL ascending, then origin date ascending, then AU id ascending, then
// version descending.
type ArtifactIndex interface {
	// IndexArtifact inserts a newly-stored artifact. The identifier's
	// Version must already be assigned by the caller (the repository
	// facade owns version assignment, not the index).
	IndexArtifact(data *artifact.Data) (*artifact.Artifact, error)
	GetArtifactByID(id string) (*artifact.Artifact, error)
	CommitArtifact(id string) (*artifact.Artifact, error)
	DeleteArtifact(id string) (bool, error)
	UpdateStorageURL(id, storageURL string) (*artifact.Artifact, error)

	CollectionIDs() ([]string, error)
	AuIDs(collection string) ([]string, error)

	// GetArtifacts returns the latest committed version of every URL in
	// the AU, URL ascending.
	GetArtifacts(collection, auid string) ([]*artifact.Artifact, error)
	// GetArtifactsAllVersions returns every committed version of every
	// URL in the AU, URL ascending then version descending.
	GetArtifactsAllVersions(collection, auid string) ([]*artifact.Artifact, error)
	// GetArtifactsWithPrefix is GetArtifacts restricted to URLs with the
	// given prefix.
	GetArtifactsWithPrefix(collection, auid, prefix string) ([]*artifact.Artifact, error)
	// GetArtifactsWithPrefixAllVersions is GetArtifactsAllVersions
	// restricted to URLs with the given prefix.
	GetArtifactsWithPrefixAllVersions(collection, auid, prefix string) ([]*artifact.Artifact, error)
	// GetArtifactsAcrossAUsWithPrefix is GetArtifactsWithPrefix across
	// every AU of the collection, ordered per the cross-AU contract.
	GetArtifactsAcrossAUsWithPrefix(collection, prefix string) ([]*artifact.Artifact, error)
	// GetArtifactsAcrossAUsWithPrefixAllVersions is
	// GetArtifactsWithPrefixAllVersions across every AU of the
	// collection, ordered per the cross-AU contract.
	GetArtifactsAcrossAUsWithPrefixAllVersions(collection, prefix string) ([]*artifact.Artifact, error)

	// GetArtifactVersion looks up one specific version. includeUncommitted
	// allows returning an uncommitted entry (used by the store/repository
	// internally, e.g. for idempotent re-commit).
	GetArtifactVersion(collection, auid, uri string, version int, includeUncommitted bool) (*artifact.Artifact, error)

	// AuSize sums content_length over the latest committed version of
	// each URL in the AU.
	AuSize(collection, auid string) (uint64, error)

	// MaxVersion returns the highest version ever assigned to
	// (collection, auid, uri), or 0 if none exists. Unlike every other
	// enumeration method, this must survive DeleteArtifact - §3 invariant 2
	// requires that deleting version k never lets a later Add reuse it, so
	// the repository facade's next-version computation needs a
	// high-water-mark that isn't just "what's currently indexed".
	MaxVersion(collection, auid, uri string) (int, error)

	// Ready reports whether the index has finished initializing.
	Ready() bool
	Close() error
}
