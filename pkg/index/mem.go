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
	"sort"
	"strings"
	"sync"

	"github.com/nlnwa/warcrepo/pkg/artifact"
)

// MemIndex is a volatile, in-process ArtifactIndex backed by a
// sync.RWMutex-guarded map, with snapshot-consistent enumeration via a
// copy-on-iterate slice. This is the default implementation and what the
// round-trip/versioning/prefix-scan test scenarios exercise directly.
type MemIndex struct {
	mu         sync.RWMutex
	byID       map[string]*artifact.Artifact
	maxVersion map[string]int
	closed     bool
}

// NewMemIndex returns an empty, ready MemIndex.
func NewMemIndex() *MemIndex {
	return &MemIndex{byID: make(map[string]*artifact.Artifact), maxVersion: make(map[string]int)}
}

func maxVersionKey(collection, auid, uri string) string {
	return collection + "\x00" + auid + "\x00" + uri
}

func (m *MemIndex) IndexArtifact(data *artifact.Data) (*artifact.Artifact, error) {
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

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[a.Identifier.ID] = a
	key := maxVersionKey(a.Identifier.Collection, a.Identifier.Auid, a.Identifier.URI)
	if a.Identifier.Version > m.maxVersion[key] {
		m.maxVersion[key] = a.Identifier.Version
	}
	cp := *a
	return &cp, nil
}

// MaxVersion returns the highest version ever indexed for (collection,
// auid, uri); this survives DeleteArtifact, unlike byID.
func (m *MemIndex) MaxVersion(collection, auid, uri string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxVersion[maxVersionKey(collection, auid, uri)], nil
}

func (m *MemIndex) GetArtifactByID(id string) (*artifact.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, artifact.NewNotFound("index: artifact %q not found", id)
	}
	cp := *a
	return &cp, nil
}

func (m *MemIndex) CommitArtifact(id string) (*artifact.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, artifact.NewNotFound("index: artifact %q not found", id)
	}
	a.Committed = true
	cp := *a
	return &cp, nil
}

func (m *MemIndex) DeleteArtifact(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return false, nil
	}
	delete(m.byID, id)
	return true, nil
}

func (m *MemIndex) UpdateStorageURL(id, storageURL string) (*artifact.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, artifact.NewNotFound("index: artifact %q not found", id)
	}
	a.StorageURL = storageURL
	cp := *a
	return &cp, nil
}

func (m *MemIndex) CollectionIDs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, a := range m.byID {
		if !a.Committed || seen[a.Identifier.Collection] {
			continue
		}
		seen[a.Identifier.Collection] = true
		out = append(out, a.Identifier.Collection)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemIndex) AuIDs(collection string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, a := range m.byID {
		if !a.Committed || a.Identifier.Collection != collection || seen[a.Identifier.Auid] {
			continue
		}
		seen[a.Identifier.Auid] = true
		out = append(out, a.Identifier.Auid)
	}
	sort.Strings(out)
	return out, nil
}

// snapshot returns a copy of every committed entry, for lock-free filtering.
func (m *MemIndex) snapshot() []*artifact.Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*artifact.Artifact, 0, len(m.byID))
	for _, a := range m.byID {
		if a.Committed {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

func sortWithinAU(items []*artifact.Artifact) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Identifier.URI != items[j].Identifier.URI {
			return items[i].Identifier.URI < items[j].Identifier.URI
		}
		return items[i].Identifier.Version > items[j].Identifier.Version
	})
}

func sortAcrossAUs(items []*artifact.Artifact) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Identifier.URI != b.Identifier.URI {
			return a.Identifier.URI < b.Identifier.URI
		}
		if !a.CollectionDate.Equal(b.CollectionDate) {
			return a.CollectionDate.Before(b.CollectionDate)
		}
		if a.Identifier.Auid != b.Identifier.Auid {
			return a.Identifier.Auid < b.Identifier.Auid
		}
		return a.Identifier.Version > b.Identifier.Version
	})
}

// latestPerURL keeps, for each URL (each AU and URL when auScoped is false),
// only the highest-version entry. items must already be sorted by
// sortWithinAU or sortAcrossAUs; since sortAcrossAUs orders by collection
// date before version, the cross-AU result is re-sorted after selection.
func latestPerURL(items []*artifact.Artifact, auScoped bool) []*artifact.Artifact {
	pos := make(map[string]int)
	out := make([]*artifact.Artifact, 0, len(items))
	for _, a := range items {
		key := a.Identifier.URI
		if !auScoped {
			key = a.Identifier.Auid + "\x00" + a.Identifier.URI
		}
		if i, ok := pos[key]; ok {
			if a.Identifier.Version > out[i].Identifier.Version {
				out[i] = a
			}
			continue
		}
		pos[key] = len(out)
		out = append(out, a)
	}
	if !auScoped {
		sortAcrossAUs(out)
	}
	return out
}

func (m *MemIndex) GetArtifacts(collection, auid string) ([]*artifact.Artifact, error) {
	return m.GetArtifactsWithPrefix(collection, auid, "")
}

func (m *MemIndex) GetArtifactsAllVersions(collection, auid string) ([]*artifact.Artifact, error) {
	return m.GetArtifactsWithPrefixAllVersions(collection, auid, "")
}

func (m *MemIndex) GetArtifactsWithPrefix(collection, auid, prefix string) ([]*artifact.Artifact, error) {
	all, err := m.GetArtifactsWithPrefixAllVersions(collection, auid, prefix)
	if err != nil {
		return nil, err
	}
	return latestPerURL(all, true), nil
}

func (m *MemIndex) GetArtifactsWithPrefixAllVersions(collection, auid, prefix string) ([]*artifact.Artifact, error) {
	var out []*artifact.Artifact
	for _, a := range m.snapshot() {
		if a.Identifier.Collection != collection || a.Identifier.Auid != auid {
			continue
		}
		if prefix != "" && !strings.HasPrefix(a.Identifier.URI, prefix) {
			continue
		}
		out = append(out, a)
	}
	sortWithinAU(out)
	return out, nil
}

func (m *MemIndex) GetArtifactsAcrossAUsWithPrefix(collection, prefix string) ([]*artifact.Artifact, error) {
	all, err := m.GetArtifactsAcrossAUsWithPrefixAllVersions(collection, prefix)
	if err != nil {
		return nil, err
	}
	return latestPerURL(all, false), nil
}

func (m *MemIndex) GetArtifactsAcrossAUsWithPrefixAllVersions(collection, prefix string) ([]*artifact.Artifact, error) {
	var out []*artifact.Artifact
	for _, a := range m.snapshot() {
		if a.Identifier.Collection != collection {
			continue
		}
		if prefix != "" && !strings.HasPrefix(a.Identifier.URI, prefix) {
			continue
		}
		out = append(out, a)
	}
	sortAcrossAUs(out)
	return out, nil
}

func (m *MemIndex) GetArtifactVersion(collection, auid, uri string, version int, includeUncommitted bool) (*artifact.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.byID {
		if a.Identifier.Collection == collection && a.Identifier.Auid == auid &&
			a.Identifier.URI == uri && a.Identifier.Version == version {
			if !a.Committed && !includeUncommitted {
				continue
			}
			cp := *a
			return &cp, nil
		}
	}
	return nil, artifact.NewNotFound("index: no version %d of %s in %s/%s", version, uri, collection, auid)
}

func (m *MemIndex) AuSize(collection, auid string) (uint64, error) {
	latest, err := m.GetArtifacts(collection, auid)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, a := range latest {
		total += uint64(a.ContentLength)
	}
	return total, nil
}

func (m *MemIndex) Ready() bool { return true }

func (m *MemIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
