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

import "time"

// Artifact is the index-side descriptor: the identity tuple plus the
// committed flag and derived metadata. This is what ArtifactIndex returns.
type Artifact struct {
	Identifier     Identifier
	Committed      bool
	StorageURL     string
	ContentLength  int64
	ContentDigest  string
	CollectionDate time.Time
}

// Metadata is the journaled state for one artifact id: exactly one
// authoritative value exists per id, derived by replaying every journal
// entry for that id in file order (last entry wins).
type Metadata struct {
	ArtifactID         string
	Committed          bool
	Deleted            bool
	StorageURLOverride string
}

// State is the artifact lifecycle state machine of §3/§4.4.3.
type State uint8

const (
	NotIndexed State = iota
	Uncommitted
	Committed
	Copied
	Expired
	Deleted
)

func (s State) String() string {
	switch s {
	case NotIndexed:
		return "NOT_INDEXED"
	case Uncommitted:
		return "UNCOMMITTED"
	case Committed:
		return "COMMITTED"
	case Copied:
		return "COPIED"
	case Expired:
		return "EXPIRED"
	case Deleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}
