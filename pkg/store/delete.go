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

import "github.com/nlnwa/warcrepo/pkg/artifact"

// DeleteArtifactData implements §4.4's delete_artifact_data: it writes a
// deleted=true journal entry for a's AU. The on-disk record itself is left
// untouched - it becomes unreachable once the repository facade also
// removes it from the index, and is only actually reclaimed once its
// containing temp WARC is garbage collected (§4.4.3's classification table
// routes a {deleted=true, absent from a permanent WARC} record to DELETED,
// a GC candidate).
func (s *Store) DeleteArtifactData(a *artifact.Artifact) error {
	if a == nil {
		return artifact.NewInvalidArgument("store: nil artifact")
	}
	au, _, err := s.getAuState(a.Identifier.Collection, a.Identifier.Auid)
	if err != nil {
		return err
	}

	au.journalMu.Lock()
	defer au.journalMu.Unlock()
	if _, err := au.journal.Append(artifact.Metadata{ArtifactID: a.Identifier.ID, Committed: a.Committed, Deleted: true}); err != nil {
		return artifact.NewIoError(err, "store: append delete journal entry")
	}
	return nil
}
