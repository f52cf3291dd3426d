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

package rebuild

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nlnwa/warcrepo/cmd/warcrepo/cmd/storeutil"
)

// NewCommand returns the "rebuild" subcommand, implementing §4.4's
// rebuild_index(index): re-derive the entire artifact index from the
// permanent WARCs, sealed WARCs, temp WARCs and per-AU journals on disk,
// for disaster recovery after an index is lost or corrupted.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the artifact index from the WARCs and journals on disk",
		Long: `rebuild re-derives the complete artifact index by scanning every
permanent and sealed WARC under the configured base paths, re-inserting one
descriptor per response record, then replaying each AU's journal to restore
committed/deleted state and storage-url overrides, and finally folding in
whatever artifacts are still sitting in temp-WARC storage. Run this after
restoring a data store whose index directory was lost or is suspected
corrupt; it overwrites whatever is at --index-dir.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE()
		},
	}
	return cmd
}

func runE() error {
	basePaths := storeutil.BasePaths()
	indexDir := storeutil.IndexDir(basePaths)

	log.Infof("rebuilding index at %s from base paths %v", indexDir, basePaths)

	idx, err := storeutil.OpenBadgerIndex(indexDir)
	if err != nil {
		return fmt.Errorf("rebuild: open index: %w", err)
	}
	defer func() {
		if cerr := idx.Close(); cerr != nil {
			log.WithError(cerr).Warn("rebuild: error closing index")
		}
	}()

	st := storeutil.NewStore(basePaths, idx)
	if err := st.RebuildIndex(idx); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	fmt.Println("index rebuild complete")
	return nil
}
