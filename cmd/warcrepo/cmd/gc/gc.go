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

package gc

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nlnwa/warcrepo/cmd/warcrepo/cmd/storeutil"
)

// NewCommand returns the "gc" subcommand, running one pass of §4.4's
// garbage_collect_temp_warcs immediately rather than waiting for the
// background ticker a running repository process schedules on its own.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Reclaim temp-WARC files whose artifacts are all in a terminal state",
		Long: `gc scans every pooled temp-WARC file and removes any whose records
are all COPIED, EXPIRED or DELETED according to the index - the same pass a
running repository process runs on its own GC interval, triggered here for
an immediate, synchronous run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE()
		},
	}
	return cmd
}

func runE() error {
	basePaths := storeutil.BasePaths()
	indexDir := storeutil.IndexDir(basePaths)

	idx, err := storeutil.OpenBadgerIndex(indexDir)
	if err != nil {
		return fmt.Errorf("gc: open index: %w", err)
	}
	defer func() {
		if cerr := idx.Close(); cerr != nil {
			log.WithError(cerr).Warn("gc: error closing index")
		}
	}()

	st := storeutil.NewStore(basePaths, idx)
	if err := st.Init(); err != nil {
		return fmt.Errorf("gc: init store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.WithError(cerr).Warn("gc: error closing store")
		}
	}()

	st.RunGC()
	fmt.Println("garbage collection pass complete")
	return nil
}
