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

package stat

import (
	"fmt"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nlnwa/warcrepo/cmd/warcrepo/cmd/storeutil"
	"github.com/nlnwa/warcrepo/pkg/store"
)

// NewCommand returns the "stat" subcommand: a colorized report of disk
// usage per base path, pooled temp-WARC counts, and collection/AU/size
// figures from the index - the store's equivalent of the root warcrecord
// repo's ls command, but for repository health rather than record listing.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat",
		Short: "Report data store and index statistics",
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
		return fmt.Errorf("stat: open index: %w", err)
	}
	defer func() {
		if cerr := idx.Close(); cerr != nil {
			log.WithError(cerr).Warn("stat: error closing index")
		}
	}()

	st := storeutil.NewStore(basePaths, idx)
	if err := st.Init(); err != nil {
		return fmt.Errorf("stat: init store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.WithError(cerr).Warn("stat: error closing store")
		}
	}()

	printDiskUsage(basePaths)
	printTempPoolStats(st)
	return printIndexStats(idx)
}

func printDiskUsage(basePaths []string) {
	bold := color.New(color.Bold)
	bold.Println("disk usage")
	for _, base := range basePaths {
		info, err := store.StorageInfo(base)
		if err != nil {
			color.Red("  %s: %v", base, err)
			continue
		}
		usageColor := color.New(color.FgGreen)
		switch {
		case info.PercentUsed >= 90:
			usageColor = color.New(color.FgRed)
		case info.PercentUsed >= 75:
			usageColor = color.New(color.FgYellow)
		}
		fmt.Printf("  %s: ", base)
		usageColor.Printf("%.1f%% used", info.PercentUsed)
		fmt.Printf(" (%d/%d bytes available)\n", info.Available, info.Total)
	}
}

func printTempPoolStats(st *store.Store) {
	bold := color.New(color.Bold)
	bold.Println("temp-warc pool")
	for base, stats := range st.TempFileStats() {
		fmt.Printf("  %s: %d file(s), %d byte(s)\n", base, stats.Count, stats.Length)
	}
}

func printIndexStats(idx interface {
	CollectionIDs() ([]string, error)
	AuIDs(string) ([]string, error)
	AuSize(string, string) (uint64, error)
}) error {
	bold := color.New(color.Bold)
	bold.Println("index")

	collections, err := idx.CollectionIDs()
	if err != nil {
		return fmt.Errorf("stat: list collections: %w", err)
	}
	if len(collections) == 0 {
		fmt.Println("  (empty)")
		return nil
	}

	for _, collection := range collections {
		aus, err := idx.AuIDs(collection)
		if err != nil {
			return fmt.Errorf("stat: list aus of %s: %w", collection, err)
		}
		var collectionTotal uint64
		fmt.Printf("  %s: %d archival unit(s)\n", collection, len(aus))
		for _, auid := range aus {
			size, err := idx.AuSize(collection, auid)
			if err != nil {
				return fmt.Errorf("stat: size of %s/%s: %w", collection, auid, err)
			}
			collectionTotal += size
			fmt.Printf("    %s: %d byte(s)\n", auid, size)
		}
		fmt.Printf("    total: %d byte(s)\n", collectionTotal)
	}
	return nil
}
