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

// Package storeutil builds the pkg/store and pkg/index objects the
// warcrepo subcommands share, reading their configuration from viper the
// way the root warcrecord repo's serve subcommand reads index.DefaultOptions
// from flags - the subcommands themselves stay focused on one operation.
package storeutil

import (
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/nlnwa/warcrepo/pkg/index"
	"github.com/nlnwa/warcrepo/pkg/store"
)

// BasePaths returns the configured data store base paths.
func BasePaths() []string {
	paths := viper.GetStringSlice("base-path")
	if len(paths) == 0 {
		return []string{"."}
	}
	return paths
}

// IndexDir returns the configured badger index directory, defaulting to an
// "index" subdirectory of the first base path.
func IndexDir(basePaths []string) string {
	if dir := viper.GetString("index-dir"); dir != "" {
		return dir
	}
	return filepath.Join(basePaths[0], "index")
}

// OpenBadgerIndex opens the persisted index at dir.
func OpenBadgerIndex(dir string) (*index.BadgerIndex, error) {
	return index.OpenBadgerIndex(dir)
}

// NewStore builds an uninitialized Store over basePaths and idx. Callers
// that need the commit worker pool, GC loop and temp-WARC reload running
// must call Init; RebuildIndex does not require it.
func NewStore(basePaths []string, idx index.ArtifactIndex) *store.Store {
	return store.New(store.NewConfig(basePaths), idx)
}
