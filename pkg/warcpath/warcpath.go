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

// Package warcpath builds and parses the canonical on-disk layout beneath a
// repository base path:
//
//	<base>/tmp/warcs/<uuid>.warc[.gz]
//	<base>/collections/<coll>/au-<md5(auid)>/artifacts_<timestamp>.warc
//	<base>/collections/<coll>/au-<md5(auid)>/lockss-repo.warc       # journal
//	<base>/sealed/<coll>_au-<md5(auid)>_<timestamp>artifacts.warc
//
// <timestamp> is yyyyMMddHHmmssSSS in UTC; md5(auid) is the lowercase hex
// MD5 of the AU identifier.
package warcpath

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nlnwa/warcrepo/internal/timestamp"
)

const (
	tmpDir         = "tmp/warcs"
	collectionsDir = "collections"
	sealedDir      = "sealed"
	journalName    = "lockss-repo.warc"
)

// AuDir returns the md5-derived directory component for an AU id, e.g.
// "au-3858f62230ac3c915f300c664312c63f".
func AuDir(auid string) string {
	sum := md5.Sum([]byte(auid))
	return "au-" + hex.EncodeToString(sum[:])
}

// TempWarcPath returns a fresh path beneath <base>/tmp/warcs for a new temp
// WARC file, UUID-derived rather than serial-derived, mirroring the
// PatternNameGenerator idiom but with a collision-free name source suited to
// a pool shared by concurrent writers.
func TempWarcPath(base string, compressed bool) string {
	name := uuid.New().String() + ".warc"
	if compressed {
		name += ".gz"
	}
	return filepath.Join(base, tmpDir, name)
}

// TempWarcDir returns <base>/tmp/warcs.
func TempWarcDir(base string) string {
	return filepath.Join(base, tmpDir)
}

// AuDirPath returns <base>/collections/<coll>/au-<md5(auid)>.
func AuDirPath(base, collection, auid string) string {
	return filepath.Join(base, collectionsDir, collection, AuDir(auid))
}

// JournalPath returns <base>/collections/<coll>/au-<md5(auid)>/lockss-repo.warc.
func JournalPath(base, collection, auid string) string {
	return filepath.Join(AuDirPath(base, collection, auid), journalName)
}

// ActiveWarcPath returns a fresh active permanent WARC path for an AU,
// stamped with the current UTC timestamp:
// <base>/collections/<coll>/au-<md5(auid)>/artifacts_<timestamp>.warc.
func ActiveWarcPath(base, collection, auid string, ts time.Time) string {
	name := fmt.Sprintf("artifacts_%s.warc", timestamp.PathTimestamp(ts))
	return filepath.Join(AuDirPath(base, collection, auid), name)
}

// SealedDirPath returns <base>/sealed.
func SealedDirPath(base string) string {
	return filepath.Join(base, sealedDir)
}

// SealedWarcPath returns the destination path for a sealed WARC:
// <base>/sealed/<coll>_au-<md5(auid)>_<timestamp>artifacts.warc.
func SealedWarcPath(base, collection, auid string, ts time.Time) string {
	name := fmt.Sprintf("%s_%s_%sartifacts.warc", collection, AuDir(auid), timestamp.PathTimestamp(ts))
	return filepath.Join(SealedDirPath(base), name)
}

// IsTempPath reports whether p sits under some base's tmp/warcs directory.
// The store uses this to recognize a storage URL that already points at
// permanent storage, so a repeat commit is a no-op rather than a re-copy.
func IsTempPath(p string) bool {
	return strings.Contains(filepath.ToSlash(p), "/"+tmpDir+"/")
}
