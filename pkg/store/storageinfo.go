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

import (
	"golang.org/x/sys/unix"

	"github.com/nlnwa/warcrepo/pkg/artifact"
)

// Info is the storage-info query result of §6's "boundary interfaces (out)":
// total/used/available bytes and percent used, for one base path.
type Info struct {
	Total        uint64
	Used         uint64
	Available    uint64
	PercentUsed  float64
}

// StorageInfo reports filesystem usage for the volume backing path, via
// unix.Statfs - the same syscall-level source the teacher's disk-pressure
// checks would use, rather than shelling out to `df`.
func StorageInfo(path string) (Info, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Info{}, artifact.NewIoError(err, "store: statfs %s", path)
	}
	blockSize := uint64(st.Bsize)
	total := st.Blocks * blockSize
	available := st.Bavail * blockSize
	free := st.Bfree * blockSize
	used := total - free
	var percent float64
	if total > 0 {
		percent = float64(used) / float64(total) * 100
	}
	return Info{
		Total:       total,
		Used:        used,
		Available:   available,
		PercentUsed: percent,
	}, nil
}
