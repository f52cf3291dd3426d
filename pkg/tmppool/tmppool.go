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

// Package tmppool maintains a set of temporary WARC files beneath a data
// store's temp base path, lending out files with enough free capacity to
// hold a pending artifact without crossing the per-file size threshold.
//
// A Pool is owned by a single Store instance rather than a package-level
// singleton, so two Store instances (e.g. in tests) never contend over the
// same in-use bookkeeping.
package tmppool

import (
	"fmt"
	"os"
	"sync"

	"github.com/nlnwa/warcrepo/pkg/warcpath"
)

const defaultBlockSize = 4096

// WarcFile is one pooled temporary WARC file.
type WarcFile struct {
	Path       string
	Compressed bool
	File       *os.File

	mu     sync.Mutex
	length int64
	inUse  bool
}

// Length returns the file's current length, protected by the file's own
// write lock (the same singleWarcFileWriter-style lock the teacher holds
// for the duration of a single write).
func (f *WarcFile) Length() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.length
}

// Lock serializes writers against this file; Write calls must hold it for
// the duration of a record append.
func (f *WarcFile) Lock()   { f.mu.Lock() }
func (f *WarcFile) Unlock() { f.mu.Unlock() }

// SetLength updates the tracked length after a successful append. Callers
// must hold the file's lock.
func (f *WarcFile) SetLength(n int64) { f.length = n }

// Pool is a registry of pooled temporary WARC files for one base path.
type Pool struct {
	base      string
	threshold int64
	blockSize int64

	mu    sync.Mutex
	files []*WarcFile
}

// New creates a pool rooted at base, with threshold as the maximum length a
// pooled file may reach before it is excluded from selection (a fresh file
// is created instead), and blockSize as the best-fit scoring unit (0 means
// the default of 4096, the common filesystem block size).
func New(base string, threshold, blockSize int64) *Pool {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	return &Pool{base: base, threshold: threshold, blockSize: blockSize}
}

// bestFitScore is ((length + bytesExpected - 1) mod blockSize) + 1: the
// number of bytes used in the file's trailing disk block after the
// candidate write, maximized by the selection policy to minimize wasted
// space.
func (p *Pool) bestFitScore(length, bytesExpected int64) int64 {
	return (length+bytesExpected-1)%p.blockSize + 1
}

// FindWarc selects the best-fitting not-in-use pooled file of the given
// compression mode that can hold bytesExpected without crossing threshold,
// and marks it in use. If none qualifies, it creates a fresh file with a
// UUID-derived name and the configured extension.
func (p *Pool) FindWarc(bytesExpected int64, compressed bool) (*WarcFile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *WarcFile
	var bestScore int64 = -1
	for _, f := range p.files {
		f.mu.Lock()
		fits := !f.inUse && f.Compressed == compressed && f.length+bytesExpected <= p.threshold
		length := f.length
		f.mu.Unlock()
		if !fits {
			continue
		}
		score := p.bestFitScore(length, bytesExpected)
		if score > bestScore {
			best, bestScore = f, score
		}
	}
	if best != nil {
		best.mu.Lock()
		best.inUse = true
		best.mu.Unlock()
		return best, nil
	}

	path := warcpath.TempWarcPath(p.base, compressed)
	if err := os.MkdirAll(warcpath.TempWarcDir(p.base), 0777); err != nil {
		return nil, fmt.Errorf("tmppool: create temp dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("tmppool: create temp file: %w", err)
	}
	f := &WarcFile{Path: path, Compressed: compressed, File: file, inUse: true}
	p.files = append(p.files, f)
	return f, nil
}

// ReturnWarc marks f not in use, making it eligible for selection again.
func (p *Pool) ReturnWarc(f *WarcFile) {
	f.mu.Lock()
	f.inUse = false
	f.mu.Unlock()
}

// RemoveWarc removes path from the pool. It warns (returns an error) rather
// than force-releasing a live writer if the file is currently in use.
func (p *Pool) RemoveWarc(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, f := range p.files {
		if f.Path != path {
			continue
		}
		f.mu.Lock()
		inUse := f.inUse
		f.mu.Unlock()
		if inUse {
			return fmt.Errorf("tmppool: %s is in use, not removing", path)
		}
		p.files = append(p.files[:i], p.files[i+1:]...)
		return nil
	}
	return nil
}

// Adopt registers an already-open file discovered during temp WARC reload
// (§4.4.3 recovery) with the given known length, so it participates in
// future FindWarc selection without being reopened.
func (p *Pool) Adopt(path string, compressed bool, length int64, file *os.File) *WarcFile {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := &WarcFile{Path: path, Compressed: compressed, File: file, length: length}
	p.files = append(p.files, f)
	return f
}

// Files returns a snapshot of the pool's current files, for reload/GC scans.
func (p *Pool) Files() []*WarcFile {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*WarcFile, len(p.files))
	copy(out, p.files)
	return out
}
