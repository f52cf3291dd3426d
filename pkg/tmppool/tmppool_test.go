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

package tmppool

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindWarc_createsFreshFile(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	p := New(dir, 1<<20, 0)

	f, err := p.FindWarc(100, false)
	assert.NoError(err)
	assert.NotNil(f)
	assert.True(f.Compressed == false)

	_, err = os.Stat(f.Path)
	assert.NoError(err)
}

func TestFindWarc_reusesNotInUseFile(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	p := New(dir, 1<<20, 0)

	f1, err := p.FindWarc(100, false)
	assert.NoError(err)
	p.ReturnWarc(f1)

	f2, err := p.FindWarc(100, false)
	assert.NoError(err)
	assert.Same(f1, f2)
}

func TestFindWarc_skipsInUseFile(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	p := New(dir, 1<<20, 0)

	f1, err := p.FindWarc(100, false)
	assert.NoError(err)

	f2, err := p.FindWarc(100, false)
	assert.NoError(err)
	assert.NotSame(f1, f2)
}

func TestFindWarc_respectsThreshold(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	p := New(dir, 100, 0)

	f1, err := p.FindWarc(90, false)
	assert.NoError(err)
	f1.Lock()
	f1.SetLength(90)
	f1.Unlock()
	p.ReturnWarc(f1)

	// 90 + 50 > 100, so a fresh file is created instead of reusing f1.
	f2, err := p.FindWarc(50, false)
	assert.NoError(err)
	assert.NotSame(f1, f2)
}

func TestFindWarc_bestFitAmongCandidates(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	p := New(dir, 1<<20, 0)

	f1, _ := p.FindWarc(100, false)
	f1.Lock()
	f1.SetLength(10)
	f1.Unlock()

	// f1 is still in use here, so this creates a second file.
	f2, _ := p.FindWarc(100, false)
	f2.Lock()
	f2.SetLength(4000)
	f2.Unlock()
	p.ReturnWarc(f2)
	p.ReturnWarc(f1)

	// f2's trailing block is fuller than f1's for a 50-byte write, so it
	// should be selected.
	best, err := p.FindWarc(50, false)
	assert.NoError(err)
	assert.Same(f2, best)
}

func TestRemoveWarc_refusesInUse(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	p := New(dir, 1<<20, 0)

	f, _ := p.FindWarc(10, false)
	err := p.RemoveWarc(f.Path)
	assert.Error(err)

	p.ReturnWarc(f)
	err = p.RemoveWarc(f.Path)
	assert.NoError(err)
	assert.Empty(p.Files())
}
