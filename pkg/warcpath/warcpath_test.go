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

package warcpath

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuDir(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("au-5ababd603b22780302dd8d83498e5172", AuDir("example.com"))
	// Deterministic across calls.
	assert.Equal(AuDir("example.com"), AuDir("example.com"))
	assert.NotEqual(AuDir("example.com"), AuDir("example.org"))
}

func TestActiveWarcPath(t *testing.T) {
	assert := assert.New(t)
	ts := time.Date(2001, 9, 12, 5, 30, 20, 123000000, time.UTC)
	p := ActiveWarcPath("/data", "c1", "au1", ts)
	assert.Equal("/data/collections/c1/"+AuDir("au1")+"/artifacts_20010912053020123.warc", p)
}

func TestSealedWarcPath(t *testing.T) {
	assert := assert.New(t)
	ts := time.Date(2001, 9, 12, 5, 30, 20, 123000000, time.UTC)
	p := SealedWarcPath("/data", "c1", "au1", ts)
	assert.Equal("/data/sealed/c1_"+AuDir("au1")+"_20010912053020123artifacts.warc", p)
}

func TestJournalPath(t *testing.T) {
	assert := assert.New(t)
	p := JournalPath("/data", "c1", "au1")
	assert.Equal("/data/collections/c1/"+AuDir("au1")+"/lockss-repo.warc", p)
}

func TestTempWarcPath(t *testing.T) {
	assert := assert.New(t)
	p := TempWarcPath("/data", false)
	assert.Contains(p, "/data/tmp/warcs/")
	assert.Regexp(`\.warc$`, p)

	pgz := TempWarcPath("/data", true)
	assert.Regexp(`\.warc\.gz$`, pgz)
}

func TestIsTempPath(t *testing.T) {
	assert := assert.New(t)
	assert.True(IsTempPath(TempWarcPath("/data", false)))
	assert.False(IsTempPath(ActiveWarcPath("/data", "c1", "au1", time.Now())))
}
