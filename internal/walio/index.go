/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package walio's Index memory-maps a small, fixed-width side file that
records, for every line appended to a WAL, the byte position at which
that line starts. Recovery (internal/ingress, internal/partition) scans
from readOffset forward; for a WAL that has accumulated many committed
lines, walking the text file from byte zero just to skip them is wasted
I/O. The index lets recovery seek straight to the byte position of line
readOffset and scan only the uncommitted suffix. The WAL text file
remains the durable source of truth; the index is a rebuildable
accelerator, never the only copy of anything.

Entries are fixed-width, 16 bytes each:

	+-------------------+--------------------+
	| offset (8 bytes)  | position (8 bytes) |
	+-------------------+--------------------+

This widens the teacher's 12-byte (uint32 offset, uint64 position) entry
to a uint64 offset, since offsets here are 1-based line counters over the
lifetime of a single unsegmented WAL rather than per-segment message
counts.
*/
package walio

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/tysonmote/gommap"
)

var idxEnc = binary.BigEndian

const (
	idxOffWidth = 8
	idxPosWidth = 8
	idxEntWidth = idxOffWidth + idxPosWidth
)

// defaultMaxIndexBytes bounds the pre-allocated mmap region. At 16 bytes
// per entry this covers 8M WAL lines; the region does not grow, and once
// it is full Append fails with io.EOF.
const defaultMaxIndexBytes = 8 * 1024 * 1024 * 16

// Index is a memory-mapped, append-only offset-to-position index living
// alongside one WAL file.
type Index struct {
	file *os.File
	mmap gommap.MMap
	size uint64
	cap  uint64
}

// OpenIndex opens (creating if necessary) the index file at path.
func OpenIndex(path string) (*Index, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, New(FileNotFound, "OpenIndex", err)
	}
	idx := &Index{file: f}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, New(FileNotFound, "OpenIndex", err)
	}
	savedSize := uint64(fi.Size())
	capBytes := uint64(defaultMaxIndexBytes)
	if savedSize > capBytes {
		capBytes = savedSize
	}
	if err := f.Truncate(int64(capBytes)); err != nil {
		f.Close()
		return nil, New(BufferBuildFailed, "OpenIndex", err)
	}
	m, err := gommap.Map(f.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, New(BufferBuildFailed, "OpenIndex", err)
	}
	idx.mmap = m
	idx.cap = capBytes
	idx.size = idx.recoverActualSize(savedSize, capBytes)
	return idx, nil
}

func (i *Index) recoverActualSize(savedSize, capBytes uint64) uint64 {
	if savedSize < capBytes && savedSize%idxEntWidth == 0 {
		return savedSize
	}
	numEntries := uint64(len(i.mmap)) / idxEntWidth
	low, high := uint64(0), numEntries
	for low < high {
		mid := (low + high) / 2
		if i.isZeroEntry(mid * idxEntWidth) {
			high = mid
		} else {
			low = mid + 1
		}
	}
	return low * idxEntWidth
}

func (i *Index) isZeroEntry(pos uint64) bool {
	if pos+idxEntWidth > uint64(len(i.mmap)) {
		return true
	}
	for j := pos; j < pos+idxEntWidth; j++ {
		if i.mmap[j] != 0 {
			return false
		}
	}
	return true
}

// Append records that the line with the given 1-based offset starts at
// byte position pos in the WAL file. Entries must be appended in
// increasing offset order, matching WAL append order. Once the
// pre-allocated region is exhausted, Append reports io.EOF and later
// lines go unindexed; recovery still works, because Lookup returns the
// last indexed line at or before its target and the caller scans the
// WAL forward from there.
func (i *Index) Append(offset, pos uint64) error {
	if i.size+idxEntWidth > i.cap {
		return io.EOF
	}
	idxEnc.PutUint64(i.mmap[i.size:i.size+idxOffWidth], offset)
	idxEnc.PutUint64(i.mmap[i.size+idxOffWidth:i.size+idxEntWidth], pos)
	i.size += idxEntWidth
	return nil
}

// Lookup returns the byte position recorded for the entry whose offset is
// the largest one not exceeding target, along with the offset it found,
// so recovery can seek to a line at-or-before target and scan forward
// from there. It returns io.EOF if the index has no entries at or before
// target (the caller should fall back to scanning from byte zero).
func (i *Index) Lookup(target uint64) (offset, pos uint64, err error) {
	n := i.size / idxEntWidth
	if n == 0 {
		return 0, 0, io.EOF
	}
	// Binary search for the rightmost entry with offset <= target.
	lo, hi := uint64(0), n
	for lo < hi {
		mid := (lo + hi) / 2
		off, _ := i.readEntry(mid)
		if off <= target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return 0, 0, io.EOF
	}
	return i.readEntry(lo - 1)
}

func (i *Index) readEntry(n uint64) (offset, pos uint64) {
	base := n * idxEntWidth
	offset = idxEnc.Uint64(i.mmap[base : base+idxOffWidth])
	pos = idxEnc.Uint64(i.mmap[base+idxOffWidth : base+idxEntWidth])
	return offset, pos
}

// Close syncs the mapped region, truncates the file to its used size, and
// closes it.
func (i *Index) Close() error {
	if err := i.mmap.Sync(gommap.MS_SYNC); err != nil {
		return err
	}
	if err := i.file.Sync(); err != nil {
		return err
	}
	if err := i.file.Truncate(int64(i.size)); err != nil {
		return err
	}
	return i.file.Close()
}

// Name returns the path of the underlying file.
func (i *Index) Name() string {
	return i.file.Name()
}
