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

package walio

import (
	"bufio"
	"io"
	"os"
	"sync"
)

// LogFileHandler appends pre-formatted records to a single append-only
// text file. Unlike the segmented, length-prefixed store it is adapted
// from, it writes the given newline-terminated text (one record, or a
// whole batch of records concatenated) per call and flushes the
// buffered writer without calling fsync, trading per-record durability
// for the batched-flush model the ingress buffer and partitions build on
// top of.
type LogFileHandler struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	size int64
}

// OpenLogFileHandler opens (creating if necessary) the file at path for
// append, positioned at its current end.
func OpenLogFileHandler(path string) (*LogFileHandler, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, New(FileNotFound, "OpenLogFileHandler", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, New(FileNotFound, "OpenLogFileHandler", err)
	}
	return &LogFileHandler{
		file: f,
		buf:  bufio.NewWriter(f),
		size: fi.Size(),
	}, nil
}

// Append writes record (already newline-terminated) at the current end of
// the file and flushes it to the OS. It returns the byte position the
// record started at, for callers that maintain an offset index. On any
// failure the caller must not advance its in-memory offset: the record
// may be partially written, and the handler's tracked size is not
// advanced, so positions returned by later Append calls do not account
// for any partially written bytes.
func (h *LogFileHandler) Append(record string) (pos int64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pos = h.size
	n, err := h.buf.WriteString(record)
	if err != nil {
		return 0, New(AppendFailed, "Append", err)
	}
	if err := h.buf.Flush(); err != nil {
		return 0, New(AppendFailed, "Append", err)
	}
	h.size += int64(n)
	return pos, nil
}

// ReadAllLines reads every line of the file from the start, in order.
// It is used only during recovery, before any in-memory offset tracking
// begins; steady-state reads go through the in-memory queue instead.
func (h *LogFileHandler) ReadAllLines() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.buf.Flush(); err != nil {
		return nil, New(AppendFailed, "ReadAllLines", err)
	}
	f, err := os.Open(h.file.Name())
	if err != nil {
		return nil, New(FileNotFound, "ReadAllLines", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, New(AppendFailed, "ReadAllLines", err)
	}
	return lines, nil
}

// ReadLinesFrom reads every line from byte position pos to EOF. pos must
// land exactly on a line boundary; Index.Lookup guarantees this for the
// positions it returns. It is the seek-then-scan counterpart to
// ReadAllLines, used when recovery has an index entry to start from.
func (h *LogFileHandler) ReadLinesFrom(pos int64) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.buf.Flush(); err != nil {
		return nil, New(AppendFailed, "ReadLinesFrom", err)
	}
	f, err := os.Open(h.file.Name())
	if err != nil {
		return nil, New(FileNotFound, "ReadLinesFrom", err)
	}
	defer f.Close()

	if pos > 0 {
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return nil, New(AppendFailed, "ReadLinesFrom", err)
		}
	}

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, New(AppendFailed, "ReadLinesFrom", err)
	}
	return lines, nil
}

// Close flushes and closes the underlying file.
func (h *LogFileHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.buf.Flush(); err != nil {
		return err
	}
	return h.file.Close()
}

// Name returns the path of the underlying file.
func (h *LogFileHandler) Name() string {
	return h.file.Name()
}
