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

// Package ingress implements the WAL-backed staging buffer every produced
// message passes through before the broker dispatch loop routes it to a
// topic. Messages are visible to the in-memory queue (and so to a drain)
// before their WAL flush completes; see Buffer.Push for the durability
// trade-off this implies.
package ingress

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"silomq/internal/logging"
	"silomq/internal/message"
	"silomq/internal/queue"
	"silomq/internal/walio"
)

const (
	// DefaultMaxSize is the soft cap on in-memory queue size.
	DefaultMaxSize = 200_000_000
	// DefaultBatchSize forces a synchronous flush once this many writes
	// are staged.
	DefaultBatchSize = 1000
	// DefaultFlushInterval is the single-shot timer delay armed after
	// the first staged write following an idle buffer.
	DefaultFlushInterval = 200 * time.Millisecond
)

type pendingWrite struct {
	offset uint64
	msg    message.Message
}

// Buffer is the ingress staging buffer for one broker.
type Buffer struct {
	brokerID      string
	log           *walio.LogFileHandler
	index         *walio.Index
	metadataPath  string
	maxSize       int
	batchSize     int
	flushInterval time.Duration
	logger        *logging.Logger

	mu            sync.Mutex
	queue         *queue.Queue[message.Message]
	pendingWrites []pendingWrite
	logEndOffset  uint64
	readOffset    uint64
	isFlushing    bool
	timerArmed    bool
	lastFlushErr  error
}

// Options configures a Buffer's tunables; zero values fall back to the
// package defaults.
type Options struct {
	MaxSize       int
	BatchSize     int
	FlushInterval time.Duration
}

// Open recovers or initialises the ingress buffer rooted at dataDir,
// following the recovery protocol: ensure files exist, validate metadata,
// and replay the WAL suffix starting at readOffset into memory.
func Open(dataDir, brokerID string, opts Options) (*Buffer, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}

	logPath := dataDir + "/ingress.log"
	metadataPath := dataDir + "/ingress_metadata.log"
	indexPath := dataDir + "/ingress.index"

	handler, err := walio.OpenLogFileHandler(logPath)
	if err != nil {
		return nil, err
	}
	idx, err := walio.OpenIndex(indexPath)
	if err != nil {
		handler.Close()
		return nil, err
	}

	b := &Buffer{
		brokerID:      brokerID,
		log:           handler,
		index:         idx,
		metadataPath:  metadataPath,
		maxSize:       opts.MaxSize,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		logger:        logging.NewLogger("ingress"),
		queue:         queue.New[message.Message](),
	}

	if err := b.recover(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Buffer) recover() error {
	logEnd, readOff, err := loadOrSeedMetadata(b.metadataPath)
	if err != nil {
		return err
	}
	if logEnd < readOff {
		return walio.New(walio.BufferBuildFailed, "ingress.recover",
			fmt.Errorf("logEndOffset %d < readOffset %d", logEnd, readOff))
	}
	b.logEndOffset = logEnd
	b.readOffset = readOff

	lines, skip, err := b.readRecoverySuffix(readOff)
	if err != nil {
		return walio.New(walio.BufferBuildFailed, "ingress.recover", err)
	}
	for i, line := range lines {
		if i < skip {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		_, msg, err := walio.ParseIngressRecord(line)
		if err != nil {
			return walio.New(walio.BufferBuildFailed, "ingress.recover", err)
		}
		b.queue.Enqueue(msg)
	}
	return nil
}

// readRecoverySuffix seeks to the WAL position of the indexed line at or
// before readOff and reads forward from there, instead of scanning the
// whole file from byte zero. Lookup only pins the last indexed entry at
// or before readOff, not readOff itself, so the returned lines still
// start at or before the replay point; skip reports how many of them
// (counted from the front) are already-committed and must be discarded.
// Falls back to a full scan when the index has no usable entry yet.
func (b *Buffer) readRecoverySuffix(readOff uint64) ([]string, int, error) {
	if readOff > 0 {
		if foundOffset, pos, err := b.index.Lookup(readOff); err == nil {
			lines, err := b.log.ReadLinesFrom(int64(pos))
			if err != nil {
				return nil, 0, err
			}
			return lines, int(readOff - foundOffset + 1), nil
		}
	}
	lines, err := b.log.ReadAllLines()
	if err != nil {
		return nil, 0, err
	}
	return lines, int(readOff), nil
}

// loadOrSeedMetadata reads the single metadata line, creating it with
// defaults (ingress|0|0) if the file is absent.
func loadOrSeedMetadata(path string) (logEnd, readOff uint64, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := os.WriteFile(path, []byte("ingress|0|0\n"), 0o644); werr != nil {
			return 0, 0, walio.New(walio.FileNotFound, "ingress.loadOrSeedMetadata", werr)
		}
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, walio.New(walio.FileNotFound, "ingress.loadOrSeedMetadata", err)
	}
	line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	fields := strings.Split(line, "|")
	if len(fields) != 3 || fields[0] != "ingress" {
		return 0, 0, walio.New(walio.MalformedMetadata, "ingress.loadOrSeedMetadata",
			fmt.Errorf("expected 'ingress|logEndOffset|readOffset', got %q", line))
	}
	logEnd, e1 := strconv.ParseUint(fields[1], 10, 64)
	readOff, e2 := strconv.ParseUint(fields[2], 10, 64)
	if e1 != nil || e2 != nil {
		return 0, 0, walio.New(walio.MalformedMetadata, "ingress.loadOrSeedMetadata",
			fmt.Errorf("non-numeric offsets in %q", line))
	}
	return logEnd, readOff, nil
}

func writeMetadata(path string, logEnd, readOff uint64) error {
	line := "ingress|" + strconv.FormatUint(logEnd, 10) + "|" + strconv.FormatUint(readOff, 10) + "\n"
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		return walio.New(walio.AppendFailed, "ingress.writeMetadata", err)
	}
	return nil
}

// Push stages message for durable append and makes it immediately visible
// to batchExtract, ahead of the WAL flush completing. It returns
// BufferFull if the in-memory queue is already at capacity, or the error
// from a previous flush that failed since the last Push (see Flush).
func (b *Buffer) Push(msg message.Message) error {
	b.mu.Lock()

	if pending := b.lastFlushErr; pending != nil {
		b.lastFlushErr = nil
		b.mu.Unlock()
		return pending
	}

	if b.queue.Size() >= b.maxSize {
		b.mu.Unlock()
		return walio.New(walio.BufferFull, "ingress.Push", nil)
	}

	offset := b.logEndOffset + uint64(len(b.pendingWrites)) + 1
	b.pendingWrites = append(b.pendingWrites, pendingWrite{offset: offset, msg: msg})
	b.queue.Enqueue(msg)

	shouldFlushNow := len(b.pendingWrites) >= b.batchSize
	shouldArmTimer := !shouldFlushNow && !b.timerArmed
	if shouldArmTimer {
		b.timerArmed = true
	}
	b.mu.Unlock()

	if shouldFlushNow {
		b.Flush()
	} else if shouldArmTimer {
		time.AfterFunc(b.flushInterval, func() {
			b.mu.Lock()
			b.timerArmed = false
			b.mu.Unlock()
			b.Flush()
		})
	}
	return nil
}

// Flush performs at most one concurrent WAL append of every currently
// staged write. A Flush call that finds another already in progress is a
// no-op: the in-flight flush re-checks the staging list when it finishes
// and flushes anything staged since. The batch stays in pendingWrites
// until its append completes, so offsets assigned by Push meanwhile
// continue after it. A failed batch is dropped and the offsets of writes
// staged behind it are shifted down to stay contiguous with logEndOffset.
func (b *Buffer) Flush() {
	b.mu.Lock()
	if b.isFlushing || len(b.pendingWrites) == 0 {
		b.mu.Unlock()
		return
	}
	b.isFlushing = true
	batch := append([]pendingWrite(nil), b.pendingWrites...)
	b.mu.Unlock()

	var sb strings.Builder
	lineStarts := make([]int, len(batch))
	running := 0
	for i, pw := range batch {
		rec, err := walio.FormatIngressRecord(b.brokerID, pw.offset, pw.msg.TopicID, pw.msg.MessageID, pw.msg.Content)
		if err != nil {
			b.finishFlush(len(batch), walio.New(walio.AppendFailed, "ingress.Flush", err))
			return
		}
		lineStarts[i] = running
		running += len(rec)
		sb.WriteString(rec)
	}

	basePos, err := b.log.Append(sb.String())
	if err != nil {
		b.finishFlush(len(batch), err)
		return
	}
	for i, pw := range batch {
		if err := b.index.Append(pw.offset, uint64(basePos)+uint64(lineStarts[i])); err != nil {
			b.logger.Warn("ingress index append failed, later records are not indexed", "offset", pw.offset, "error", err)
			break
		}
	}

	b.mu.Lock()
	b.pendingWrites = b.pendingWrites[len(batch):]
	b.logEndOffset = batch[len(batch)-1].offset
	logEnd := b.logEndOffset
	readOff := b.readOffset
	b.isFlushing = false
	more := len(b.pendingWrites) > 0
	b.mu.Unlock()

	if err := writeMetadata(b.metadataPath, logEnd, readOff); err != nil {
		b.finishFlush(0, err)
		return
	}
	b.logger.Debug("flushed ingress batch", "count", len(batch), "logEndOffset", logEnd)
	if more {
		b.Flush()
	}
}

// finishFlush drops the first dropped staged writes, shifts the offsets of
// the rest down by that amount, and records err for the next Push.
func (b *Buffer) finishFlush(dropped int, err error) {
	b.mu.Lock()
	b.pendingWrites = b.pendingWrites[dropped:]
	for i := range b.pendingWrites {
		b.pendingWrites[i].offset -= uint64(dropped)
	}
	b.isFlushing = false
	b.lastFlushErr = err
	b.mu.Unlock()
	b.logger.Error("ingress flush failed", "error", err)
}

// BatchExtract dequeues up to n messages in FIFO order and advances
// readOffset by the number actually dequeued. It returns BufferEmpty if
// the queue holds nothing.
func (b *Buffer) BatchExtract(n int) ([]message.Message, error) {
	b.mu.Lock()
	if b.queue.IsEmpty() {
		b.mu.Unlock()
		return nil, walio.New(walio.BufferEmpty, "ingress.BatchExtract", nil)
	}
	msgs := b.queue.DequeueBatch(n)
	b.readOffset += uint64(len(msgs))
	logEnd, readOff := b.logEndOffset, b.readOffset
	b.mu.Unlock()

	if err := writeMetadata(b.metadataPath, logEnd, readOff); err != nil {
		b.logger.Error("failed to persist ingress readOffset", "error", err)
	}
	return msgs, nil
}

// LogEndOffset returns the last offset written to the WAL by a completed
// flush; writes that are only staged are not counted.
func (b *Buffer) LogEndOffset() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logEndOffset
}

// ReadOffset returns the last offset drained by the broker loop.
func (b *Buffer) ReadOffset() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readOffset
}

// Close flushes any pending writes and closes the underlying files.
func (b *Buffer) Close() error {
	b.Flush()
	if err := b.index.Close(); err != nil {
		return err
	}
	return b.log.Close()
}
