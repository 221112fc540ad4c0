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

// Package partition implements the per-(topic, partition) durable buffer:
// an append-only WAL, a shared per-topic metadata file, and the
// peek-then-commit contract that gives consumers at-least-once delivery.
package partition

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"silomq/internal/logging"
	"silomq/internal/message"
	"silomq/internal/queue"
	"silomq/internal/walio"
)

// DefaultMaxSize is the soft cap on a partition's in-memory queue size.
const DefaultMaxSize = 200_000_000

// Partition is one ordered, append-only log bound to a single topic.
type Partition struct {
	topicID      string
	partitionID  uint32
	log          *walio.LogFileHandler
	index        *walio.Index
	metadataPath string
	maxSize      int
	logger       *logging.Logger

	mu           sync.Mutex
	queue        *queue.Queue[message.Message]
	logEndOffset uint64
	readOffset   uint64
}

// ExtractResult is the return value of BatchExtract.
type ExtractResult struct {
	Messages    []message.Message
	StartOffset uint64
	EndOffset   uint64
}

// CommitResult is the return value of CommitOffset.
type CommitResult struct {
	LogEndOffset  uint64
	NewReadOffset uint64
}

// metadataKey is the line prefix identifying this partition's entry in
// the topic's shared metadata file.
func metadataKey(topicID string, partitionID uint32) string {
	return fmt.Sprintf("%s_partition_%d", topicID, partitionID)
}

// Open recovers or initialises the partition rooted at dir (one
// directory per topic, shared by every partition of that topic).
func Open(dir, topicID string, partitionID uint32, maxSize int) (*Partition, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	logPath := fmt.Sprintf("%s/partition_%d.log", dir, partitionID)
	indexPath := fmt.Sprintf("%s/partition_%d.index", dir, partitionID)
	metadataPath := fmt.Sprintf("%s/%s_partition_metadata.log", dir, topicID)

	handler, err := walio.OpenLogFileHandler(logPath)
	if err != nil {
		return nil, err
	}
	idx, err := walio.OpenIndex(indexPath)
	if err != nil {
		handler.Close()
		return nil, err
	}

	p := &Partition{
		topicID:      topicID,
		partitionID:  partitionID,
		log:          handler,
		index:        idx,
		metadataPath: metadataPath,
		maxSize:      maxSize,
		logger:       logging.NewLogger("partition"),
		queue:        queue.New[message.Message](),
	}
	if err := p.recover(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Partition) recover() error {
	logEnd, readOff, err := loadOrSeedEntry(p.metadataPath, metadataKey(p.topicID, p.partitionID))
	if err != nil {
		return err
	}
	if logEnd < readOff {
		return walio.New(walio.BufferBuildFailed, "partition.recover",
			fmt.Errorf("logEndOffset %d < readOffset %d", logEnd, readOff))
	}
	p.logEndOffset = logEnd
	p.readOffset = readOff

	lines, skip, err := p.readRecoverySuffix(readOff)
	if err != nil {
		return walio.New(walio.BufferBuildFailed, "partition.recover", err)
	}
	for i, line := range lines {
		if i < skip {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		_, _, msg, err := walio.ParsePartitionRecord(line)
		if err != nil {
			return walio.New(walio.BufferBuildFailed, "partition.recover", err)
		}
		p.queue.Enqueue(msg)
	}
	return nil
}

// readRecoverySuffix seeks to the WAL position of the indexed line at or
// before readOff and reads forward from there, instead of scanning the
// whole file from byte zero. Lookup only pins the last indexed entry at
// or before readOff, not readOff itself, so skip reports how many lines
// (from the front of what's returned) are already-committed and must
// still be discarded. Falls back to a full scan when the index has no
// usable entry yet.
func (p *Partition) readRecoverySuffix(readOff uint64) ([]string, int, error) {
	if readOff > 0 {
		if foundOffset, pos, err := p.index.Lookup(readOff); err == nil {
			lines, err := p.log.ReadLinesFrom(int64(pos))
			if err != nil {
				return nil, 0, err
			}
			return lines, int(readOff - foundOffset + 1), nil
		}
	}
	lines, err := p.log.ReadAllLines()
	if err != nil {
		return nil, 0, err
	}
	return lines, int(readOff), nil
}

// loadOrSeedEntry reads the line for key out of the shared metadata file
// at path, creating the file (and/or appending the seeded line) if
// necessary.
func loadOrSeedEntry(path, key string) (logEnd, readOff uint64, err error) {
	lines, err := readMetadataLines(path)
	if err != nil {
		return 0, 0, err
	}
	for _, line := range lines {
		fields := strings.Split(line, "|")
		if len(fields) != 3 {
			return 0, 0, walio.New(walio.MalformedMetadata, "partition.loadOrSeedEntry",
				fmt.Errorf("expected 3 fields, got %q", line))
		}
		if fields[0] != key {
			continue
		}
		logEnd, e1 := strconv.ParseUint(fields[1], 10, 64)
		readOff, e2 := strconv.ParseUint(fields[2], 10, 64)
		if e1 != nil || e2 != nil {
			return 0, 0, walio.New(walio.MalformedMetadata, "partition.loadOrSeedEntry",
				fmt.Errorf("non-numeric offsets in %q", line))
		}
		return logEnd, readOff, nil
	}
	// Key absent: seed with zeros by appending a new line.
	if err := rewriteMetadataEntry(path, key, 0, 0); err != nil {
		return 0, 0, err
	}
	return 0, 0, nil
}

func readMetadataLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := os.WriteFile(path, nil, 0o644); werr != nil {
			return nil, walio.New(walio.FileNotFound, "partition.readMetadataLines", werr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, walio.New(walio.FileNotFound, "partition.readMetadataLines", err)
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// rewriteMetadataEntry updates the line for key (appending it if absent)
// and rewrites the whole file. Updates target only the matching line, per
// the shared-metadata-file contract.
func rewriteMetadataEntry(path, key string, logEnd, readOff uint64) error {
	lines, err := readMetadataLines(path)
	if err != nil {
		return err
	}
	newLine := key + "|" + strconv.FormatUint(logEnd, 10) + "|" + strconv.FormatUint(readOff, 10)
	found := false
	for i, line := range lines {
		fields := strings.SplitN(line, "|", 2)
		if len(fields) > 0 && fields[0] == key {
			lines[i] = newLine
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, newLine)
	}
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return walio.New(walio.AppendFailed, "partition.rewriteMetadataEntry", err)
	}
	return nil
}

// Push appends message to this partition's WAL at offset logEndOffset+1,
// then enqueues it in memory. The WAL append happens first; enqueue and
// offset advancement only happen on a successful append.
func (p *Partition) Push(msg message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue.Size() >= p.maxSize {
		return walio.New(walio.BufferFull, "partition.Push", nil)
	}

	offset := p.logEndOffset + 1
	rec, err := walio.FormatPartitionRecord(p.topicID, p.partitionID, offset, msg.MessageID, msg.Content)
	if err != nil {
		return walio.New(walio.AppendFailed, "partition.Push", err)
	}
	pos, err := p.log.Append(rec)
	if err != nil {
		return err
	}
	if err := p.index.Append(offset, uint64(pos)); err != nil {
		p.logger.Warn("partition index append failed, this record is not indexed", "offset", offset, "error", err)
	}

	p.queue.Enqueue(msg)
	p.logEndOffset = offset
	if err := rewriteMetadataEntry(p.metadataPath, metadataKey(p.topicID, p.partitionID), p.logEndOffset, p.readOffset); err != nil {
		return err
	}
	return nil
}

// BatchExtract peeks up to n messages without removing them. The caller
// must follow with CommitOffset(result.EndOffset) to make the removal
// effective; a crash between the two causes re-delivery.
func (p *Partition) BatchExtract(n int) (ExtractResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue.IsEmpty() {
		return ExtractResult{}, walio.New(walio.BufferEmpty, "partition.BatchExtract", nil)
	}
	msgs := p.queue.PeekBatch(n)
	return ExtractResult{
		Messages:    msgs,
		StartOffset: p.readOffset,
		EndOffset:   p.readOffset + uint64(len(msgs)),
	}, nil
}

// CommitOffset advances readOffset to offset, dequeuing the now-committed
// prefix from the in-memory queue. offset must not exceed logEndOffset.
func (p *Partition) CommitOffset(offset uint64) (CommitResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if offset > p.logEndOffset {
		return CommitResult{}, walio.New(walio.InvalidOffset, "partition.CommitOffset",
			fmt.Errorf("commit offset %d exceeds logEndOffset %d", offset, p.logEndOffset))
	}
	if offset > p.readOffset {
		k := offset - p.readOffset
		p.queue.DequeueBatch(int(k))
		p.readOffset = offset
	}
	if err := rewriteMetadataEntry(p.metadataPath, metadataKey(p.topicID, p.partitionID), p.logEndOffset, p.readOffset); err != nil {
		return CommitResult{}, err
	}
	return CommitResult{LogEndOffset: p.logEndOffset, NewReadOffset: p.readOffset}, nil
}

// LogEndOffset returns the last durably written offset.
func (p *Partition) LogEndOffset() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logEndOffset
}

// ReadOffset returns the last committed offset.
func (p *Partition) ReadOffset() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readOffset
}

// Size returns the current in-memory queue size.
func (p *Partition) Size() int {
	return p.queue.Size()
}

// ID returns the partition's index within its topic.
func (p *Partition) ID() uint32 {
	return p.partitionID
}

// Close flushes and closes the underlying files.
func (p *Partition) Close() error {
	if err := p.index.Close(); err != nil {
		return err
	}
	return p.log.Close()
}
