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

// Package topic owns a fixed set of partitions for one topic and routes
// messages to them by a deterministic hash of messageId.
package topic

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"silomq/internal/message"
	"silomq/internal/partition"
	"silomq/internal/walio"
)

// Topic is a container of a fixed set of partitions, indexed 0..N-1.
type Topic struct {
	id         string
	partitions []*partition.Partition
}

// Open recovers or initialises every partition of a topic with the given
// partition count, each rooted in dir (shared by all of that topic's
// partitions).
func Open(dir, topicID string, partitionCount int, maxPartitionSize int) (*Topic, error) {
	if partitionCount < 1 {
		return nil, walio.New(walio.BufferBuildFailed, "topic.Open",
			fmt.Errorf("topic %q has partitionCount %d, must be >= 1", topicID, partitionCount))
	}
	parts := make([]*partition.Partition, partitionCount)
	for i := 0; i < partitionCount; i++ {
		p, err := partition.Open(dir, topicID, uint32(i), maxPartitionSize)
		if err != nil {
			return nil, err
		}
		parts[i] = p
	}
	return &Topic{id: topicID, partitions: parts}, nil
}

// ID returns the topic's identifier.
func (t *Topic) ID() string {
	return t.id
}

// PartitionCount returns the fixed number of partitions this topic owns.
func (t *Topic) PartitionCount() int {
	return len(t.partitions)
}

// Partition returns the partition at index i, or nil if i is out of
// range.
func (t *Topic) Partition(i uint32) *partition.Partition {
	if int(i) >= len(t.partitions) {
		return nil
	}
	return t.partitions[i]
}

// RouteIndex computes the deterministic partition index for messageId
// under a partition count of n: the first 8 hex characters of
// SHA-256(messageId), parsed as a big-endian uint32, modulo n. Taking the
// first 4 raw bytes of the digest is equivalent to hex-encoding the
// digest and parsing its first 8 characters, without the round trip.
// This must stay stable across restarts and implementations, since
// existing WALs were written under this same routing.
func RouteIndex(messageID string, n int) uint32 {
	sum := sha256.Sum256([]byte(messageID))
	v := binary.BigEndian.Uint32(sum[:4])
	return v % uint32(n)
}

// Push routes msg to its partition by RouteIndex(msg.MessageID, N) and
// pushes it there.
func (t *Topic) Push(msg message.Message) error {
	idx := RouteIndex(msg.MessageID, len(t.partitions))
	return t.partitions[idx].Push(msg)
}

// Close closes every partition.
func (t *Topic) Close() error {
	var firstErr error
	for _, p := range t.partitions {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
