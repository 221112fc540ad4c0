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

// Package tpc implements the Topic-Partition-Consumer assignment map: a
// process-wide structure owned by the broker and mutated only by its
// registration routine, persisted as a full-file rewrite on every
// mutation. The HTTP commit handler does not consult or update the map,
// so commits are not checked against the assigned consumer.
package tpc

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"silomq/internal/walio"
)

// TopicSeed describes one configured topic's partition count, used to
// seed the map when no TPC log exists yet.
type TopicSeed struct {
	TopicID        string
	PartitionCount int
}

// Map is the Topic -> Partition -> ConsumerId assignment table.
type Map struct {
	mu   sync.Mutex
	path string
	// assignments[topicID][partitionID] = consumerID ("" means unassigned)
	assignments map[string]map[uint32]string
	// order preserves topic insertion order for deterministic log rewrites.
	order []string
}

// Open loads the TPC map from path if it exists; otherwise it seeds the
// map from seeds (one entry per configured topic, all partitions
// unassigned) and writes the log.
func Open(path string, seeds []TopicSeed) (*Map, error) {
	m := &Map{
		path:        path,
		assignments: make(map[string]map[uint32]string),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		for _, s := range seeds {
			m.ensureTopicLocked(s.TopicID, s.PartitionCount)
		}
		if err := m.rewriteLocked(); err != nil {
			return nil, err
		}
		return m, nil
	case err != nil:
		return nil, walio.New(walio.FileNotFound, "tpc.Open", err)
	}

	// Existing log is the source of truth; still ensure every configured
	// topic/partition from seeds is present (non-empty assignments are
	// never overridden by config-derived defaults).
	for _, s := range seeds {
		m.ensureTopicLocked(s.TopicID, s.PartitionCount)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.SplitN(line, "|", 3)
		if len(fields) != 3 {
			return nil, walio.New(walio.MalformedMetadata, "tpc.Open",
				fmt.Errorf("expected 'topicId|partitionId|consumerId', got %q", line))
		}
		topicID := fields[0]
		partitionID, perr := strconv.ParseUint(fields[1], 10, 32)
		if perr != nil {
			return nil, walio.New(walio.MalformedMetadata, "tpc.Open",
				fmt.Errorf("non-numeric partitionId in %q", line))
		}
		m.ensureTopicLocked(topicID, int(partitionID)+1)
		m.assignments[topicID][uint32(partitionID)] = fields[2]
	}
	return m, nil
}

func (m *Map) ensureTopicLocked(topicID string, partitionCount int) {
	if _, ok := m.assignments[topicID]; !ok {
		m.assignments[topicID] = make(map[uint32]string)
		m.order = append(m.order, topicID)
	}
	for i := 0; i < partitionCount; i++ {
		if _, ok := m.assignments[topicID][uint32(i)]; !ok {
			m.assignments[topicID][uint32(i)] = ""
		}
	}
}

// rewriteLocked rewrites the entire TPC log, one line per
// (topicID, partitionID) in deterministic order.
func (m *Map) rewriteLocked() error {
	var sb strings.Builder
	for _, topicID := range m.order {
		parts := m.assignments[topicID]
		ids := make([]int, 0, len(parts))
		for pid := range parts {
			ids = append(ids, int(pid))
		}
		sort.Ints(ids)
		for _, pid := range ids {
			sb.WriteString(topicID)
			sb.WriteByte('|')
			sb.WriteString(strconv.Itoa(pid))
			sb.WriteByte('|')
			sb.WriteString(parts[uint32(pid)])
			sb.WriteByte('\n')
		}
	}
	if err := os.WriteFile(m.path, []byte(sb.String()), 0o644); err != nil {
		return walio.New(walio.AppendFailed, "tpc.rewrite", err)
	}
	return nil
}

// Register assigns consumerID to a partition of topicID: idempotently,
// if consumerID already owns a partition of this topic, that partition id
// is returned unchanged; otherwise the first unassigned partition (lowest
// id) is claimed. Every mutation is followed by a full log rewrite.
func (m *Map) Register(topicID, consumerID string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts, ok := m.assignments[topicID]
	if !ok {
		return 0, walio.New(walio.TopicNotFound, "tpc.Register",
			fmt.Errorf("topic %q not in TPC map", topicID))
	}

	ids := make([]int, 0, len(parts))
	for pid := range parts {
		ids = append(ids, int(pid))
	}
	sort.Ints(ids)

	for _, pid := range ids {
		if parts[uint32(pid)] == consumerID {
			return uint32(pid), nil
		}
	}
	for _, pid := range ids {
		if parts[uint32(pid)] == "" {
			parts[uint32(pid)] = consumerID
			if err := m.rewriteLocked(); err != nil {
				parts[uint32(pid)] = ""
				return 0, err
			}
			return uint32(pid), nil
		}
	}
	return 0, walio.New(walio.NoPartitionAvailable, "tpc.Register",
		fmt.Errorf("every partition of topic %q already has a consumer", topicID))
}

// ConsumerOf returns the partition assigned to consumerID within
// topicID, and whether an assignment was found.
func (m *Map) ConsumerOf(topicID, consumerID string) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts, ok := m.assignments[topicID]
	if !ok {
		return 0, false
	}
	for pid, cid := range parts {
		if cid == consumerID {
			return pid, true
		}
	}
	return 0, false
}

// HasTopic reports whether topicID is present in the map.
func (m *Map) HasTopic(topicID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.assignments[topicID]
	return ok
}

// HasPartition reports whether (topicID, partitionID) is a configured
// slot in the map.
func (m *Map) HasPartition(topicID string, partitionID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts, ok := m.assignments[topicID]
	if !ok {
		return false
	}
	_, ok = parts[partitionID]
	return ok
}

// PartitionCount returns how many partitions topicID has in the map.
func (m *Map) PartitionCount(topicID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.assignments[topicID])
}

// Topics returns the configured topic ids in deterministic order.
func (m *Map) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
