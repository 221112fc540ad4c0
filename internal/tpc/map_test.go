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

package tpc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"silomq/internal/walio"
)

func TestRegisterTwoConsumersThenRejectThird(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TPC.log")
	m, err := Open(path, []TopicSeed{{TopicID: "t", PartitionCount: 2}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	p0, err := m.Register("t", "c1")
	if err != nil {
		t.Fatalf("register c1: %v", err)
	}
	p1, err := m.Register("t", "c2")
	if err != nil {
		t.Fatalf("register c2: %v", err)
	}
	if p0 == p1 {
		t.Fatalf("expected distinct partitions, both got %d", p0)
	}

	_, err = m.Register("t", "c3")
	if walio.KindOf(err) != walio.NoPartitionAvailable {
		t.Fatalf("expected NoPartitionAvailable, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "|c1\n") || !strings.Contains(got, "|c2\n") {
		t.Fatalf("TPC.log missing expected assignments: %q", got)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TPC.log")
	m, err := Open(path, []TopicSeed{{TopicID: "t", PartitionCount: 3}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	first, err := m.Register("t", "c1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := m.Register("t", "c1")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if first != second {
		t.Fatalf("expected idempotent registration, got %d then %d", first, second)
	}

	data, _ := os.ReadFile(path)
	if strings.Count(string(data), "c1") != 1 {
		t.Fatalf("expected exactly one entry for c1, got: %q", string(data))
	}
}

func TestUnknownTopicReturnsTopicNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TPC.log")
	m, err := Open(path, []TopicSeed{{TopicID: "t", PartitionCount: 1}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = m.Register("missing", "c1")
	if walio.KindOf(err) != walio.TopicNotFound {
		t.Fatalf("expected TopicNotFound, got %v", err)
	}
}

func TestExistingLogOverridesConfigSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TPC.log")
	if err := os.WriteFile(path, []byte("t|0|c1\nt|1|\n"), 0o644); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	m, err := Open(path, []TopicSeed{{TopicID: "t", PartitionCount: 2}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	pid, ok := m.ConsumerOf("t", "c1")
	if !ok || pid != 0 {
		t.Fatalf("expected c1 already assigned to partition 0 from the log, got pid=%d ok=%v", pid, ok)
	}
}
