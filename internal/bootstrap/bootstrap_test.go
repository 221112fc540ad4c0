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

package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"silomq/internal/config"
)

func TestPrepareCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	dataRoot := filepath.Join(dir, "data")
	cfg := &config.BrokerConfig{
		DataStorageVolume: dataRoot,
		Topics: []config.TopicConfig{
			{ID: "orders", Partitions: 3},
			{ID: "events", Partitions: 1},
		},
	}

	layout, err := Prepare(cfg)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	for _, dir := range []string{layout.DataRoot, layout.TopicsRoot, TopicDir(layout, "orders"), TopicDir(layout, "events")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", dir, err)
		}
	}

	body, err := os.ReadFile(layout.ConfigLogPath)
	if err != nil {
		t.Fatalf("read config.log: %v", err)
	}
	want := "topic_config|orders|3\ntopic_config|events|1\n"
	if string(body) != want {
		t.Fatalf("config.log mismatch: got %q want %q", string(body), want)
	}
}

func TestPrepareWithRebootDeletesExistingRoot(t *testing.T) {
	dir := t.TempDir()
	dataRoot := filepath.Join(dir, "data")
	cfg := &config.BrokerConfig{DataStorageVolume: dataRoot, Topics: []config.TopicConfig{{ID: "t", Partitions: 1}}}

	if _, err := Prepare(cfg); err != nil {
		t.Fatalf("first prepare: %v", err)
	}
	stalePath := filepath.Join(dataRoot, "stale.marker")
	if err := os.WriteFile(stalePath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	cfg.Reboot = true
	if _, err := Prepare(cfg); err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Fatalf("expected stale marker to be removed by reboot, stat err=%v", err)
	}
}

func TestPrepareWithoutRebootPreservesExistingData(t *testing.T) {
	dir := t.TempDir()
	dataRoot := filepath.Join(dir, "data")
	cfg := &config.BrokerConfig{DataStorageVolume: dataRoot, Topics: []config.TopicConfig{{ID: "t", Partitions: 1}}}

	if _, err := Prepare(cfg); err != nil {
		t.Fatalf("first prepare: %v", err)
	}
	marker := filepath.Join(dataRoot, "keep.marker")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	if _, err := Prepare(cfg); err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("expected marker to survive a non-reboot prepare: %v", err)
	}
}
