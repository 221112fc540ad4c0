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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BrokerID != "broker-1" || cfg.Port != 8080 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"brokerId":"b-file","port":9090,"topics":[{"id":"orders","partitions":4}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BrokerID != "b-file" || cfg.Port != 9090 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if len(cfg.Topics) != 1 || cfg.Topics[0].ID != "orders" || cfg.Topics[0].Partitions != 4 {
		t.Fatalf("unexpected topics: %+v", cfg.Topics)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"brokerId":"b-file","port":9090}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SILOMQ_BROKER_ID", "b-env")
	t.Setenv("SILOMQ_PORT", "7070")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BrokerID != "b-env" || cfg.Port != 7070 {
		t.Fatalf("env did not override file: %+v", cfg)
	}
}

func TestFlagsOverrideEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"brokerId":"b-file","port":9090}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SILOMQ_BROKER_ID", "b-env")

	cfg, err := Load(path, []string{"-broker-id", "b-flag", "-port", "6060"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BrokerID != "b-flag" || cfg.Port != 6060 {
		t.Fatalf("flags did not take highest precedence: %+v", cfg)
	}
}
