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

// Package bootstrap creates the on-disk layout the core expects to find
// at startup: the data root, one directory per configured topic, and
// config.log recording the topic/partition layout. It is a thin,
// separately testable layer; the core's only dependency on it is that
// these paths already exist with valid contents by the time Open is
// called on the ingress buffer, a topic, or the TPC map.
package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"silomq/internal/config"
	"silomq/internal/logging"
)

// Layout is the resolved set of paths the core reads from and writes to.
type Layout struct {
	DataRoot      string
	ConfigLogPath string
	TPCLogPath    string
	TopicsRoot    string
}

// Prepare creates the on-disk layout for cfg, deleting any existing data
// root first if cfg.Reboot is set.
func Prepare(cfg *config.BrokerConfig) (Layout, error) {
	logger := logging.NewLogger("bootstrap")
	layout := Layout{
		DataRoot:      cfg.DataStorageVolume,
		ConfigLogPath: filepath.Join(cfg.DataStorageVolume, "config.log"),
		TPCLogPath:    filepath.Join(cfg.DataStorageVolume, "TPC.log"),
		TopicsRoot:    filepath.Join(cfg.DataStorageVolume, "topics"),
	}

	if cfg.Reboot {
		logger.Warn("reboot requested, deleting existing data root", "path", layout.DataRoot)
		if err := os.RemoveAll(layout.DataRoot); err != nil {
			return Layout{}, fmt.Errorf("bootstrap: removing data root for reboot: %w", err)
		}
	}

	if err := os.MkdirAll(layout.DataRoot, 0o755); err != nil {
		return Layout{}, fmt.Errorf("bootstrap: creating data root: %w", err)
	}
	if err := os.MkdirAll(layout.TopicsRoot, 0o755); err != nil {
		return Layout{}, fmt.Errorf("bootstrap: creating topics root: %w", err)
	}
	for _, t := range cfg.Topics {
		dir := TopicDir(layout, t.ID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Layout{}, fmt.Errorf("bootstrap: creating directory for topic %q: %w", t.ID, err)
		}
	}

	if err := writeConfigLog(layout.ConfigLogPath, cfg.Topics); err != nil {
		return Layout{}, err
	}

	logger.Info("data layout ready", "dataRoot", layout.DataRoot, "topics", len(cfg.Topics))
	return layout, nil
}

// TopicDir returns the directory a topic's partitions and shared
// metadata file live under.
func TopicDir(layout Layout, topicID string) string {
	return filepath.Join(layout.TopicsRoot, "topic_"+topicID)
}

// writeConfigLog (re)writes config.log, one topic_config line per
// configured topic, in the order configured. Existing content is
// replaced: config.log reflects the configuration that is currently in
// effect, not an append-only history.
func writeConfigLog(path string, topics []config.TopicConfig) error {
	var sb strings.Builder
	for _, t := range topics {
		sb.WriteString("topic_config|")
		sb.WriteString(t.ID)
		sb.WriteByte('|')
		sb.WriteString(strconv.Itoa(t.Partitions))
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("bootstrap: writing config.log: %w", err)
	}
	return nil
}
