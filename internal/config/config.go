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
Package config loads BrokerConfig from three layered sources, in order of
increasing precedence: a JSON config file, SILOMQ_* environment
variables, and command-line flags. The file and environment layers are
merged into a single map and decoded with mapstructure so that adding a
field to BrokerConfig doesn't require hand-written assignment code for
the file/env path; only flags, which must be declared individually
anyway, are applied as a separate final pass.
*/
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// TopicConfig describes one statically configured topic.
type TopicConfig struct {
	ID         string `json:"id" mapstructure:"id"`
	Partitions int    `json:"partitions" mapstructure:"partitions"`
}

// BrokerConfig is the fully resolved configuration handed to bootstrap
// and the core.
type BrokerConfig struct {
	BrokerID            string        `json:"brokerId" mapstructure:"brokerId"`
	Reboot              bool          `json:"reboot" mapstructure:"reboot"`
	Port                int           `json:"port" mapstructure:"port"`
	DataStorageVolume   string        `json:"dataStorageVolume" mapstructure:"dataStorageVolume"`
	IngressLogFile      string        `json:"ingressLogFile" mapstructure:"ingressLogFile"`
	IngressMetadataFile string        `json:"ingressMetadataFile" mapstructure:"ingressMetadataFile"`
	Topics              []TopicConfig `json:"topics" mapstructure:"topics"`
}

func defaultsMap() map[string]interface{} {
	return map[string]interface{}{
		"brokerId":            "broker-1",
		"reboot":              false,
		"port":                8080,
		"dataStorageVolume":   "./data",
		"ingressLogFile":      "ingress.log",
		"ingressMetadataFile": "ingress_metadata.log",
		"topics":              []interface{}{},
	}
}

// Load resolves a BrokerConfig from configPath (JSON, optional), the
// process environment, and args (typically os.Args[1:]).
func Load(configPath string, args []string) (*BrokerConfig, error) {
	merged := defaultsMap()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
		var fromFile map[string]interface{}
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", configPath, err)
		}
		for k, v := range fromFile {
			merged[k] = v
		}
	}

	applyEnv(merged)

	var cfg BrokerConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("config: building decoder: %w", err)
	}
	if err := dec.Decode(merged); err != nil {
		return nil, fmt.Errorf("config: decoding merged configuration: %w", err)
	}

	if err := applyFlags(&cfg, args); err != nil {
		return nil, err
	}

	cfg.finalize()
	return &cfg, nil
}

// applyEnv overlays SILOMQ_* environment variables onto merged, matching
// the env var names spec.md fixes: PORT, BROKER_ID, DATA_STORAGE_VOLUME,
// INGRESS_LOG_FILE, INGRESS_METADATA_FILE, each read with an SILOMQ_
// prefix.
func applyEnv(merged map[string]interface{}) {
	if v := os.Getenv("SILOMQ_BROKER_ID"); v != "" {
		merged["brokerId"] = v
	}
	if v := os.Getenv("SILOMQ_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			merged["port"] = n
		}
	}
	if v := os.Getenv("SILOMQ_DATA_STORAGE_VOLUME"); v != "" {
		merged["dataStorageVolume"] = v
	}
	if v := os.Getenv("SILOMQ_INGRESS_LOG_FILE"); v != "" {
		merged["ingressLogFile"] = v
	}
	if v := os.Getenv("SILOMQ_INGRESS_METADATA_FILE"); v != "" {
		merged["ingressMetadataFile"] = v
	}
	if v := os.Getenv("SILOMQ_REBOOT"); v != "" {
		merged["reboot"] = strings.EqualFold(v, "true") || v == "1"
	}
}

// applyFlags is the highest-precedence layer: CLI flags override
// whatever the file/env layers produced.
func applyFlags(cfg *BrokerConfig, args []string) error {
	fs := flag.NewFlagSet("silomq", flag.ContinueOnError)
	brokerID := fs.String("broker-id", cfg.BrokerID, "broker identifier")
	port := fs.Int("port", cfg.Port, "HTTP listen port")
	dataDir := fs.String("data-dir", cfg.DataStorageVolume, "data root directory")
	reboot := fs.Bool("reboot", cfg.Reboot, "delete the data root before starting")
	configFile := fs.String("config", "", "path to a JSON config file (handled by the caller)")
	_ = configFile
	// advertise/admin-token are consumed by cmd/silomq directly, not by
	// BrokerConfig, but they must still be declared here so that parsing
	// the same os.Args slice twice (once by the caller, once by this
	// flag set) doesn't fail with "flag provided but not defined".
	advertise := fs.Bool("advertise", false, "advertise this broker over mDNS")
	adminToken := fs.String("admin-token", "", "bearer token required by the admin WebSocket gateway")
	_, _ = advertise, adminToken

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("config: parsing flags: %w", err)
	}

	cfg.BrokerID = *brokerID
	cfg.Port = *port
	cfg.DataStorageVolume = *dataDir
	cfg.Reboot = *reboot
	return nil
}

func (c *BrokerConfig) finalize() {
	if c.BrokerID == "" {
		c.BrokerID = "broker-1"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.DataStorageVolume == "" {
		c.DataStorageVolume = "./data"
	}
	if c.IngressLogFile == "" {
		c.IngressLogFile = "ingress.log"
	}
	if c.IngressMetadataFile == "" {
		c.IngressMetadataFile = "ingress_metadata.log"
	}
}
