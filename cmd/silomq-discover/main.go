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
silomq-discover finds silomq brokers advertising themselves on the local
network over mDNS.

Usage:

	silomq-discover                  # discover brokers (5 second timeout)
	silomq-discover -timeout 10      # custom timeout in seconds
	silomq-discover -json            # output as JSON
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"silomq/internal/discovery"
	"silomq/pkg/cli"
)

func main() {
	timeout := flag.Int("timeout", 5, "discovery timeout in seconds")
	jsonOutput := flag.Bool("json", false, "output as JSON")
	flag.Parse()

	// The mdns library logs IPv6 lookup errors on many LANs; they aren't
	// actionable for this tool's purpose.
	log.SetOutput(io.Discard)

	cli.Info("scanning %s for %ds", discovery.ServiceType, *timeout)
	nodes, err := discovery.Browse(time.Duration(*timeout) * time.Second)
	if err != nil {
		cli.ErrorWithHint(fmt.Sprintf("discovery failed: %v", err), "check that the broker was started with -advertise")
		os.Exit(1)
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(nodes); err != nil {
			cli.Error("encoding results: %v", err)
			os.Exit(1)
		}
		return
	}

	if len(nodes) == 0 {
		cli.Warning("no silomq brokers found")
		return
	}
	cli.Header(fmt.Sprintf("found %d broker(s)", len(nodes)))
	for _, n := range nodes {
		cli.Success("%s", n.BrokerID)
		cli.KeyValue("address", fmt.Sprintf("%s:%d", n.Addr, n.Port))
		cli.KeyValue("host", n.Host)
	}
}
