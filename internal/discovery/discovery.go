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

// Package discovery advertises this broker over mDNS so that CLI tooling
// can find it on a LAN without a hardcoded address, and browses for other
// brokers doing the same. This is discovery of a single standalone node,
// not cluster membership: there is no gossip, no join protocol, and no
// shared state between brokers found this way.
package discovery

import (
	"fmt"
	"time"

	"github.com/hashicorp/mdns"

	"silomq/internal/logging"
)

// ServiceType is the mDNS service name silomq brokers advertise under.
const ServiceType = "_silomq._tcp"

// Advertiser keeps an mDNS responder alive for the lifetime of the
// process so other hosts on the LAN can find this broker.
type Advertiser struct {
	server *mdns.Server
	logger *logging.Logger
}

// Advertise starts broadcasting brokerID/port over mDNS. Call Shutdown
// when the broker stops.
func Advertise(brokerID string, port int) (*Advertiser, error) {
	info := []string{fmt.Sprintf("brokerId=%s", brokerID)}
	service, err := mdns.NewMDNSService(brokerID, ServiceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("discovery: building mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("discovery: starting mdns server: %w", err)
	}
	logger := logging.NewLogger("discovery")
	logger.Info("advertising broker over mDNS", "brokerId", brokerID, "port", port)
	return &Advertiser{server: server, logger: logger}, nil
}

// Shutdown stops advertising.
func (a *Advertiser) Shutdown() error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown()
}

// Node describes one broker discovered on the LAN.
type Node struct {
	BrokerID string
	Host     string
	Addr     string
	Port     int
}

// Browse blocks for timeout, collecting every silomq broker that answers
// the mDNS query.
func Browse(timeout time.Duration) ([]Node, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var nodes []Node
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			node := Node{Host: e.Host, Port: e.Port}
			if e.AddrV4 != nil {
				node.Addr = e.AddrV4.String()
			} else if e.AddrV6 != nil {
				node.Addr = e.AddrV6.String()
			}
			for _, field := range e.InfoFields {
				if len(field) > len("brokerId=") && field[:len("brokerId=")] == "brokerId=" {
					node.BrokerID = field[len("brokerId="):]
				}
			}
			nodes = append(nodes, node)
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true
	if err := mdns.Query(params); err != nil {
		close(entries)
		return nil, fmt.Errorf("discovery: querying mdns: %w", err)
	}
	close(entries)
	<-done
	return nodes, nil
}
