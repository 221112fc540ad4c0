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

// Package wsadmin streams periodic broker counters to a connected admin
// client over a WebSocket. It is read-only: there is no command protocol
// here, just a push feed, since produce/consume/commit already have an
// HTTP surface (internal/httpapi) and this gateway exists purely for
// observability.
package wsadmin

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"silomq/internal/broker"
	"silomq/internal/logging"
)

// DefaultPushInterval is how often a connected admin client receives a
// fresh stats snapshot.
const DefaultPushInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PartitionStats is one partition's logEndOffset at snapshot time.
type PartitionStats struct {
	PartitionID  uint32 `json:"partitionId"`
	LogEndOffset uint64 `json:"logEndOffset"`
}

// TopicStats is one topic's partitions at snapshot time.
type TopicStats struct {
	TopicID    string           `json:"topicId"`
	Partitions []PartitionStats `json:"partitions"`
}

// Snapshot is pushed to every connected admin client on each tick.
type Snapshot struct {
	IngressLogEndOffset uint64       `json:"ingressLogEndOffset"`
	IngressReadOffset   uint64       `json:"ingressReadOffset"`
	DispatchLag         uint64       `json:"dispatchLag"`
	Topics              []TopicStats `json:"topics"`
}

// Gateway serves the admin WebSocket endpoint.
type Gateway struct {
	broker       *broker.Broker
	pushInterval time.Duration
	logger       *logging.Logger
}

// NewGateway builds a Gateway over b, pushing a snapshot every
// DefaultPushInterval.
func NewGateway(b *broker.Broker) *Gateway {
	return &Gateway{broker: b, pushInterval: DefaultPushInterval, logger: logging.NewLogger("wsadmin")}
}

// ServeHTTP upgrades the connection and pushes snapshots until the client
// disconnects.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("failed to upgrade admin connection", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go g.drainClient(conn, cancel)

	ticker := time.NewTicker(g.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(g.snapshot()); err != nil {
				return
			}
		}
	}
}

// drainClient discards any frames the client sends (this is a push-only
// feed) and cancels ctx once the client disconnects.
func (g *Gateway) drainClient(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (g *Gateway) snapshot() Snapshot {
	ing := g.broker.Ingress()
	snap := Snapshot{
		IngressLogEndOffset: ing.LogEndOffset(),
		IngressReadOffset:   ing.ReadOffset(),
	}
	if snap.IngressLogEndOffset > snap.IngressReadOffset {
		snap.DispatchLag = snap.IngressLogEndOffset - snap.IngressReadOffset
	}

	ids := g.broker.TopicIDs()
	sort.Strings(ids)
	for _, id := range ids {
		t := g.broker.Topic(id)
		if t == nil {
			continue
		}
		ts := TopicStats{TopicID: id}
		for i := 0; i < t.PartitionCount(); i++ {
			p := t.Partition(uint32(i))
			if p == nil {
				continue
			}
			ts.Partitions = append(ts.Partitions, PartitionStats{PartitionID: uint32(i), LogEndOffset: p.LogEndOffset()})
		}
		snap.Topics = append(snap.Topics, ts)
	}
	return snap
}
