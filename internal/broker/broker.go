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

// Package broker owns the ingress buffer and the topic map, and runs the
// dispatch loop that drains one into the other. It also fronts consumer
// registration against the TPC map, since that mutation has to be
// serialised the same way the dispatch loop's topic lookups are.
package broker

import (
	"context"
	"time"

	"silomq/internal/ingress"
	"silomq/internal/logging"
	"silomq/internal/message"
	"silomq/internal/metrics"
	"silomq/internal/topic"
	"silomq/internal/tpc"
	"silomq/internal/walio"
)

const (
	dispatchBatchSize = 100
	pacingInterval    = 100 * time.Millisecond
)

// Broker drains the ingress buffer and routes each message to its topic.
type Broker struct {
	ingress *ingress.Buffer
	topics  map[string]*topic.Topic
	tpcMap  *tpc.Map
	logger  *logging.Logger
}

// New builds a Broker over an already-recovered ingress buffer and set of
// topics (one per TPC map key, partition count taken from the map).
func New(ing *ingress.Buffer, topics map[string]*topic.Topic, tpcMap *tpc.Map) *Broker {
	return &Broker{
		ingress: ing,
		topics:  topics,
		tpcMap:  tpcMap,
		logger:  logging.NewLogger("broker"),
	}
}

// Topic returns the Topic for id, or nil if unknown.
func (b *Broker) Topic(id string) *topic.Topic {
	return b.topics[id]
}

// TopicIDs returns the ids of every topic this broker owns, for the admin
// gateway's periodic stats snapshot.
func (b *Broker) TopicIDs() []string {
	ids := make([]string, 0, len(b.topics))
	for id := range b.topics {
		ids = append(ids, id)
	}
	return ids
}

// Ingress returns the broker's ingress buffer, for the HTTP collaborator
// to push into.
func (b *Broker) Ingress() *ingress.Buffer {
	return b.ingress
}

// RegisterConsumer assigns consumerID a partition of topicID via the TPC
// map. See tpc.Map.Register for the idempotence and NoPartitionAvailable
// contract.
func (b *Broker) RegisterConsumer(topicID, consumerID string) (uint32, error) {
	return b.tpcMap.Register(topicID, consumerID)
}

// Run drains the ingress buffer in batches and routes each message to its
// topic, until ctx is cancelled. A missing topic is logged and the
// message skipped, never aborting the loop; a partition push failure is
// handled the same way.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch, err := b.ingress.BatchExtract(dispatchBatchSize)
		if walio.KindOf(err) == walio.BufferEmpty {
			sleep(ctx, pacingInterval)
			continue
		}
		if err != nil {
			b.logger.Error("unexpected error draining ingress buffer", "error", err)
			sleep(ctx, pacingInterval)
			continue
		}

		for _, msg := range batch {
			b.dispatch(msg)
		}
		sleep(ctx, pacingInterval)
	}
}

func (b *Broker) dispatch(msg message.Message) {
	t, ok := b.topics[msg.TopicID]
	if !ok {
		metrics.Get().MessagesDropped.Add(1)
		b.logger.Warn("dropping message for unknown topic", "topicId", msg.TopicID, "messageId", msg.MessageID)
		return
	}
	if err := t.Push(msg); err != nil {
		b.logger.Error("failed to push message into topic", "topicId", msg.TopicID, "messageId", msg.MessageID, "error", err)
		return
	}
	metrics.Get().MessagesDispatched.Add(1)
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
