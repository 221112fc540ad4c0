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

package broker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"silomq/internal/ingress"
	"silomq/internal/message"
	"silomq/internal/topic"
	"silomq/internal/tpc"
)

func newTestBroker(t *testing.T, dir string, partitionCount int) *Broker {
	t.Helper()
	ing, err := ingress.Open(dir, "broker-1", ingress.Options{BatchSize: 1})
	if err != nil {
		t.Fatalf("open ingress: %v", err)
	}
	tp, err := topic.Open(filepath.Join(dir, "topics", "topic_t"), "t", partitionCount, 0)
	if err != nil {
		t.Fatalf("open topic: %v", err)
	}
	tpcMap, err := tpc.Open(filepath.Join(dir, "TPC.log"), []tpc.TopicSeed{{TopicID: "t", PartitionCount: partitionCount}})
	if err != nil {
		t.Fatalf("open tpc: %v", err)
	}
	return New(ing, map[string]*topic.Topic{"t": tp}, tpcMap)
}

func TestDispatchLoopRoutesPushedMessages(t *testing.T) {
	dir := t.TempDir()
	b := newTestBroker(t, dir, 1)

	if err := b.Ingress().Push(message.Message{TopicID: "t", MessageID: "m1", Content: "a"}); err != nil {
		t.Fatalf("push m1: %v", err)
	}
	if err := b.Ingress().Push(message.Message{TopicID: "t", MessageID: "m2", Content: "b"}); err != nil {
		t.Fatalf("push m2: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		if b.Topic("t").Partition(0).LogEndOffset() == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	p := b.Topic("t").Partition(0)
	if p.LogEndOffset() != 2 {
		t.Fatalf("expected both messages routed, logEndOffset=%d", p.LogEndOffset())
	}
	res, err := p.BatchExtract(10)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Messages) != 2 || res.Messages[0].MessageID != "m1" || res.Messages[1].MessageID != "m2" {
		t.Fatalf("expected FIFO order [m1, m2], got %+v", res.Messages)
	}
}

func TestDispatchLoopSkipsUnknownTopic(t *testing.T) {
	dir := t.TempDir()
	b := newTestBroker(t, dir, 1)

	if err := b.Ingress().Push(message.Message{TopicID: "ghost", MessageID: "m1", Content: "a"}); err != nil {
		t.Fatalf("push: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	<-done

	// No panic, no crash: the unknown-topic message is simply dropped.
	if b.Topic("ghost") != nil {
		t.Fatalf("did not expect a topic to materialise for an unregistered id")
	}
}

func TestRegisterConsumerIdempotentAndExhausts(t *testing.T) {
	dir := t.TempDir()
	b := newTestBroker(t, dir, 2)

	p0, err := b.RegisterConsumer("t", "c1")
	if err != nil {
		t.Fatalf("register c1: %v", err)
	}
	p0Again, err := b.RegisterConsumer("t", "c1")
	if err != nil {
		t.Fatalf("re-register c1: %v", err)
	}
	if p0 != p0Again {
		t.Fatalf("expected idempotent registration, got %d then %d", p0, p0Again)
	}

	if _, err := b.RegisterConsumer("t", "c2"); err != nil {
		t.Fatalf("register c2: %v", err)
	}
	if _, err := b.RegisterConsumer("t", "c3"); err == nil {
		t.Fatalf("expected NoPartitionAvailable for c3")
	}
}
