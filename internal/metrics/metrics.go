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

// Package metrics exposes broker counters in Prometheus text format at
// /metrics. Counters are plain atomics read straight off the hot paths;
// there is no client library wired here because nothing in the retrieved
// example pack pulls in a metrics client either, so a hand-rolled text
// exporter over the standard library matches the corpus idiom rather
// than deviating from it.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
)

// Counters holds the broker-wide counters rendered at /metrics.
type Counters struct {
	MessagesIngested  atomic.Uint64
	MessagesDispatched atomic.Uint64
	MessagesDropped   atomic.Uint64
	CommitsAccepted   atomic.Uint64
	CommitsRejected   atomic.Uint64

	topics sync.Map // topicId -> *TopicCounters
}

// TopicCounters holds per-topic counters.
type TopicCounters struct {
	Pushed   atomic.Uint64
	Consumed atomic.Uint64
	Committed atomic.Uint64
}

var global = &Counters{}

// Get returns the process-wide Counters instance.
func Get() *Counters {
	return global
}

// Topic returns (creating if necessary) the counters for topicID.
func (c *Counters) Topic(topicID string) *TopicCounters {
	if tc, ok := c.topics.Load(topicID); ok {
		return tc.(*TopicCounters)
	}
	tc := &TopicCounters{}
	actual, _ := c.topics.LoadOrStore(topicID, tc)
	return actual.(*TopicCounters)
}

// Handler returns an http.HandlerFunc rendering c in Prometheus text
// exposition format.
func (c *Counters) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		writeCounter(w, "silomq_messages_ingested_total", "Total messages accepted by the ingress buffer", c.MessagesIngested.Load())
		writeCounter(w, "silomq_messages_dispatched_total", "Total messages routed from ingress into a partition", c.MessagesDispatched.Load())
		writeCounter(w, "silomq_messages_dropped_total", "Total messages dropped for an unknown topic", c.MessagesDropped.Load())
		writeCounter(w, "silomq_commits_accepted_total", "Total successful commitOffset calls", c.CommitsAccepted.Load())
		writeCounter(w, "silomq_commits_rejected_total", "Total commitOffset calls rejected as InvalidOffset", c.CommitsRejected.Load())

		c.topics.Range(func(key, value interface{}) bool {
			topicID := key.(string)
			tc := value.(*TopicCounters)
			fmt.Fprintf(w, "silomq_topic_messages_pushed_total{topic=%q} %d\n", topicID, tc.Pushed.Load())
			fmt.Fprintf(w, "silomq_topic_messages_consumed_total{topic=%q} %d\n", topicID, tc.Consumed.Load())
			fmt.Fprintf(w, "silomq_topic_messages_committed_total{topic=%q} %d\n", topicID, tc.Committed.Load())
			return true
		})
	}
}

func writeCounter(w http.ResponseWriter, name, help string, value uint64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, value)
}
