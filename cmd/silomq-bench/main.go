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
silomq-bench drives a produce-throughput comparison between a running
silomq broker and a Kafka broker, for engineers sizing one against the
other on their own hardware. It is opt-in tooling, not part of the
broker's startup path.

Usage:

	silomq-bench -silomq localhost:8080 -kafka localhost:9092
	silomq-bench -size 10240 -count 2000 -concurrency 8
*/
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"silomq/pkg/cli"
	"silomq/pkg/client"
)

type result struct {
	System         string  `json:"system"`
	Name           string  `json:"name"`
	MessageSize    int     `json:"messageSizeBytes"`
	MessageCount   int     `json:"messageCount"`
	Concurrency    int     `json:"concurrency"`
	DurationSec    float64 `json:"durationSeconds"`
	ThroughputMsgs float64 `json:"throughputMsgsPerSec"`
	ThroughputMB   float64 `json:"throughputMbPerSec"`
	LatencyP50Ms   float64 `json:"latencyP50Ms"`
	LatencyP99Ms   float64 `json:"latencyP99Ms"`
	Errors         int     `json:"errors"`
}

type testCase struct {
	name        string
	size        int
	count       int
	concurrency int
}

func main() {
	siloAddr := flag.String("silomq", "localhost:8080", "silomq broker address")
	kafkaAddr := flag.String("kafka", "", "Kafka broker address; leave empty to skip the Kafka side")
	topic := flag.String("topic", "bench", "topic to produce into (must already exist on the silomq broker)")
	size := flag.Int("size", 1024, "message payload size in bytes")
	count := flag.Int("count", 5000, "messages per run")
	concurrency := flag.Int("concurrency", 4, "concurrent producers")
	output := flag.String("output", "", "write results as JSON to this path (optional)")
	flag.Parse()

	cli.Header("silomq-bench")
	cli.KeyValue("silomq", *siloAddr)
	if *kafkaAddr != "" {
		cli.KeyValue("kafka", *kafkaAddr)
	}
	cli.KeyValue("payload", fmt.Sprintf("%d bytes x %d msgs, concurrency %d", *size, *count, *concurrency))

	tc := testCase{name: "run", size: *size, count: *count, concurrency: *concurrency}

	var results []result

	cli.Info("running silomq produce benchmark")
	siloResult := runSiloMQ(*siloAddr, *topic, tc)
	printResult(siloResult)
	results = append(results, siloResult)

	if *kafkaAddr != "" {
		cli.Info("running kafka produce benchmark")
		kafkaResult := runKafka(*kafkaAddr, *topic, tc)
		printResult(kafkaResult)
		results = append(results, kafkaResult)

		if siloResult.Errors == 0 && kafkaResult.Errors == 0 {
			ratio := siloResult.ThroughputMsgs / kafkaResult.ThroughputMsgs
			if ratio >= 1 {
				cli.Success("silomq is %.2fx the throughput of kafka on this run", ratio)
			} else {
				cli.Warning("kafka is %.2fx the throughput of silomq on this run", 1/ratio)
			}
		}
	}

	if *output != "" {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			cli.Error("encoding results: %v", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			cli.Error("writing %s: %v", *output, err)
			os.Exit(1)
		}
		cli.Success("results written to %s", *output)
	}
}

func printResult(r result) {
	if r.Errors > 0 {
		cli.Warning("%s: %d/%d produce calls failed", r.System, r.Errors, r.MessageCount)
		return
	}
	cli.Success("%s: %.0f msgs/s | %.2f MB/s | p50=%.2fms p99=%.2fms",
		r.System, r.ThroughputMsgs, r.ThroughputMB, r.LatencyP50Ms, r.LatencyP99Ms)
}

func payloadWithChecksum(size, seq int) []byte {
	payload := make([]byte, size)
	rand.Read(payload)
	if size >= 8 {
		copy(payload[:8], fmt.Sprintf("%08d", seq))
	}
	return payload
}

func runSiloMQ(addr, topic string, tc testCase) result {
	c := client.New(addr, client.Options{MaxRetries: 1})
	res := result{System: "silomq", Name: tc.name, MessageSize: tc.size, MessageCount: tc.count, Concurrency: tc.concurrency}

	var latencies durationSlice
	var latMu sync.Mutex
	var errs int64
	perWorker := tc.count / tc.concurrency

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < tc.concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			ctx := context.Background()
			for i := 0; i < perWorker; i++ {
				seq := workerID*perWorker + i
				payload := payloadWithChecksum(tc.size, seq)
				checksum := sha256.Sum256(payload)

				t := time.Now()
				_, err := c.Produce(ctx, topic, "", hex.EncodeToString(checksum[:4])+string(payload))
				lat := time.Since(t)
				if err != nil {
					atomic.AddInt64(&errs, 1)
					continue
				}
				latMu.Lock()
				latencies = append(latencies, lat)
				latMu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	duration := time.Since(start)

	success := tc.count - int(errs)
	res.DurationSec = duration.Seconds()
	res.Errors = int(errs)
	if duration.Seconds() > 0 {
		res.ThroughputMsgs = float64(success) / duration.Seconds()
		res.ThroughputMB = float64(success*tc.size) / duration.Seconds() / 1024 / 1024
	}
	res.LatencyP50Ms = latencies.percentileMs(0.50)
	res.LatencyP99Ms = latencies.percentileMs(0.99)
	return res
}

func runKafka(addr, topic string, tc testCase) result {
	res := result{System: "kafka", Name: tc.name, MessageSize: tc.size, MessageCount: tc.count, Concurrency: tc.concurrency}

	var latencies durationSlice
	var latMu sync.Mutex
	var errs int64
	perWorker := tc.count / tc.concurrency

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < tc.concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			writer := &kafka.Writer{
				Addr:         kafka.TCP(addr),
				Topic:        topic,
				Balancer:     &kafka.RoundRobin{},
				BatchSize:    1,
				BatchTimeout: time.Millisecond,
				RequiredAcks: kafka.RequireOne,
			}
			defer writer.Close()

			for i := 0; i < perWorker; i++ {
				seq := workerID*perWorker + i
				payload := payloadWithChecksum(tc.size, seq)

				t := time.Now()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := writer.WriteMessages(ctx, kafka.Message{Value: payload})
				cancel()
				lat := time.Since(t)
				if err != nil {
					atomic.AddInt64(&errs, 1)
					continue
				}
				latMu.Lock()
				latencies = append(latencies, lat)
				latMu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	duration := time.Since(start)

	success := tc.count - int(errs)
	res.DurationSec = duration.Seconds()
	res.Errors = int(errs)
	if duration.Seconds() > 0 {
		res.ThroughputMsgs = float64(success) / duration.Seconds()
		res.ThroughputMB = float64(success*tc.size) / duration.Seconds() / 1024 / 1024
	}
	res.LatencyP50Ms = latencies.percentileMs(0.50)
	res.LatencyP99Ms = latencies.percentileMs(0.99)
	return res
}

type durationSlice []time.Duration

func (d durationSlice) percentileMs(p float64) float64 {
	if len(d) == 0 {
		return 0
	}
	sorted := make(durationSlice, len(d))
	copy(sorted, d)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx].Microseconds()) / 1000.0
}
