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
Package client provides the SiloMQ Go client library: a thin wrapper
over the four HTTP endpoints (produce/register/consume/commit) the core
exposes.

QUICK START:
============

	c := client.New("localhost:8080", client.Options{})

	_, err := c.Produce(ctx, "orders", "", `{"sku":"abc"}`)

	partitionID, err := c.Register(ctx, "orders", "worker-1")

	batch, err := c.ConsumeBatch(ctx, "orders", partitionID, "broker-1")
	_, err = c.Commit(ctx, "orders", partitionID, "worker-1", batch.EndOffset)

THREAD SAFETY:
==============
Client is safe for concurrent use by multiple goroutines; each call opens
an independent HTTP request.
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Options configures a Client's connection behaviour.
type Options struct {
	// BootstrapServers, if set, is tried in round-robin order instead of
	// the single address passed to New; this gives a producer somewhere
	// to retry when one broker address in a list is down. It does not
	// imply the brokers share any state: SiloMQ is single-node, so each
	// address is an independent broker with its own topics.
	BootstrapServers []string

	// MaxRetries bounds how many passes a request makes over the
	// bootstrap server list before giving up; 1 means a single pass with
	// no retry (default: 3).
	MaxRetries int
	// RetryDelay is the pause between retries (default: 1s).
	RetryDelay time.Duration
	// RequestTimeout bounds a single HTTP round trip (default: 10s).
	RequestTimeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to one or more SiloMQ brokers over HTTP/JSON.
type Client struct {
	servers    []string
	current    int64 // index into servers; accessed atomically
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
}

// New creates a Client targeting addr (host:port, no scheme).
func New(addr string, opts Options) *Client {
	servers := opts.BootstrapServers
	if len(servers) == 0 {
		servers = []string{addr}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.RequestTimeout}
	}
	return &Client{
		servers:    servers,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		httpClient: hc,
	}
}

// envelope mirrors the {success, data, error, errorCode} wire shape every
// endpoint responds with.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"errorCode,omitempty"`
}

// Error is returned when a broker responds with success:false; Code is
// the kind tag from the core's error taxonomy (e.g. "BufferFull",
// "InvalidOffset"), when the broker included one.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("silomq: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("silomq: http %d: %s", e.StatusCode, e.Message)
}

// do sends req against the next reachable bootstrap server, trying the
// whole list up to maxRetries times in all, and decodes the envelope. Retries
// only happen on transport failures (server unreachable); an envelope
// with success:false is returned as an *Error immediately, since retrying
// a BufferFull or InvalidOffset against the same broker will not help.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("silomq: encoding request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		for i := 0; i < len(c.servers); i++ {
			idx := (int(atomic.LoadInt64(&c.current)) + i) % len(c.servers)
			env, err := c.send(ctx, c.servers[idx], method, path, payload)
			if err == nil {
				atomic.StoreInt64(&c.current, int64(idx))
				if !env.Success {
					return nil, &Error{Code: env.Code, Message: env.Error}
				}
				return env.Data, nil
			}
			if apiErr, ok := err.(*Error); ok {
				return nil, apiErr
			}
			lastErr = err
		}
		if attempt < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return nil, fmt.Errorf("silomq: no reachable broker after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) send(ctx context.Context, server, method, path string, payload []byte) (envelope, error) {
	url := "http://" + server + path
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return envelope{}, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()

	var env envelope
	if decErr := json.NewDecoder(resp.Body).Decode(&env); decErr != nil {
		return envelope{}, fmt.Errorf("silomq: decoding response from %s: %w", server, decErr)
	}
	if resp.StatusCode >= 400 && env.Error == "" {
		env.Error = resp.Status
	}
	if resp.StatusCode >= 400 {
		return env, &Error{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Error}
	}
	return env, nil
}

// Produce sends one message to topicID. If messageID is empty, a random
// uuid is generated client-side; the broker treats it as an opaque
// partition-routing key either way, never as a client API credential.
func (c *Client) Produce(ctx context.Context, topicID, messageID, content string) (ProduceResult, error) {
	if messageID == "" {
		messageID = uuid.NewString()
	}
	reqBody := map[string]interface{}{
		"message": map[string]string{
			"messageId": messageID,
			"content":   content,
		},
	}
	data, err := c.do(ctx, http.MethodPost, "/ingress/"+topicID, reqBody)
	if err != nil {
		return ProduceResult{}, err
	}
	var out ProduceResult
	if err := json.Unmarshal(data, &out); err != nil {
		return ProduceResult{}, fmt.Errorf("silomq: decoding produce result: %w", err)
	}
	return out, nil
}

// ProduceResult is the data payload of a successful /ingress response.
type ProduceResult struct {
	MessageID string `json:"messageId"`
	TopicID   string `json:"topicId"`
	Timestamp string `json:"timestamp"`
}

// Register assigns consumerID a partition of topicID, returning that
// partition's id. Calling Register again with the same (topicID,
// consumerID) returns the same partition id.
func (c *Client) Register(ctx context.Context, topicID, consumerID string) (uint32, error) {
	reqBody := map[string]string{"consumerId": consumerID}
	data, err := c.do(ctx, http.MethodPost, "/register/"+topicID, reqBody)
	if err != nil {
		return 0, err
	}
	var out struct {
		PartitionID uint32 `json:"partitionId"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("silomq: decoding register result: %w", err)
	}
	return out.PartitionID, nil
}

// Batch is the data payload of a batch /consume response.
type Batch struct {
	Messages    []Message `json:"messages"`
	Count       int       `json:"count"`
	StartOffset uint64    `json:"startOffset"`
	EndOffset   uint64    `json:"endOffset"`
}

// Message mirrors the wire shape of one produced message.
type Message struct {
	TopicID   string `json:"topicId"`
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// ConsumeBatch peeks up to 100 undelivered messages from a partition
// without removing them; call Commit with the returned EndOffset to make
// the read durable.
func (c *Client) ConsumeBatch(ctx context.Context, topicID string, partitionID uint32, brokerID string) (Batch, error) {
	path := fmt.Sprintf("/consume/%s/%s/%d?b=t", brokerID, topicID, partitionID)
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Batch{}, err
	}
	var out Batch
	if err := json.Unmarshal(data, &out); err != nil {
		return Batch{}, fmt.Errorf("silomq: decoding consume batch: %w", err)
	}
	return out, nil
}

// CommitResult is the data payload of a successful /commit response.
type CommitResult struct {
	Committed     bool   `json:"committed"`
	Offset        uint64 `json:"offset"`
	TopicID       string `json:"topicId"`
	PartitionID   uint32 `json:"partitionId"`
	ConsumerID    string `json:"consumerId"`
	LogEndOffset  uint64 `json:"logEndOffset"`
	NewReadOffset uint64 `json:"newReadOffset"`
}

// Commit advances the committed offset of (topicID, partitionID) to
// offset. offset must not exceed the partition's logEndOffset.
func (c *Client) Commit(ctx context.Context, topicID string, partitionID uint32, consumerID string, offset uint64) (CommitResult, error) {
	reqBody := map[string]interface{}{
		"topicId":     topicID,
		"partitionId": partitionID,
		"consumerId":  consumerID,
		"offset":      offset,
	}
	data, err := c.do(ctx, http.MethodPost, "/commit", reqBody)
	if err != nil {
		return CommitResult{}, err
	}
	var out CommitResult
	if err := json.Unmarshal(data, &out); err != nil {
		return CommitResult{}, fmt.Errorf("silomq: decoding commit result: %w", err)
	}
	return out, nil
}

// parseBootstrapServers splits a comma-separated server list, trimming
// whitespace and dropping empty entries.
func parseBootstrapServers(servers string) []string {
	var out []string
	for _, s := range strings.Split(servers, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NewWithBootstrapServers builds a Client from a comma-separated server
// list ("host1:8080,host2:8080"), matching the teacher's
// NewClusterClient convenience constructor.
func NewWithBootstrapServers(servers string, opts Options) (*Client, error) {
	list := parseBootstrapServers(servers)
	if len(list) == 0 {
		return nil, fmt.Errorf("silomq: no bootstrap servers provided")
	}
	opts.BootstrapServers = list
	return New(list[0], opts), nil
}
