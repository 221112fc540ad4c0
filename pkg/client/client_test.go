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

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	addr := strings.TrimPrefix(srv.URL, "http://")
	c := New(addr, Options{MaxRetries: 1})
	return c, srv.Close
}

func TestProduceGeneratesMessageIDWhenEmpty(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	c, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"messageId":"x","topicId":"orders","timestamp":"now"}}`))
	})
	defer closeFn()

	res, err := c.Produce(context.Background(), "orders", "", `{"k":"v"}`)
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if gotPath != "/ingress/orders" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	msg, _ := gotBody["message"].(map[string]interface{})
	if msg["messageId"] == "" || msg["messageId"] == nil {
		t.Fatalf("expected a generated messageId, got %+v", gotBody)
	}
	if res.TopicID != "orders" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestProducePreservesSuppliedMessageID(t *testing.T) {
	var gotBody map[string]interface{}
	c, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true,"data":{"messageId":"m1","topicId":"orders","timestamp":"now"}}`))
	})
	defer closeFn()

	if _, err := c.Produce(context.Background(), "orders", "m1", "payload"); err != nil {
		t.Fatalf("produce: %v", err)
	}
	msg := gotBody["message"].(map[string]interface{})
	if msg["messageId"] != "m1" {
		t.Fatalf("expected supplied messageId preserved, got %+v", msg)
	}
}

func TestRegisterReturnsPartitionID(t *testing.T) {
	c, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/register/orders" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"topicId":"orders","partitionId":2}}`))
	})
	defer closeFn()

	pid, err := c.Register(context.Background(), "orders", "worker-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if pid != 2 {
		t.Fatalf("expected partitionId 2, got %d", pid)
	}
}

func TestErrorResponseSurfacesErrorCode(t *testing.T) {
	c, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"every partition has a consumer","errorCode":"NoPartitionAvailable"}`))
	})
	defer closeFn()

	_, err := c.Register(context.Background(), "orders", "worker-9")
	if err == nil {
		t.Fatalf("expected an error")
	}
	apiErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.Code != "NoPartitionAvailable" {
		t.Fatalf("expected NoPartitionAvailable, got %q", apiErr.Code)
	}
}

func TestConsumeBatchDecodesMessages(t *testing.T) {
	c, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/consume/broker-1/orders/0" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("b") != "t" {
			t.Fatalf("expected batch query param")
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"messages":[{"topicId":"orders","messageId":"m1","content":"a"}],"count":1,"startOffset":0,"endOffset":1}}`))
	})
	defer closeFn()

	batch, err := c.ConsumeBatch(context.Background(), "orders", 0, "broker-1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if batch.Count != 1 || len(batch.Messages) != 1 || batch.Messages[0].MessageID != "m1" {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestCommitRoundTrip(t *testing.T) {
	var gotBody map[string]interface{}
	c, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/commit" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true,"data":{"committed":true,"offset":3,"topicId":"orders","partitionId":0,"consumerId":"worker-1","logEndOffset":3,"newReadOffset":3}}`))
	})
	defer closeFn()

	res, err := c.Commit(context.Background(), "orders", 0, "worker-1", 3)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.NewReadOffset != 3 || !res.Committed {
		t.Fatalf("unexpected commit result: %+v", res)
	}
	if gotBody["offset"].(float64) != 3 {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
}

func TestNewWithBootstrapServersRejectsEmptyList(t *testing.T) {
	if _, err := NewWithBootstrapServers("  ,  ", Options{}); err == nil {
		t.Fatalf("expected an error for an empty server list")
	}
}

func TestNewWithBootstrapServersParsesList(t *testing.T) {
	c, err := NewWithBootstrapServers("host1:8080, host2:8080", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.servers) != 2 || c.servers[0] != "host1:8080" || c.servers[1] != "host2:8080" {
		t.Fatalf("unexpected servers: %+v", c.servers)
	}
}
