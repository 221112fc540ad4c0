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

// Package httpapi is the thin HTTP translator in front of the core: it
// decodes requests, calls straight through to the broker/topic/partition
// API, and maps tagged errors to status codes. It holds no state of its
// own and makes no routing decisions the core doesn't already make.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"silomq/internal/broker"
	"silomq/internal/logging"
	"silomq/internal/message"
	"silomq/internal/metrics"
	"silomq/internal/walio"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the net/http handler fronting the core. It is deliberately
// router-library-free: the teacher's own admin surface used net/http's
// ServeMux plus manual path splitting, and four fixed routes don't
// warrant pulling in a third dependency for routing alone.
type Server struct {
	mux    *http.ServeMux
	broker *broker.Broker
	logger *logging.Logger
}

// NewServer builds a Server fronting b.
func NewServer(b *broker.Broker) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		broker: b,
		logger: logging.NewLogger("httpapi"),
	}
	s.mux.HandleFunc("/ingress/", s.handleIngress)
	s.mux.HandleFunc("/register/", s.handleRegister)
	s.mux.HandleFunc("/consume/", s.handleConsume)
	s.mux.HandleFunc("/commit", s.handleCommit)
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"errorCode,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, envelope{Error: msg})
}

// writeKindError maps a tagged walio.Error to the status table the core
// fixes: BufferFull/AppendFailed -> 500, TopicNotFound/PartitionNotFound
// -> 404, InvalidOffset -> 400, NoPartitionAvailable -> 500.
func writeKindError(w http.ResponseWriter, err error) {
	kind := walio.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case walio.TopicNotFound, walio.PartitionNotFound:
		status = http.StatusNotFound
	case walio.InvalidOffset:
		status = http.StatusBadRequest
	case walio.BufferFull, walio.AppendFailed, walio.NoPartitionAvailable:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, envelope{Error: err.Error(), Code: kind.String()})
}

// pathSegments splits the part of the URL path after prefix on "/",
// dropping empty segments (trailing slash, double slash).
func pathSegments(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	var segs []string
	for _, p := range strings.Split(rest, "/") {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

type ingressRequest struct {
	BrokerID string `json:"brokerId"`
	Message  struct {
		MessageID string `json:"messageId"`
		Content   string `json:"content"`
	} `json:"message"`
}

func (s *Server) handleIngress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeBadRequest(w, "method not allowed")
		return
	}
	segs := pathSegments(r.URL.Path, "/ingress/")
	if len(segs) != 1 {
		writeBadRequest(w, "missing topicId")
		return
	}
	topicID := segs[0]

	var req ingressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if req.Message.MessageID == "" {
		writeBadRequest(w, "message.messageId is required")
		return
	}

	msg := message.Message{TopicID: topicID, MessageID: req.Message.MessageID, Content: req.Message.Content}
	if err := s.broker.Ingress().Push(msg); err != nil {
		writeKindError(w, err)
		return
	}
	metrics.Get().MessagesIngested.Add(1)
	metrics.Get().Topic(topicID).Pushed.Add(1)

	writeOK(w, map[string]interface{}{
		"messageId": msg.MessageID,
		"topicId":   msg.TopicID,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type registerRequest struct {
	BrokerID   string `json:"brokerId"`
	ConsumerID string `json:"consumerId"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeBadRequest(w, "method not allowed")
		return
	}
	segs := pathSegments(r.URL.Path, "/register/")
	if len(segs) != 1 {
		writeBadRequest(w, "missing topicId")
		return
	}
	topicID := segs[0]

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if req.ConsumerID == "" {
		writeBadRequest(w, "consumerId is required")
		return
	}

	partitionID, err := s.broker.RegisterConsumer(topicID, req.ConsumerID)
	if err != nil {
		writeKindError(w, err)
		return
	}

	writeOK(w, map[string]interface{}{
		"topicId":     topicID,
		"brokerId":    req.BrokerID,
		"consumerId":  req.ConsumerID,
		"partitionId": partitionID,
	})
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeBadRequest(w, "method not allowed")
		return
	}
	segs := pathSegments(r.URL.Path, "/consume/")
	if len(segs) != 3 {
		writeBadRequest(w, "expected /consume/:brokerId/:topicId/:partitionId")
		return
	}
	topicID := segs[1]
	partitionID64, err := strconv.ParseUint(segs[2], 10, 32)
	if err != nil {
		writeBadRequest(w, "partitionId must be an integer")
		return
	}

	t := s.broker.Topic(topicID)
	if t == nil {
		writeKindError(w, walio.New(walio.TopicNotFound, "consume", nil))
		return
	}
	p := t.Partition(uint32(partitionID64))
	if p == nil {
		writeKindError(w, walio.New(walio.PartitionNotFound, "consume", nil))
		return
	}

	batch := r.URL.Query().Get("b") == "t"
	n := 1
	if batch {
		n = 100
	}

	res, err := p.BatchExtract(n)
	if walio.KindOf(err) == walio.BufferEmpty {
		if batch {
			writeOK(w, map[string]interface{}{"messages": []message.Message{}, "count": 0, "startOffset": p.ReadOffset(), "endOffset": p.ReadOffset()})
		} else {
			writeOK(w, map[string]interface{}{"message": nil, "count": 0, "startOffset": p.ReadOffset(), "endOffset": p.ReadOffset()})
		}
		return
	}
	if err != nil {
		writeKindError(w, err)
		return
	}

	metrics.Get().Topic(topicID).Consumed.Add(uint64(len(res.Messages)))

	if batch {
		writeOK(w, map[string]interface{}{
			"messages":    res.Messages,
			"count":       len(res.Messages),
			"startOffset": res.StartOffset,
			"endOffset":   res.EndOffset,
		})
		return
	}
	writeOK(w, map[string]interface{}{
		"message":     res.Messages[0],
		"count":       1,
		"startOffset": res.StartOffset,
		"endOffset":   res.EndOffset,
	})
}

type commitRequest struct {
	BrokerID    string `json:"brokerId"`
	TopicID     string `json:"topicId"`
	PartitionID uint32 `json:"partitionId"`
	ConsumerID  string `json:"consumerId"`
	Offset      uint64 `json:"offset"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeBadRequest(w, "method not allowed")
		return
	}
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	t := s.broker.Topic(req.TopicID)
	if t == nil {
		writeKindError(w, walio.New(walio.TopicNotFound, "commit", nil))
		return
	}
	p := t.Partition(req.PartitionID)
	if p == nil {
		writeKindError(w, walio.New(walio.PartitionNotFound, "commit", nil))
		return
	}

	res, err := p.CommitOffset(req.Offset)
	if err != nil {
		if walio.KindOf(err) == walio.InvalidOffset {
			metrics.Get().CommitsRejected.Add(1)
		}
		writeKindError(w, err)
		return
	}
	metrics.Get().CommitsAccepted.Add(1)
	metrics.Get().Topic(req.TopicID).Committed.Add(1)

	writeOK(w, map[string]interface{}{
		"committed":     true,
		"offset":        req.Offset,
		"topicId":       req.TopicID,
		"partitionId":   req.PartitionID,
		"consumerId":    req.ConsumerID,
		"logEndOffset":  res.LogEndOffset,
		"newReadOffset": res.NewReadOffset,
	})
}
