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

// Package message defines the Message value shared by every layer of the
// pipeline: ingress, partition, topic routing, and the HTTP surface.
package message

// Message is a single unit of data accepted by the broker. MessageID is
// producer-supplied and opaque; it is also the hash key used for
// partition routing, so the same MessageID always lands in the same
// partition within a topic.
type Message struct {
	TopicID   string `json:"topicId"`
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}
