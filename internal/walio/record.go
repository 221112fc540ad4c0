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
Package walio implements the append-only, newline-delimited write-ahead
log used by both the ingress buffer and every partition.

RECORD FORMATS:
================
Two record layouts exist, each with its own Format/Parse pair; the
handler itself writes whatever pre-formatted text it is given:

	INGRESS_BUFFER:   brokerId|offset|topicId|messageId|content\n
	PARTITION_BUFFER: topicId|partitionId|offset|messageId|content\n

Fields are joined with '|' and the record is newline-terminated. The
literal '|' character inside content is not escaped: a message whose
content contains '|' will re-parse to a different field count on
recovery. This is a known hazard carried over unchanged from the
reference behaviour (see DESIGN.md, "Unescaped-delimiter hazard") rather than a
silent correctness fix.
*/
package walio

import (
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"silomq/internal/message"
)

// RecordKind distinguishes the two on-disk record layouts.
type RecordKind int

const (
	IngressBuffer RecordKind = iota
	PartitionBuffer
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// encodeContent returns content as a string, JSON-encoding it first when it
// isn't already one. This mirrors spec.md §4.2: "If content is not already
// a string, it is serialised as JSON before writing."
func encodeContent(content interface{}) (string, error) {
	if s, ok := content.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FormatIngressRecord renders one INGRESS_BUFFER record line (including
// the trailing newline).
func FormatIngressRecord(brokerID string, offset uint64, topicID, messageID string, content interface{}) (string, error) {
	c, err := encodeContent(content)
	if err != nil {
		return "", err
	}
	return joinFields(brokerID, strconv.FormatUint(offset, 10), topicID, messageID, c), nil
}

// FormatPartitionRecord renders one PARTITION_BUFFER record line (including
// the trailing newline).
func FormatPartitionRecord(topicID string, partitionID uint32, offset uint64, messageID string, content interface{}) (string, error) {
	c, err := encodeContent(content)
	if err != nil {
		return "", err
	}
	return joinFields(topicID, strconv.FormatUint(uint64(partitionID), 10), strconv.FormatUint(offset, 10), messageID, c), nil
}

func joinFields(fields ...string) string {
	return strings.Join(fields, "|") + "\n"
}

// splitFields strips the trailing newline (if present) and splits on '|'.
func splitFields(line string) []string {
	line = strings.TrimSuffix(line, "\n")
	if line == "" {
		return nil
	}
	return strings.Split(line, "|")
}

// ParseIngressRecord decodes one INGRESS_BUFFER line back into its offset
// and message. It does not attempt to repair lines whose content contains
// an unescaped '|' (see the package doc); such a line simply fails to
// parse into exactly five fields.
func ParseIngressRecord(line string) (offset uint64, msg message.Message, err error) {
	fields := splitFields(line)
	if len(fields) != 5 {
		return 0, message.Message{}, New(MalformedMetadata, "ParseIngressRecord", fmt.Errorf("expected 5 fields, line %q", line))
	}
	offset, perr := strconv.ParseUint(fields[1], 10, 64)
	if perr != nil {
		return 0, message.Message{}, New(MalformedMetadata, "ParseIngressRecord", perr)
	}
	msg = message.Message{
		TopicID:   fields[2],
		MessageID: fields[3],
		Content:   fields[4],
	}
	return offset, msg, nil
}

// ParsePartitionRecord decodes one PARTITION_BUFFER line back into its
// partition id, offset, and message.
func ParsePartitionRecord(line string) (partitionID uint32, offset uint64, msg message.Message, err error) {
	fields := splitFields(line)
	if len(fields) != 5 {
		return 0, 0, message.Message{}, New(MalformedMetadata, "ParsePartitionRecord", fmt.Errorf("expected 5 fields, line %q", line))
	}
	pid, perr := strconv.ParseUint(fields[1], 10, 32)
	if perr != nil {
		return 0, 0, message.Message{}, New(MalformedMetadata, "ParsePartitionRecord", perr)
	}
	offset, perr = strconv.ParseUint(fields[2], 10, 64)
	if perr != nil {
		return 0, 0, message.Message{}, New(MalformedMetadata, "ParsePartitionRecord", perr)
	}
	msg = message.Message{
		TopicID:   fields[0],
		MessageID: fields[3],
		Content:   fields[4],
	}
	return uint32(pid), offset, msg, nil
}
