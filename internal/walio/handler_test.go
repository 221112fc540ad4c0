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

package walio

import (
	"path/filepath"
	"testing"
)

func TestLogFileHandlerAppendAndReadAllLines(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenLogFileHandler(filepath.Join(dir, "ingress.log"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()

	lines := []string{
		"broker-1|1|orders|m-1|a\n",
		"broker-1|2|orders|m-2|b\n",
	}
	var positions []int64
	for _, l := range lines {
		pos, err := h.Append(l)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		positions = append(positions, pos)
	}
	if positions[0] != 0 {
		t.Fatalf("expected first record at position 0, got %d", positions[0])
	}
	if positions[1] != int64(len(lines[0])) {
		t.Fatalf("expected second record at position %d, got %d", len(lines[0]), positions[1])
	}

	got, err := h.ReadAllLines()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(got) != 2 || got[0] != "broker-1|1|orders|m-1|a" || got[1] != "broker-1|2|orders|m-2|b" {
		t.Fatalf("unexpected lines: %v", got)
	}
}

func TestLogFileHandlerRecoversAppendPosition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ingress.log")

	h1, err := OpenLogFileHandler(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := h1.Append("broker-1|1|orders|m-1|a\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := h1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	h2, err := OpenLogFileHandler(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer h2.Close()
	pos, err := h2.Append("broker-1|2|orders|m-2|b\n")
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if pos != int64(len("broker-1|1|orders|m-1|a\n")) {
		t.Fatalf("expected append to continue at prior EOF, got pos=%d", pos)
	}
}
