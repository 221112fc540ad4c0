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

package adminauth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGuardAllowsMatchingToken(t *testing.T) {
	hash, err := Hash("secret-token")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	g := NewGuard(hash)
	if !g.Allow("secret-token") {
		t.Fatalf("expected matching token to be allowed")
	}
	if g.Allow("wrong-token") {
		t.Fatalf("expected mismatched token to be rejected")
	}
}

func TestGuardWithNoHashAllowsEverything(t *testing.T) {
	g := NewGuard("")
	if !g.Allow("") {
		t.Fatalf("expected unconfigured guard to allow any token")
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	hash, _ := Hash("secret-token")
	g := NewGuard(hash)
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestMiddlewareAllowsBearerToken(t *testing.T) {
	hash, _ := Hash("secret-token")
	g := NewGuard(hash)
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
