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

// Package adminauth guards the WebSocket admin gateway with a single
// bcrypt-hashed bearer token. It is intentionally smaller than a full
// user/role store: the admin gateway is read-only stats, not a produce or
// consume path, so one shared operator token is enough.
package adminauth

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoToken is returned by Hash when asked to hash an empty token.
var ErrNoToken = errors.New("adminauth: token must not be empty")

// Guard checks bearer tokens against a single bcrypt hash.
type Guard struct {
	hash []byte
}

// Hash bcrypt-hashes token for storage in configuration.
func Hash(token string) (string, error) {
	if token == "" {
		return "", ErrNoToken
	}
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// NewGuard builds a Guard from a bcrypt hash previously produced by Hash.
// An empty hash disables authentication entirely (every request passes).
func NewGuard(hash string) *Guard {
	if hash == "" {
		return &Guard{}
	}
	return &Guard{hash: []byte(hash)}
}

// Allow reports whether token matches the configured hash. When no hash
// is configured, every token is allowed.
func (g *Guard) Allow(token string) bool {
	if len(g.hash) == 0 {
		return true
	}
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(token)) == nil
}

// Middleware wraps next, rejecting requests whose bearer token does not
// match with 401 Unauthorized.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if !g.Allow(token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="silomq-admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return r.URL.Query().Get("token")
}
