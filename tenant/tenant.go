// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package tenant carries per-tenant destination credentials through the
// pipeline as an explicit value, with a TTL-bounded cache so repeated jobs
// for the same tenant skip credential resolution. There is no process-wide
// tenant state.
package tenant

import (
	"errors"
	"sync"
	"time"
)

// ErrUnknownTenant is returned when no credentials can be resolved.
var ErrUnknownTenant = errors.New("tenant: unknown tenant")

// Credentials hold everything needed to reach a tenant's destination store.
type Credentials struct {
	// URI is the destination store connection string, e.g. "neo4j://host:7687".
	URI string

	// Username and Password authenticate the session.
	Username string
	Password string

	// Database selects a named database on multi-database servers.
	Database string
}

// Context identifies the tenant a pipeline call is acting for.
// It is passed explicitly through every pipeline entry point.
type Context struct {
	// ID is the tenant identifier recorded on jobs.
	ID string

	// Credentials for the tenant's destination store.
	Credentials Credentials
}

// Resolver resolves tenant credentials by ID.
type Resolver interface {
	// Resolve returns credentials for a tenant.
	// Returns ErrUnknownTenant when the tenant is not recognized.
	Resolve(tenantID string) (Credentials, error)
}

// StaticResolver resolves tenants from a fixed map. Useful for single-tenant
// deployments and tests.
type StaticResolver map[string]Credentials

// Resolve returns credentials for a tenant.
func (r StaticResolver) Resolve(tenantID string) (Credentials, error) {
	creds, ok := r[tenantID]
	if !ok {
		return Credentials{}, ErrUnknownTenant
	}
	return creds, nil
}

type cacheEntry struct {
	creds     Credentials
	expiresAt time.Time
}

// Cache wraps a Resolver with a TTL-bounded credential cache keyed by
// tenant ID. Safe for concurrent use.
type Cache struct {
	resolver Resolver
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// DefaultTTL bounds how long resolved credentials stay cached.
const DefaultTTL = 5 * time.Minute

// NewCache creates a credential cache over resolver. A non-positive ttl
// falls back to DefaultTTL.
func NewCache(resolver Resolver, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		resolver: resolver,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]cacheEntry),
	}
}

// Acquire returns a tenant context, resolving credentials through the cache.
func (c *Cache) Acquire(tenantID string) (*Context, error) {
	c.mu.Lock()
	entry, ok := c.entries[tenantID]
	if ok && c.now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return &Context{ID: tenantID, Credentials: entry.creds}, nil
	}
	c.mu.Unlock()

	creds, err := c.resolver.Resolve(tenantID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[tenantID] = cacheEntry{creds: creds, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return &Context{ID: tenantID, Credentials: creds}, nil
}

// Invalidate drops a tenant's cached credentials.
func (c *Cache) Invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}
