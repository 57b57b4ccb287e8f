package tenant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResolver struct {
	inner StaticResolver
	calls int
}

func (r *countingResolver) Resolve(tenantID string) (Credentials, error) {
	r.calls++
	return r.inner.Resolve(tenantID)
}

func TestStaticResolver(t *testing.T) {
	resolver := StaticResolver{
		"acme": {URI: "neo4j://localhost:7687", Username: "neo4j"},
	}

	creds, err := resolver.Resolve("acme")
	require.NoError(t, err)
	assert.Equal(t, "neo4j://localhost:7687", creds.URI)

	_, err = resolver.Resolve("ghost")
	require.ErrorIs(t, err, ErrUnknownTenant)
}

func TestCacheHitsAndTTL(t *testing.T) {
	resolver := &countingResolver{
		inner: StaticResolver{"acme": {URI: "neo4j://localhost:7687"}},
	}
	cache := NewCache(resolver, time.Minute)

	current := time.Now()
	cache.now = func() time.Time { return current }

	tc, err := cache.Acquire("acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", tc.ID)
	assert.Equal(t, 1, resolver.calls)

	// Second acquire within TTL hits the cache
	_, err = cache.Acquire("acme")
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)

	// Expired entry re-resolves
	current = current.Add(2 * time.Minute)
	_, err = cache.Acquire("acme")
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.calls)
}

func TestCacheInvalidate(t *testing.T) {
	resolver := &countingResolver{
		inner: StaticResolver{"acme": {URI: "neo4j://localhost:7687"}},
	}
	cache := NewCache(resolver, time.Minute)

	_, err := cache.Acquire("acme")
	require.NoError(t, err)

	cache.Invalidate("acme")

	_, err = cache.Acquire("acme")
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.calls)
}

func TestCacheUnknownTenant(t *testing.T) {
	cache := NewCache(StaticResolver{}, 0)

	_, err := cache.Acquire("ghost")
	require.ErrorIs(t, err, ErrUnknownTenant)
}
