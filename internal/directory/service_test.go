package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"proptyos-backend/internal/pipeline"

	"github.com/stretchr/testify/require"
)

// mapCache is an in-test cache.Cache that records hits.
type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	hits    int
	sets    int
	deletes int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.data[key]
	if ok {
		c.hits++
	}
	return payload, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = payload
	c.sets++
	return nil
}

func (c *mapCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deletes++
	return nil
}

func (c *mapCache) DeletePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.data, key)
		}
	}
	return nil
}

func TestCreateAndGet(t *testing.T) {
	svc := NewService(NewMemoryRepository(), newMapCache(), time.UTC)
	ctx := context.Background()

	rec, err := svc.Create(ctx, KindClient, CreateRecordRequest{
		Name:  "Adaeze Okafor",
		Email: "adaeze.okafor@example.com",
		Phone: "+2348012345678",
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	got, err := svc.Get(ctx, KindClient, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.Name, got.Name)
}

func TestGetUsesCache(t *testing.T) {
	cacheStore := newMapCache()
	svc := NewService(NewMemoryRepository(), cacheStore, time.UTC)
	ctx := context.Background()

	rec, err := svc.Create(ctx, KindProject, CreateRecordRequest{Name: "Victoria Gardens"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, KindProject, rec.ID)
	require.NoError(t, err)
	require.Equal(t, 1, cacheStore.sets)

	_, err = svc.Get(ctx, KindProject, rec.ID)
	require.NoError(t, err)
	require.Equal(t, 1, cacheStore.hits)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	cacheStore := newMapCache()
	svc := NewService(NewMemoryRepository(), cacheStore, time.UTC)
	ctx := context.Background()

	rec, err := svc.Create(ctx, KindMarketer, CreateRecordRequest{Name: "Chidi Eze"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, KindMarketer, rec.ID)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, KindMarketer, rec.ID, UpdateRecordRequest{Name: "Chidi Eze-Obi"})
	require.NoError(t, err)
	require.Equal(t, "Chidi Eze-Obi", updated.Name)
	require.Equal(t, 1, cacheStore.deletes)

	got, err := svc.Get(ctx, KindMarketer, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "Chidi Eze-Obi", got.Name)
}

func TestInvalidKind(t *testing.T) {
	svc := NewService(NewMemoryRepository(), newMapCache(), time.UTC)
	ctx := context.Background()

	_, err := svc.Create(ctx, "vendors", CreateRecordRequest{Name: "x"})
	require.ErrorIs(t, err, ErrInvalidKind)
	_, err = svc.Get(ctx, "vendors", "id")
	require.ErrorIs(t, err, ErrInvalidKind)
	_, _, err = svc.List(ctx, "vendors", 50, 0)
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestRefsAndContact(t *testing.T) {
	svc := NewService(NewMemoryRepository(), newMapCache(), time.UTC)
	ctx := context.Background()

	client, err := svc.Create(ctx, KindClient, CreateRecordRequest{Name: "Tunde Bakare", Email: "tunde@example.com"})
	require.NoError(t, err)
	project, err := svc.Create(ctx, KindProject, CreateRecordRequest{Name: "Emerald Heights"})
	require.NoError(t, err)

	ref, err := svc.ClientRef(ctx, client.ID)
	require.NoError(t, err)
	require.Equal(t, "Tunde Bakare", ref.Name)

	ref, err = svc.ProjectRef(ctx, project.ID)
	require.NoError(t, err)
	require.Equal(t, "Emerald Heights", ref.Name)

	_, err = svc.MarketerRef(ctx, "missing")
	require.ErrorIs(t, err, pipeline.ErrRefNotFound)

	name, email, err := svc.ClientContact(ctx, client.ID)
	require.NoError(t, err)
	require.Equal(t, "Tunde Bakare", name)
	require.Equal(t, "tunde@example.com", email)
}
