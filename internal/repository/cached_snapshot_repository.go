package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uniplan/coresched/internal/models"
)

const (
	roomsCacheKey     = "coresched:catalog:rooms"
	timeSlotsCacheKey = "coresched:catalog:timeslots"
	catalogCacheTTL    = 5 * time.Minute
)

// CachedSnapshotRepository wraps SnapshotRepository with a Redis-backed cache
// for the two catalogs every solve scope reads in full and that change
// rarely: the room and time-slot tables. Everything else is scoped by
// section ids and stays uncached, since a stale fixed entry or special
// allotment would silently corrupt a solve.
type CachedSnapshotRepository struct {
	*SnapshotRepository
	rdb *redis.Client
}

// NewCachedSnapshotRepository wraps an existing snapshot repository with a
// Redis read-through cache for its catalog-wide lists.
func NewCachedSnapshotRepository(base *SnapshotRepository, rdb *redis.Client) *CachedSnapshotRepository {
	return &CachedSnapshotRepository{SnapshotRepository: base, rdb: rdb}
}

func (r *CachedSnapshotRepository) ListRooms(ctx context.Context) ([]models.Room, error) {
	var out []models.Room
	if r.readCache(ctx, roomsCacheKey, &out) {
		return out, nil
	}
	out, err := r.SnapshotRepository.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	r.writeCache(ctx, roomsCacheKey, out)
	return out, nil
}

func (r *CachedSnapshotRepository) ListTimeSlots(ctx context.Context) ([]models.TimeSlot, error) {
	var out []models.TimeSlot
	if r.readCache(ctx, timeSlotsCacheKey, &out) {
		return out, nil
	}
	out, err := r.SnapshotRepository.ListTimeSlots(ctx)
	if err != nil {
		return nil, err
	}
	r.writeCache(ctx, timeSlotsCacheKey, out)
	return out, nil
}

func (r *CachedSnapshotRepository) readCache(ctx context.Context, key string, dest interface{}) bool {
	if r.rdb == nil {
		return false
	}
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (r *CachedSnapshotRepository) writeCache(ctx context.Context, key string, value interface{}) {
	if r.rdb == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	r.rdb.Set(ctx, key, raw, catalogCacheTTL)
}

// InvalidateCatalog drops the cached room and time-slot lists so the next
// load reads them from Postgres.
func (r *CachedSnapshotRepository) InvalidateCatalog(ctx context.Context) {
	if r.rdb == nil {
		return
	}
	r.rdb.Del(ctx, roomsCacheKey, timeSlotsCacheKey)
}
