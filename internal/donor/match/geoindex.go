package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/lifelink/internal/donor/domain"
)

// GeoIndex narrows the candidate pool for notification fan-out. Implementations
// return donor ids sorted by proximity; callers always re-check distance with
// the canonical in-process Haversine before acting on a candidate.
type GeoIndex interface {
	Upsert(ctx context.Context, donorID uuid.UUID, point domain.GeoPoint) error
	Remove(ctx context.Context, donorID uuid.UUID) error
	Nearby(ctx context.Context, at domain.GeoPoint, radiusKM float64, limit int) ([]uuid.UUID, error)
}

var errInvalidGeoMember = errors.New("invalid geo index member")

const defaultGeoKey = "donor:locs"

// RedisGeoIndex implements GeoIndex with Redis GEO commands. Redis takes
// longitude before latitude; this file is the only place that ordering
// appears on the Redis boundary.
type RedisGeoIndex struct {
	client redis.Cmdable
	key    string
}

// NewRedisGeoIndex constructs a Redis-backed donor location index.
func NewRedisGeoIndex(client redis.Cmdable, key string) *RedisGeoIndex {
	if key == "" {
		key = defaultGeoKey
	}
	return &RedisGeoIndex{client: client, key: key}
}

// Upsert records or moves a donor's location in the index.
func (r *RedisGeoIndex) Upsert(ctx context.Context, donorID uuid.UUID, point domain.GeoPoint) error {
	if err := point.Validate(); err != nil {
		return err
	}
	err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Name:      donorID.String(),
		Longitude: point.Lng,
		Latitude:  point.Lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis geoadd: %w", err)
	}
	return nil
}

// Remove drops a donor from the index.
func (r *RedisGeoIndex) Remove(ctx context.Context, donorID uuid.UUID) error {
	if err := r.client.ZRem(ctx, r.key, donorID.String()).Err(); err != nil {
		return fmt.Errorf("redis zrem: %w", err)
	}
	return nil
}

// Nearby returns up to limit donor ids within radiusKM, closest first.
func (r *RedisGeoIndex) Nearby(ctx context.Context, at domain.GeoPoint, radiusKM float64, limit int) ([]uuid.UUID, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("redis geo index not configured")
	}

	query := &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  at.Lng,
			Latitude:   at.Lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
	}

	results, err := r.client.GeoSearchLocation(ctx, r.key, query).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geosearch: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(results))
	for _, res := range results {
		id, err := uuid.Parse(res.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errInvalidGeoMember, res.Name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
