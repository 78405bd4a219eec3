package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/carpool-engine/internal/models"
)

// RedisIndex keeps the origin points of open reservations in a Redis GEO set
// so multi-node deployments can pre-trim the candidate pool before the exact
// two-endpoint filter runs. The consumer binary keeps it in sync from the
// lifecycle event stream.
type RedisIndex struct {
	client *redis.Client
	key    string
}

func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key}
}

func (r *RedisIndex) Add(ctx context.Context, res models.Reservation) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: res.Origin.Lon,
		Latitude:  res.Origin.Lat,
		Name:      res.ID,
	}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(res.ID), map[string]interface{}{
		"role":         string(res.Role),
		"window_start": res.Window.Start.Format(time.RFC3339),
		"window_end":   res.Window.End.Format(time.RFC3339),
		"capacity":     strconv.Itoa(res.Capacity),
	}).Err()
}

func (r *RedisIndex) Remove(ctx context.Context, id string) error {
	if err := r.client.ZRem(ctx, r.key, id).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, metaKey(id)).Err()
}

// NearbyIDs returns reservation ids whose origin lies within radiusMeters of
// the given point, nearest first. A lookup failure degrades to nil so the
// caller falls back to the unfiltered pool.
func (r *RedisIndex) NearbyIDs(ctx context.Context, lat, lon, radiusMeters float64, limit int) []string {
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: radiusMeters, Unit: "m", Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(res))
	for _, g := range res {
		out = append(out, g.Name)
	}
	return out
}

func (r *RedisIndex) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisIndex) Close() error { return r.client.Close() }

func metaKey(id string) string { return "reservation:meta:" + id }
