package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/lifeline/internal/models"
)

// RedisIndex implements Index on Redis GEO commands so multiple processes
// (the API server and the ingest consumer) share one responder view.
type RedisIndex struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key, ctx: context.Background()}
}

func NewRedisIndexFromClient(c *redis.Client, key string) *RedisIndex {
	return &RedisIndex{client: c, key: key, ctx: context.Background()}
}

func (r *RedisIndex) Upsert(resp Responder) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{
		Longitude: resp.Loc.Longitude,
		Latitude:  resp.Loc.Latitude,
		Name:      resp.ID,
	}).Result()
	_ = r.client.HSet(r.ctx, MetaKey(r.key, resp.ID), map[string]interface{}{
		"available":   strconv.FormatBool(resp.Available),
		"blood_group": string(resp.BloodGroup),
		"updated":     time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisIndex) Nearby(p models.Point, radiusMeters float64, limit int) []Responder {
	res, err := r.client.GeoRadius(r.ctx, r.key, p.Longitude, p.Latitude, &redis.GeoRadiusQuery{
		Radius:    radiusMeters,
		Unit:      "m",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]Responder, 0, len(res))
	for _, g := range res {
		resp := Responder{ID: g.Name, DistanceMeters: g.Dist}
		resp.Loc = models.Point{Longitude: g.Longitude, Latitude: g.Latitude}
		if m, err := r.client.HGetAll(r.ctx, MetaKey(r.key, g.Name)).Result(); err == nil {
			if v, ok := m["available"]; ok {
				resp.Available = v == "true"
			}
			if v, ok := m["blood_group"]; ok {
				resp.BloodGroup = models.BloodGroup(v)
			}
		}
		if !resp.Available {
			continue
		}
		out = append(out, resp)
	}
	return out
}

// MetaKey names the hash holding responder attributes next to the GEO set.
func MetaKey(indexKey, id string) string { return indexKey + ":meta:" + id }
