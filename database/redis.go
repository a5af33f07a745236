package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tripsplit-backend/models"
	"tripsplit-backend/money"
	"tripsplit-backend/services"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RatesKey is the hash holding operator-set exchange rates ("USD/TWD" -> "32.5").
const RatesKey = "exchange_rates"

func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	slog.Info("redis connected", "addr", opts.Addr)
	return rdb, nil
}

// LoadRateOverrides reads the exchange rate hash. Unparseable entries are
// skipped with a warning.
func LoadRateOverrides(ctx context.Context, rdb *redis.Client) (map[money.Pair]decimal.Decimal, error) {
	fields, err := rdb.HGetAll(ctx, RatesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", RatesKey, err)
	}
	rates := make(map[money.Pair]decimal.Decimal, len(fields))
	for pairText, rateText := range fields {
		pair, err := money.ParsePair(pairText)
		if err != nil {
			slog.Warn("ignoring exchange rate override", "pair", pairText, "error", err)
			continue
		}
		rate, err := decimal.NewFromString(rateText)
		if err != nil || !rate.IsPositive() {
			slog.Warn("ignoring exchange rate override", "pair", pairText, "rate", rateText)
			continue
		}
		rates[pair] = rate
	}
	return rates, nil
}

// CachedDirectory caches profile lookups in Redis. A Redis failure falls
// through to the wrapped directory.
type CachedDirectory struct {
	next services.Directory
	rdb  *redis.Client
	ttl  time.Duration
}

func NewCachedDirectory(next services.Directory, rdb *redis.Client, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{next: next, rdb: rdb, ttl: ttl}
}

func (d *CachedDirectory) Lookup(ctx context.Context, userID string) (models.Profile, error) {
	key := "profile:" + userID

	raw, err := d.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var c cachedProfile
		if err := json.Unmarshal(raw, &c); err == nil {
			return c.profile(), nil
		}
	case !errors.Is(err, redis.Nil):
		slog.Warn("profile cache read failed", "user_id", userID, "error", err)
	}

	p, err := d.next.Lookup(ctx, userID)
	if err != nil {
		return models.Profile{}, err
	}
	if raw, err := json.Marshal(newCachedProfile(p)); err == nil {
		if err := d.rdb.Set(ctx, key, raw, d.ttl).Err(); err != nil {
			slog.Warn("profile cache write failed", "user_id", userID, "error", err)
		}
	}
	return p, nil
}

// cachedProfile keeps the fields models.Profile hides from API responses.
type cachedProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref"`
	Email       string `json:"email"`
	FCMToken    string `json:"fcm_token"`
}

func newCachedProfile(p models.Profile) cachedProfile {
	return cachedProfile(p)
}

func (c cachedProfile) profile() models.Profile {
	return models.Profile(c)
}
