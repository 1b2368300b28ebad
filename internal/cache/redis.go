package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

const submissionPending = "pending"

type RedisCache struct {
	client     *redis.Client
	bookingTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, bookingTTL time.Duration) *RedisCache {
	return NewRedisCacheWithClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		bookingTTL,
	)
}

func NewRedisCacheWithClient(client *redis.Client, bookingTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, bookingTTL: bookingTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetBooking returns nil, nil on a cache miss.
func (c *RedisCache) GetBooking(ctx context.Context, pnr string) (*domain.Booking, error) {
	data, err := c.client.Get(ctx, bookingKey(pnr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var b domain.Booking
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *RedisCache) SetBooking(ctx context.Context, booking *domain.Booking) error {
	payload, err := json.Marshal(booking)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, bookingKey(booking.PNR), payload, c.bookingTTL).Err()
}

func (c *RedisCache) InvalidateBookings(ctx context.Context, pnrs ...string) error {
	if len(pnrs) == 0 {
		return nil
	}
	keys := make([]string, len(pnrs))
	for i, pnr := range pnrs {
		keys[i] = bookingKey(pnr)
	}
	return c.client.Del(ctx, keys...).Err()
}

// AcquireSubmission claims an idempotency key. When the key was already used by a
// completed submission its PNR is returned with acquired=false; a submission still
// in flight returns an empty PNR and acquired=false.
func (c *RedisCache) AcquireSubmission(ctx context.Context, key string, ttl time.Duration) (pnr string, acquired bool, err error) {
	ok, err := c.client.SetNX(ctx, submissionKey(key), submissionPending, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}

	val, err := c.client.Get(ctx, submissionKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	if val == submissionPending {
		return "", false, nil
	}
	return val, false, nil
}

func (c *RedisCache) CompleteSubmission(ctx context.Context, key, pnr string, ttl time.Duration) error {
	return c.client.Set(ctx, submissionKey(key), pnr, ttl).Err()
}

func (c *RedisCache) ReleaseSubmission(ctx context.Context, key string) error {
	return c.client.Del(ctx, submissionKey(key)).Err()
}

func (c *RedisCache) SaveSession(ctx context.Context, session *domain.BookingSession, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(session.ID), payload, ttl).Err()
}

func (c *RedisCache) LoadSession(ctx context.Context, id string) (*domain.BookingSession, error) {
	data, err := c.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}

	var s domain.BookingSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// AcquireSessionLock serializes confirmation of one session across instances.
func (c *RedisCache) AcquireSessionLock(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, sessionLockKey(id), "locked", ttl).Result()
}

func (c *RedisCache) ReleaseSessionLock(ctx context.Context, id string) error {
	return c.client.Del(ctx, sessionLockKey(id)).Err()
}

func bookingKey(pnr string) string {
	return "cache:pnr:" + pnr
}

func submissionKey(key string) string {
	return "idem:book:" + key
}

func sessionKey(id string) string {
	return "session:" + id
}

func sessionLockKey(id string) string {
	return fmt.Sprintf("lock:session:%s", id)
}
