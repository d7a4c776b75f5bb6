package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cordum/zipmark/core/infra/redisutil"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultShortTTL       = 24 * time.Hour
	defaultStandardTTL    = 90 * 24 * time.Hour
	defaultAuditTTL       = 2 * 365 * 24 * time.Hour
	defaultListLimit      = 50
	envReceiptTTLShort    = "RECEIPT_TTL_SHORT"
	envReceiptTTLStandard = "RECEIPT_TTL_STANDARD"
	envReceiptTTLAudit    = "RECEIPT_TTL_AUDIT"
)

// RedisStore implements receipt storage using Redis. Each receipt is a JSON
// value with a TTL; a per-customer sorted set indexes them by creation time.
type RedisStore struct {
	client      redis.UniversalClient
	ttlShort    time.Duration
	ttlStandard time.Duration
	ttlAudit    time.Duration
	now         func() time.Time
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a receipt store backed by Redis.
func NewRedisStore(url string) (*RedisStore, error) {
	client, err := redisutil.Connect(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{
		client:      client,
		ttlShort:    parseDurationEnv(envReceiptTTLShort, defaultShortTTL),
		ttlStandard: parseDurationEnv(envReceiptTTLStandard, defaultStandardTTL),
		ttlAudit:    parseDurationEnv(envReceiptTTLAudit, defaultAuditTTL),
		now:         time.Now,
	}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Put stores r under a fresh id and returns it.
func (s *RedisStore) Put(ctx context.Context, r Receipt) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("receipt store unavailable")
	}
	if r.CustomerID <= 0 {
		return "", fmt.Errorf("customer id required")
	}
	r.ID = uuid.NewString()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	if r.Retention == "" {
		r.Retention = RetentionStandard
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal receipt: %w", err)
	}
	ttl := s.ttlFor(r.Retention)
	idx := customerIndexKey(r.CustomerID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, receiptKey(r.ID), payload, ttl)
	pipe.ZAdd(ctx, idx, redis.Z{Score: float64(r.CreatedAt.UnixMilli()), Member: r.ID})
	// The index outlives every receipt it points to.
	pipe.Expire(ctx, idx, s.ttlAudit)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return r.ID, nil
}

// Get returns the receipt with id.
func (s *RedisStore) Get(ctx context.Context, id string) (Receipt, error) {
	if s == nil || s.client == nil {
		return Receipt{}, fmt.Errorf("receipt store unavailable")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Receipt{}, fmt.Errorf("receipt id required")
	}
	data, err := s.client.Get(ctx, receiptKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Receipt{}, err
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return Receipt{}, fmt.Errorf("unmarshal receipt: %w", err)
	}
	return r, nil
}

// ListByCustomer returns the newest receipts first. Expired receipts are
// pruned from the index as they are found.
func (s *RedisStore) ListByCustomer(ctx context.Context, customerID int64, limit int64) ([]Receipt, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("receipt store unavailable")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	idx := customerIndexKey(customerID)
	ids, err := s.client.ZRevRange(ctx, idx, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Receipt, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			_ = s.client.ZRem(ctx, idx, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisStore) ttlFor(retention RetentionClass) time.Duration {
	switch retention {
	case RetentionShort:
		return s.ttlShort
	case RetentionAudit:
		return s.ttlAudit
	default:
		return s.ttlStandard
	}
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func receiptKey(id string) string {
	return "zipmark:receipt:" + id
}

func customerIndexKey(customerID int64) string {
	return "zipmark:receipts:customer:" + strconv.FormatInt(customerID, 10)
}
