package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-access/internal/session"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// RefreshRecord is what the server keeps for one refresh token.
type RefreshRecord struct {
	UserID     int64          `json:"userId"`
	SecretHash []byte         `json:"secretHash"`
	Claims     session.Claims `json:"claims"`
}

// RefreshStore persists single-use refresh records.
type RefreshStore interface {
	Save(ctx context.Context, id string, rec RefreshRecord, ttl time.Duration) error
	// Take returns and deletes the record.
	Take(ctx context.Context, id string) (RefreshRecord, error)
}

// RedisRefreshStore keeps refresh records in Redis with a TTL.
type RedisRefreshStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisRefreshStore constructs a store using keys under prefix.
func NewRedisRefreshStore(client redis.Cmdable, prefix string) *RedisRefreshStore {
	if prefix == "" {
		prefix = "access:refresh:"
	}
	return &RedisRefreshStore{client: client, prefix: prefix}
}

// Save implements RefreshStore.
func (s *RedisRefreshStore) Save(ctx context.Context, id string, rec RefreshRecord, ttl time.Duration) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+id, body, ttl).Err()
}

// Take implements RefreshStore.
func (s *RedisRefreshStore) Take(ctx context.Context, id string) (RefreshRecord, error) {
	body, err := s.client.GetDel(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RefreshRecord{}, fmt.Errorf("tokens: refresh %s: %w", id, shared.ErrInvalidToken)
		}
		return RefreshRecord{}, err
	}
	var rec RefreshRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return RefreshRecord{}, fmt.Errorf("tokens: decode refresh %s: %w", id, err)
	}
	return rec, nil
}
