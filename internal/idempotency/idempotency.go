// Package idempotency provides single-use submission tokens and
// processed-request markers. Tokens guard the synchronous purchase path
// against duplicate form submissions; markers guard the queue consumer
// against redelivered messages.
package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flashmart/seckill/model"
)

const (
	tokenKeyPrefix     = "seckill:token:"
	processedKeyPrefix = "seckill:msg:processed:"
)

type Store struct {
	client   redis.UniversalClient
	tokenTTL time.Duration
}

func NewStore(client redis.UniversalClient, tokenTTL time.Duration) *Store {
	if tokenTTL <= 0 {
		tokenTTL = 5 * time.Minute
	}
	return &Store{client: client, tokenTTL: tokenTTL}
}

func tokenKey(userID, token string) string {
	return tokenKeyPrefix + userID + ":" + token
}

// IssueToken mints a fresh single-use token for the user. The token expires
// unused after the store's TTL.
func (s *Store) IssueToken(ctx context.Context, userID string) (string, error) {
	token := model.GenerateUUIDWithSuffix("tok")
	if err := s.client.Set(ctx, tokenKey(userID, token), "1", s.tokenTTL).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// BurnToken consumes the token. Deletion is the atomic claim: of any number
// of concurrent burns for the same token exactly one sees true.
func (s *Store) BurnToken(ctx context.Context, userID, token string) (bool, error) {
	deleted, err := s.client.Del(ctx, tokenKey(userID, token)).Result()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}

// IsProcessed reports whether the request has already been handled by a
// consumer.
func (s *Store) IsProcessed(ctx context.Context, requestID string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKeyPrefix+requestID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed records the request as handled. Returns true for the first
// caller to claim the marker, false when another consumer got there first.
func (s *Store) MarkProcessed(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, processedKeyPrefix+requestID, "1", ttl).Result()
}
