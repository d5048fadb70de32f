package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dotrep/payment-gateway/internal/models"
)

// RedisChallengeStore keeps challenges in Redis with a TTL matching the
// challenge expiry, so the expiry sweep is handled by the server.
type RedisChallengeStore struct {
	client *redis.Client
}

func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func challengeKey(token string) string {
	return fmt.Sprintf("challenge:%s", token)
}

func (s *RedisChallengeStore) Put(ctx context.Context, challenge *models.PaymentChallenge) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return err
	}
	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("challenge %s already expired", challenge.Challenge)
	}
	return s.client.Set(ctx, challengeKey(challenge.Challenge), payload, ttl).Err()
}

func (s *RedisChallengeStore) TakeAndDelete(ctx context.Context, token string) (*models.PaymentChallenge, error) {
	payload, err := s.client.GetDel(ctx, challengeKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var challenge models.PaymentChallenge
	if err := json.Unmarshal([]byte(payload), &challenge); err != nil {
		return nil, err
	}
	return &challenge, nil
}

// Sweep is a no-op: Redis evicts expired challenges by TTL.
func (s *RedisChallengeStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// RedisReplayStore implements the replay ledger with SETNX. The key is
// written without expiry: a consumed transaction identifier is rejected
// forever.
type RedisReplayStore struct {
	client *redis.Client
}

func NewRedisReplayStore(client *redis.Client) *RedisReplayStore {
	return &RedisReplayStore{client: client}
}

func (s *RedisReplayStore) PutIfAbsent(ctx context.Context, txID string, meta models.ReplayMeta) (bool, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return false, err
	}
	return s.client.SetNX(ctx, fmt.Sprintf("replay:%s", txID), payload, 0).Result()
}
