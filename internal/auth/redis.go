package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hazyhaar/horosgate/internal/db"
)

// RedisSessions stores sessions in Redis. Keys expire with the session so no
// purge is needed.
type RedisSessions struct {
	rdb    *redis.Client
	prefix string
}

type redisSession struct {
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"`
}

// NewRedisSessions connects to Redis and checks the connection.
func NewRedisSessions(addr, password string, dbIndex int) (*RedisSessions, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbIndex,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisSessionsClient(rdb), nil
}

func NewRedisSessionsClient(rdb *redis.Client) *RedisSessions {
	return &RedisSessions{rdb: rdb, prefix: "session:"}
}

func (r *RedisSessions) key(id string) string { return r.prefix + id }

func (r *RedisSessions) userKey(userID string) string { return r.prefix + "user:" + userID }

func (r *RedisSessions) InsertSession(ctx context.Context, s db.Session) error {
	return r.put(ctx, s.ID, s.UserID, s.ExpiresAt, true)
}

func (r *RedisSessions) put(ctx context.Context, id, userID string, expiresAt time.Time, index bool) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	data, err := json.Marshal(redisSession{UserID: userID, ExpiresAt: expiresAt.Unix()})
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.key(id), data, ttl)
	if index {
		pipe.SAdd(ctx, r.userKey(userID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

func (r *RedisSessions) GetSession(ctx context.Context, id string) (*db.Session, error) {
	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	var rs redisSession
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("corrupted session data: %w", err)
	}
	return &db.Session{ID: id, UserID: rs.UserID, ExpiresAt: time.Unix(rs.ExpiresAt, 0).UTC()}, nil
}

func (r *RedisSessions) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}
	return r.put(ctx, id, s.UserID, expiresAt, false)
}

func (r *RedisSessions) DeleteSession(ctx context.Context, id string) error {
	s, err := r.GetSession(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.key(id))
	pipe.SRem(ctx, r.userKey(s.UserID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (r *RedisSessions) DeleteUserSessions(ctx context.Context, userID string) error {
	ids, err := r.rdb.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("listing user sessions: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, r.key(id))
	}
	keys = append(keys, r.userKey(userID))
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	return nil
}

func (r *RedisSessions) Close() error {
	return r.rdb.Close()
}
