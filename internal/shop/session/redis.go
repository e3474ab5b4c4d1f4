package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	errx "github.com/logicshop-core/server/internal/core/error"
	"github.com/logicshop-core/server/internal/shop/model"
	logx "github.com/logicshop-core/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists sessions as plain keys with no TTL.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (r *RedisStore) sessionKey(token string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, token)
}

func (r *RedisStore) Create(ctx context.Context, userID string) (model.Session, error) {
	token, err := NewToken()
	if err != nil {
		return model.Session{}, err
	}
	sess := model.Session{Token: token, UserID: userID, CreatedAt: time.Now()}
	b, err := json.Marshal(sess)
	if err != nil {
		return model.Session{}, fmt.Errorf("marshal session: %w", err)
	}
	if err := r.rdb.Set(ctx, r.sessionKey(token), b, 0).Err(); err != nil {
		logx.Error().Err(err).Str("userID", userID).Msg("failed to store session in redis")
		return model.Session{}, errx.WrapRedis(err)
	}
	return sess, nil
}

func (r *RedisStore) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	raw, err := r.rdb.Get(ctx, r.sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrInvalidToken
		}
		logx.Error().Err(err).Msg("failed to load session from redis")
		return "", errx.WrapRedis(err)
	}
	var sess model.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		logx.Warn().Err(err).Msg("discarding undecodable session")
		return "", ErrInvalidToken
	}
	return sess.UserID, nil
}

var _ model.SessionStore = (*RedisStore)(nil)
