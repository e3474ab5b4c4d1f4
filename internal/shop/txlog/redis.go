package txlog

import (
	"context"
	"encoding/json"
	"fmt"

	errx "github.com/logicshop-core/server/internal/core/error"
	"github.com/logicshop-core/server/internal/shop/model"
	logx "github.com/logicshop-core/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisLog stores transactions as JSON entries of a single Redis list.
type RedisLog struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisLog(rdb redis.Cmdable, prefix string) *RedisLog {
	return &RedisLog{rdb: rdb, prefix: prefix}
}

func (r *RedisLog) logKey() string {
	return fmt.Sprintf("%s:txlog", r.prefix)
}

func (r *RedisLog) Append(ctx context.Context, tx model.Transaction) error {
	b, err := json.Marshal(tx)
	if err != nil {
		logx.Error().Err(err).Str("transactionID", tx.ID).Msg("failed to marshal transaction")
		return fmt.Errorf("marshal transaction: %w", err)
	}
	key := r.logKey()

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push transaction to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisLog) List(ctx context.Context) ([]model.Transaction, error) {
	key := r.logKey()

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.Transaction{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load transactions from redis")
		return nil, errx.WrapRedis(err)
	}

	txs := make([]model.Transaction, 0, len(rows))
	for i, s := range rows {
		var tx model.Transaction
		if err := json.Unmarshal([]byte(s), &tx); err != nil {
			logx.Error().Err(err).Int("index", i).Msg("failed to unmarshal transaction")
			return nil, fmt.Errorf("unmarshal transaction at index %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (r *RedisLog) Get(ctx context.Context, id string) (model.Transaction, error) {
	txs, err := r.List(ctx)
	if err != nil {
		return model.Transaction{}, err
	}
	for _, tx := range txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return model.Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
}

func (r *RedisLog) Len(ctx context.Context) (int, error) {
	key := r.logKey()
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get transaction count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.TransactionLog = (*RedisLog)(nil)
