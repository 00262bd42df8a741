package cache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/KotFed0t/tradedash_bot/config"
	"github.com/KotFed0t/tradedash_bot/utils"
	"github.com/redis/go-redis/v9"
)

const verifiedKeyPrefix = "session_verified:"

type RedisCache struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisCache(redisClient *redis.Client, cfg *config.Config) *RedisCache {
	return &RedisCache{redis: redisClient, cfg: cfg}
}

// ставим отметку об успешной проверке токена, пока она жива - повторно в API не ходим
func (r *RedisCache) SetSessionVerified(ctx context.Context, key string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	_, err := r.redis.Set(ctx, verifiedKeyPrefix+key, "1", r.cfg.Cache.SessionVerifyExpiration).Result()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	return nil
}

func (r *RedisCache) IsSessionVerified(ctx context.Context, key string) (bool, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	_, err := r.redis.Get(ctx, verifiedKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return false, err
	}

	return true, nil
}

func (r *RedisCache) DropSessionVerified(ctx context.Context, key string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	_, err := r.redis.Del(ctx, verifiedKeyPrefix+key).Result()
	if err != nil {
		slog.Error("failed on redis.Del", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	return nil
}
