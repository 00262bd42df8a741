package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/KotFed0t/tradedash_bot/config"
	"github.com/KotFed0t/tradedash_bot/internal/model"
	"github.com/KotFed0t/tradedash_bot/utils"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

const keyPrefix = "session:"

const scanBatchSize = 100

type RedisSession struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisSession(redisClient *redis.Client, cfg *config.Config) *RedisSession {
	return &RedisSession{redis: redisClient, cfg: cfg}
}

func (s *RedisSession) GetSession(ctx context.Context, key string) (model.Session, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	res, err := s.redis.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Session{}, ErrNotFound
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return model.Session{}, err
	}

	sess := model.Session{}
	err = json.Unmarshal([]byte(res), &sess)
	if err != nil {
		// сырую сессию не логируем, внутри токен
		slog.Error(
			"can't unmarshal session",
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
			slog.String("key", key),
		)
		return model.Session{}, errors.New("can't unmarshal session")
	}

	return sess, nil
}

func (s *RedisSession) SetSession(ctx context.Context, key string, session model.Session) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	sessionJson, err := json.Marshal(session)
	if err != nil {
		slog.Error(
			"can't marshal session in SetSession",
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
			slog.String("key", key),
		)
		return errors.New("can't marshal session")
	}

	_, err = s.redis.Set(ctx, keyPrefix+key, sessionJson, s.cfg.SessionExpiration).Result()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return err
	}

	return nil
}

func (s *RedisSession) ClearSession(ctx context.Context, key string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	_, err := s.redis.Del(ctx, keyPrefix+key).Result()
	if err != nil {
		slog.Error("failed on redis.Del", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return err
	}

	return nil
}

// ключи всех живых сессий для фоновой ревалидации токенов
func (s *RedisSession) SessionKeys(ctx context.Context) ([]string, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	var (
		cursor uint64
		keys   []string
	)

	for {
		batch, next, err := s.redis.Scan(ctx, cursor, keyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			slog.Error("failed on redis.Scan", slog.String("rqID", rqID), slog.String("err", err.Error()))
			return nil, err
		}

		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, keyPrefix))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}
