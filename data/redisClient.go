package data

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/tradedash_bot/config"
	"github.com/redis/go-redis/v9"
)

// сессии и отметки о проверке токена живут только в редисе, без него бот бесполезен - падаем сразу
func NewRedisClient(cfg *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("redis connection failed", slog.String("err", err.Error()))
		panic(err)
	}
	slog.Info("redis connected", slog.String("addr", rdb.Options().Addr))

	return rdb
}
