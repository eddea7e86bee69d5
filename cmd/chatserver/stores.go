package main

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"chat-relay/internal/config"
	"chat-relay/internal/imtypes"
	appRedis "chat-relay/internal/redis"
	"chat-relay/internal/storage"
)

// openMessageStore 根据 DATABASE.TYPE 选择消息存储后端。
func openMessageStore(ctx context.Context, cfg config.Config) (storage.MessageStore, error) {
	switch strings.ToLower(cfg.Database.Type) {
	case "", "mongo", "mongodb":
		store, err := storage.NewMongoMessageStore(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		log.Info().Str("db", cfg.Database.Name).Str("collection", cfg.Database.Collection).Msg("已连接 MongoDB")
		return store, nil

	case "postgres":
		db, err := storage.InitDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := storage.AutoMigrateTables(db); err != nil {
			return nil, err
		}
		log.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("已连接 PostgreSQL")
		return storage.NewGormMessageStore(db), nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.Timeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("无法连接 Redis %s: %w", cfg.Redis.Addr, err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("已连接 Redis")
		return appRedis.NewRedisMessageStore(client, cfg.Redis.KeyPrefix), nil

	case "memory":
		log.Warn().Msg("使用内存消息存储，重启后历史将丢失")
		return storage.NewMemoryMessageStore(), nil

	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", cfg.Database.Type)
	}
}

// openStorageService 根据 STORAGE.TYPE 选择媒体对象存储。
func openStorageService(ctx context.Context, cfg config.Config) (imtypes.StorageService, error) {
	switch strings.ToLower(cfg.Storage.Type) {
	case "", "local":
		return storage.NewLocalStorageService(cfg.Storage, localBaseURL(cfg))
	case "s3", "minio":
		return storage.NewS3StorageService(ctx, cfg.Storage.S3)
	default:
		return nil, fmt.Errorf("不支持的存储类型: %s", cfg.Storage.Type)
	}
}

// localBaseURL 是本地存储文件对外可访问的 URL 前缀。
func localBaseURL(cfg config.Config) string {
	return strings.TrimSuffix(cfg.Server.PublicBaseURL, "/") + "/" + strings.Trim(cfg.Storage.URLPrefix, "/")
}
