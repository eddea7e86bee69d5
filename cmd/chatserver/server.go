package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chat-relay/internal/config"
	"chat-relay/internal/handlers/apiserver"
	"chat-relay/internal/handlers/chatserver"
	appKafka "chat-relay/internal/kafka"
	"chat-relay/internal/logger"
	"chat-relay/internal/middleware"
	"chat-relay/internal/services"
	"chat-relay/internal/websocket"
)

// runServe 加载配置、装配所有组件并运行 HTTP 服务器，直到 ctx 结束。
func runServe(ctx context.Context, configPath string) error {
	// 1. 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("无法加载配置: %w", err)
	}
	appLogger := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	appLogger.Info().Str("app", cfg.AppName).Str("version", cfg.AppVersion).Msg("配置加载成功")

	// 2. 消息存储
	store, err := openMessageStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("无法初始化消息存储: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭消息存储失败")
		}
	}()

	// 3. 媒体对象存储
	objects, err := openStorageService(ctx, cfg)
	if err != nil {
		return fmt.Errorf("无法初始化媒体存储: %w", err)
	}

	// 4. 可选的 Kafka Producer
	var producer appKafka.MessageProducer
	if cfg.Kafka.Enabled {
		producer, err = appKafka.NewConfluentKafkaProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("无法创建 Kafka 生产者: %w", err)
		}
		defer producer.Close()
	}

	// 5. Hub 与服务
	hub := websocket.NewHub()
	mediaService := services.NewMediaService(objects, cfg.Storage)
	messageService := services.NewMessageService(store, mediaService, hub, producer, cfg)
	// 在 producer.Close 之前执行，先发布完队列中的消息
	defer messageService.Close()
	historyService := services.NewHistoryService(store, hub)

	// 6. 路由
	router := newRouter(cfg, appLogger, hub, messageService, historyService)

	serverAddr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:           serverAddr,
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", serverAddr).Str("ws", cfg.Server.WebSocketPath).Msg("Chat 服务器启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("chat 服务器启动失败: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("收到关闭信号，正在关闭 Chat 服务器...")
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Error().Err(err).Msg("Chat 服务器强制关闭")
	}
	// 已升级的 WebSocket 连接不受 Shutdown 管理，由 Hub 关闭
	hub.Shutdown()

	log.Info().Msg("Chat 服务器已优雅关闭")
	return nil
}

// newRouter 注册 WebSocket、健康检查、历史、指标与静态文件路由，并包装日志与 CORS 中间件。
func newRouter(cfg config.Config, appLogger zerolog.Logger, hub *websocket.Hub, messageService services.MessageService, historyService services.HistoryService) http.Handler {
	wsHandler := chatserver.NewWebSocketHandler(hub, messageService, historyService, cfg)
	messageHandler := apiserver.NewMessageHandler(historyService)

	r := mux.NewRouter()
	r.HandleFunc(cfg.Server.WebSocketPath, wsHandler.ServeWS)
	r.HandleFunc("/", apiserver.HealthHandler).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/messages", messageHandler.ListMessagesHandler).Methods(http.MethodGet)

	// 本地存储的媒体文件
	if strings.EqualFold(cfg.Storage.Type, "local") || cfg.Storage.Type == "" {
		staticPath := "/" + strings.Trim(cfg.Storage.URLPrefix, "/") + "/"
		r.PathPrefix(staticPath).Handler(http.StripPrefix(staticPath, http.FileServer(http.Dir(cfg.Storage.LocalPath))))
		log.Info().Str("path", staticPath).Str("dir", cfg.Storage.LocalPath).Msg("提供静态文件服务")
	}

	r.Use(middleware.RequestLogger(appLogger))

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.CORS.AllowedHeaders),
		handlers.MaxAge(cfg.CORS.MaxAge),
	}
	if cfg.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	return handlers.CORS(corsOptions...)(r)
}
