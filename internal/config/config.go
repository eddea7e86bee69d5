package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// CORSConfig holds configuration for CORS.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `mapstructure:"ALLOWED_METHODS"`
	AllowedHeaders   []string `mapstructure:"ALLOWED_HEADERS"`
	AllowCredentials bool     `mapstructure:"ALLOW_CREDENTIALS"`
	MaxAge           int      `mapstructure:"MAX_AGE"`
}

// RedisConfig holds configuration for Redis.
type RedisConfig struct {
	Addr      string `mapstructure:"ADDR"`
	Password  string `mapstructure:"PASSWORD"`
	DB        int    `mapstructure:"DB"`
	KeyPrefix string `mapstructure:"KEY_PREFIX"`
}

// Config holds all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AppName    string          `mapstructure:"APP_NAME"`
	AppVersion string          `mapstructure:"APP_VERSION"`
	LogLevel   string          `mapstructure:"LOG_LEVEL"`
	LogFormat  string          `mapstructure:"LOG_FORMAT"` // console | json
	Server     ServerConfig    `mapstructure:"SERVER"`
	CORS       CORSConfig      `mapstructure:"CORS"`
	Kafka      KafkaConfig     `mapstructure:"KAFKA"`
	Database   DatabaseConfig  `mapstructure:"DATABASE"`
	Storage    StorageConfig   `mapstructure:"STORAGE"`
	WebSocket  WebSocketConfig `mapstructure:"WEBSOCKET"`
	Redis      RedisConfig     `mapstructure:"REDIS"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"HOST"`
	Port            string        `mapstructure:"PORT"`
	WebSocketPath   string        `mapstructure:"WEBSOCKET_PATH"`
	PublicBaseURL   string        `mapstructure:"PUBLIC_BASE_URL"` // 本地存储文件 URL 的前缀
	ReadTimeout     time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	MaxHeaderBytes  int           `mapstructure:"MAX_HEADER_BYTES"`
}

// KafkaConfig holds configuration for Kafka.
// 仅用于发布已持久化的消息，供下游系统消费。
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"ENABLED"`
	Brokers       []string `mapstructure:"BROKERS"`
	ClientID      string   `mapstructure:"CLIENT_ID"`
	MessagesTopic string   `mapstructure:"MESSAGES_TOPIC"`
	Protocol      string   `mapstructure:"PROTOCOL"`
}

// DatabaseConfig holds configuration for the message store.
type DatabaseConfig struct {
	Type       string        `mapstructure:"TYPE"` // "mongo", "postgres", "redis", "memory"
	URI        string        `mapstructure:"URI"`  // MongoDB 连接串
	Name       string        `mapstructure:"NAME"`
	Collection string        `mapstructure:"COLLECTION"`
	Host       string        `mapstructure:"HOST"`
	Port       int           `mapstructure:"PORT"`
	User       string        `mapstructure:"USER"`
	Password   string        `mapstructure:"PASSWORD"`
	DBName     string        `mapstructure:"DB_NAME"`
	SSLMode    string        `mapstructure:"SSL_MODE"`
	Timeout    time.Duration `mapstructure:"TIMEOUT"`
}

// StorageConfig holds configuration for media storage.
type StorageConfig struct {
	Type          string        `mapstructure:"TYPE"` // "local", "s3"
	LocalPath     string        `mapstructure:"LOCAL_PATH"`
	URLPrefix     string        `mapstructure:"URL_PREFIX"`
	MaxFileSizeMB int64         `mapstructure:"MAX_FILE_SIZE_MB"`
	FetchTimeout  time.Duration `mapstructure:"FETCH_TIMEOUT"`
	S3            S3Config      `mapstructure:"S3"`
}

// S3Config holds configuration for S3 compatible storage.
type S3Config struct {
	BucketName      string `mapstructure:"BUCKET_NAME"`
	Region          string `mapstructure:"REGION"`
	AccessKeyID     string `mapstructure:"ACCESS_KEY_ID"`
	SecretAccessKey string `mapstructure:"SECRET_ACCESS_KEY"`
	Endpoint        string `mapstructure:"ENDPOINT"` // For S3 compatible storage like MinIO
	UseSSL          bool   `mapstructure:"USE_SSL"`
	PublicURL       string `mapstructure:"PUBLIC_URL"` // 为空时使用 endpoint/bucket
}

// WebSocketConfig holds configuration for WebSocket connections.
type WebSocketConfig struct {
	WriteWaitSeconds    int     `mapstructure:"WRITE_WAIT_SECONDS"`
	PongWaitSeconds     int     `mapstructure:"PONG_WAIT_SECONDS"`
	PingPeriodSeconds   int     `mapstructure:"PING_PERIOD_SECONDS"`
	MaxMessageSizeBytes int     `mapstructure:"MAX_MESSAGE_SIZE_BYTES"`
	SendBufferSize      int     `mapstructure:"SEND_BUFFER_SIZE"`
	MessagesPerSecond   float64 `mapstructure:"MESSAGES_PER_SECOND"` // 0 表示不限流
	MessageBurst        int     `mapstructure:"MESSAGE_BURST"`
}

// MaxFileSizeBytes returns the configured upload limit in bytes.
func (s StorageConfig) MaxFileSizeBytes() int64 {
	return s.MaxFileSizeMB << 20
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in the working directory is loaded first, if present.
func LoadConfig(path string) (config Config, err error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("APP_NAME", "chat-relay")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("SERVER.HOST", "0.0.0.0")
	v.SetDefault("SERVER.PORT", "5000")
	v.SetDefault("SERVER.WEBSOCKET_PATH", "/ws")
	v.SetDefault("SERVER.PUBLIC_BASE_URL", "http://localhost:5000")
	v.SetDefault("SERVER.READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER.SHUTDOWN_TIMEOUT", 5*time.Second)
	v.SetDefault("SERVER.MAX_HEADER_BYTES", 1<<20) // 1 MB

	v.SetDefault("CORS.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("CORS.ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("CORS.ALLOWED_HEADERS", []string{"Accept", "Content-Type"})
	v.SetDefault("CORS.ALLOW_CREDENTIALS", false)
	v.SetDefault("CORS.MAX_AGE", 300)

	v.SetDefault("KAFKA.ENABLED", false)
	v.SetDefault("KAFKA.BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA.CLIENT_ID", "chat-relay")
	v.SetDefault("KAFKA.MESSAGES_TOPIC", "chat-relay-messages")
	v.SetDefault("KAFKA.PROTOCOL", "plaintext")

	v.SetDefault("DATABASE.TYPE", "mongo")
	v.SetDefault("DATABASE.URI", "mongodb://localhost:27017")
	v.SetDefault("DATABASE.NAME", "chat")
	v.SetDefault("DATABASE.COLLECTION", "messages")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "password")
	v.SetDefault("DATABASE.DB_NAME", "chat_relay")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.TIMEOUT", 10*time.Second)

	v.SetDefault("STORAGE.TYPE", "local")
	v.SetDefault("STORAGE.LOCAL_PATH", "./uploads")
	v.SetDefault("STORAGE.URL_PREFIX", "/uploads")
	v.SetDefault("STORAGE.MAX_FILE_SIZE_MB", 25)
	v.SetDefault("STORAGE.FETCH_TIMEOUT", 30*time.Second)
	v.SetDefault("STORAGE.S3.REGION", "us-east-1")
	v.SetDefault("STORAGE.S3.USE_SSL", true)

	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.KEY_PREFIX", "chat")

	v.SetDefault("WEBSOCKET.WRITE_WAIT_SECONDS", 10)
	v.SetDefault("WEBSOCKET.PONG_WAIT_SECONDS", 60)
	v.SetDefault("WEBSOCKET.PING_PERIOD_SECONDS", 54) // (60 * 9) / 10
	// 图片与文档以内联 base64 传输，读取上限需要覆盖媒体大小
	v.SetDefault("WEBSOCKET.MAX_MESSAGE_SIZE_BYTES", 32<<20)
	v.SetDefault("WEBSOCKET.SEND_BUFFER_SIZE", 256)
	v.SetDefault("WEBSOCKET.MESSAGES_PER_SECOND", 0)
	v.SetDefault("WEBSOCKET.MESSAGE_BURST", 10)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	// SERVER_PORT overrides SERVER.PORT, DATABASE_URI overrides DATABASE.URI, ...
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 兼容旧部署使用的环境变量名
	_ = v.BindEnv("SERVER.PORT", "SERVER_PORT", "PORT")
	_ = v.BindEnv("DATABASE.URI", "DATABASE_URI", "MONGODB_URI")

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}
