package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション設定を表す
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Publisher PublisherConfig
	Worker    WorkerConfig
	Inventory InventoryConfig
	Payment   PaymentConfig
}

// AppConfig はアプリケーション全体の設定
// Store は "postgres" または "memory"（DBなしでの起動用）
type AppConfig struct {
	Env            string
	Store          string
	ReservationTTL time.Duration
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MetricsUser     string
	MetricsPassword string
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// RedisConfig はRedis設定
// Enabled が false の場合はRedisに接続せずに起動する（空席キャッシュと分散ロックは無効）
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// KafkaConfig はKafka設定
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// PublisherConfig はアウトボックス配信先の設定
// Driver は "redis"（Pub/Sub）または "kafka"
type PublisherConfig struct {
	Driver  string
	Channel string
}

// WorkerConfig はバックグラウンドワーカーの設定
type WorkerConfig struct {
	CleanerInterval  time.Duration
	CleanerBatchSize int
	OutboxInterval   time.Duration
	OutboxBatchSize  int
}

// InventoryConfig は座席在庫操作のリトライ設定
type InventoryConfig struct {
	MaxRetries    int
	RetryInterval time.Duration
}

// PaymentConfig は決済ゲートウェイ（シミュレータ）の設定
// Mode は "approve" または "decline"
type PaymentConfig struct {
	Mode string
}

// Load は環境変数から設定を読み込む
// カレントディレクトリに .env があれば先に読み込む（既存の環境変数は上書きしない）
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Env:            getEnv("APP_ENV", "development"),
			Store:          getEnv("STORE_DRIVER", "postgres"),
			ReservationTTL: getDurationEnv("RESERVATION_TTL", 15*time.Minute),
		},
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			MetricsUser:     getEnv("METRICS_USER", ""),
			MetricsPassword: getEnv("METRICS_PASSWORD", ""),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "travel_booking"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getListEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TOPIC", "reservation-events"),
		},
		Publisher: PublisherConfig{
			Driver:  getEnv("PUBLISHER_DRIVER", "redis"),
			Channel: getEnv("PUBLISHER_CHANNEL", "reservation-events"),
		},
		Worker: WorkerConfig{
			CleanerInterval:  getDurationEnv("CLEANER_INTERVAL", time.Minute),
			CleanerBatchSize: getIntEnv("CLEANER_BATCH_SIZE", 100),
			OutboxInterval:   getDurationEnv("OUTBOX_INTERVAL", 2*time.Second),
			OutboxBatchSize:  getIntEnv("OUTBOX_BATCH_SIZE", 100),
		},
		Inventory: InventoryConfig{
			MaxRetries:    getIntEnv("SEAT_MAX_RETRIES", 3),
			RetryInterval: getDurationEnv("SEAT_RETRY_INTERVAL", 50*time.Millisecond),
		},
		Payment: PaymentConfig{
			Mode: getEnv("PAYMENT_MODE", "approve"),
		},
	}

	// DATABASE_URL / REDIS_URL が設定されていれば個別設定より優先する
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		applyDatabaseURL(&cfg.Database, raw)
	}
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		applyRedisURL(&cfg.Redis, raw)
	}

	return cfg
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// URL は golang-migrate 用の接続URLを返す
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// パースに失敗した場合は何も変更しない
func applyDatabaseURL(c *DatabaseConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if port := u.Port(); port != "" {
		c.Port = port
	}
	if u.User != nil {
		c.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		c.DBName = name
	}
	// マネージドDBはTLS必須のことが多いため、未指定なら require
	c.SSLMode = "require"
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.SSLMode = mode
	}
}

func applyRedisURL(c *RedisConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if port := u.Port(); port != "" {
		c.Port = port
	}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	if db, err := strconv.Atoi(strings.TrimPrefix(u.Path, "/")); err == nil {
		c.DB = db
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// カンマ区切りの値をリストとして読む
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
