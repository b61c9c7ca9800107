package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config 遥测监护服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 遥测监护服务特定配置
	Monitor struct {
		// 遥测主题过滤器，如 "telemetry/#"（每个对象一个子主题 telemetry/{subject_id}）
		TopicFilter string
		// 主题前缀（用于向设备下发配置消息）
		TopicPrefix string

		// 静默窗口：超过该时长没有新读数则降级为 no-data
		LivenessWindow time.Duration

		// 每个对象报警历史上限（FIFO 淘汰）
		HistoryCap int
		// 报警事件查询默认分页大小
		DefaultPageSize int
		// 报警事件异步落库缓冲大小
		AlertBuffer int

		// 对象状态快照镜像（Redis）
		Snapshot struct {
			Enabled   bool
			KeyPrefix string        // 如 "telemetry:subject:"
			Suffix    string        // 如 ":snapshot"
			TTL       time.Duration // 快照过期时间
		}

		// 档案缓存（activityMode，外部档案服务写入，本服务只读）
		Profile struct {
			KeyPrefix string // 如 "subject:profile:"
		}
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	// 开发环境支持 .env 文件（不存在则忽略）
	_ = godotenv.Load()

	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "vitalink")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "vitalink-monitor")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	// 遥测监护配置
	cfg.Monitor.TopicFilter = getEnv("TELEMETRY_TOPIC_FILTER", "telemetry/#")
	cfg.Monitor.TopicPrefix = getEnv("TELEMETRY_TOPIC_PREFIX", "telemetry/")
	cfg.Monitor.LivenessWindow = getEnvDuration("LIVENESS_WINDOW", 3*time.Second)
	cfg.Monitor.HistoryCap = getEnvInt("ALERT_HISTORY_CAP", 1000)
	cfg.Monitor.DefaultPageSize = getEnvInt("ALERT_PAGE_SIZE", 10)
	cfg.Monitor.AlertBuffer = getEnvInt("ALERT_BUFFER", 256)

	cfg.Monitor.Snapshot.Enabled = getEnv("SNAPSHOT_ENABLED", "true") == "true"
	cfg.Monitor.Snapshot.KeyPrefix = getEnv("SNAPSHOT_KEY_PREFIX", "telemetry:subject:")
	cfg.Monitor.Snapshot.Suffix = getEnv("SNAPSHOT_SUFFIX", ":snapshot")
	cfg.Monitor.Snapshot.TTL = getEnvDuration("SNAPSHOT_TTL", 10*time.Second)

	cfg.Monitor.Profile.KeyPrefix = getEnv("PROFILE_KEY_PREFIX", "subject:profile:")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8082")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}
