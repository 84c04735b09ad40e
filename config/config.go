package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 聚合两个进程（feed / gateway）共用的配置
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Log      LogConfig         `mapstructure:"log"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Kafka    KafkaConfig       `mapstructure:"kafka"`
	Auth     AuthConfig        `mapstructure:"auth"`
	Feed     FeedConfig        `mapstructure:"feed"`
	Breaker  BreakerConfig     `mapstructure:"breaker"`
	Limit    LimitConfig       `mapstructure:"limit"`
	Sentry   SentryConfig      `mapstructure:"sentry"`
	Tracing  TracingConfig     `mapstructure:"tracing"`
	Services map[string]string `mapstructure:"services"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port"`         // feed service
	GatewayPort string `mapstructure:"gateway_port"` // edge router
	Mode        string `mapstructure:"mode"`         // gin mode: debug/release
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type FeedConfig struct {
	MaxLen         int           `mapstructure:"max_len"`
	ReadLimit      int           `mapstructure:"read_limit"`
	RebuildFanout  int           `mapstructure:"rebuild_fanout"`
	RebuildTTL     time.Duration `mapstructure:"rebuild_ttl"`
	RebuildTimeout time.Duration `mapstructure:"rebuild_timeout"`
}

type BreakerConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	ResetTimeout   time.Duration `mapstructure:"reset_timeout"`
	ErrorThreshold float64       `mapstructure:"error_threshold"`
	Window         time.Duration `mapstructure:"window"`
	MinRequests    int           `mapstructure:"min_requests"`
}

type LimitConfig struct {
	Window time.Duration `mapstructure:"window"`
	Max    int           `mapstructure:"max"`
}

type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// Load 读取 config.yaml 并叠加 FEEDGATE_* 环境变量
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("feedgate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 没有配置文件时仅用默认值 + 环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3004")
	v.SetDefault("server.gateway_port", "3000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{"kafka:9092"})
	v.SetDefault("kafka.group_id", "feed-group")
	v.SetDefault("feed.max_len", 100)
	v.SetDefault("feed.read_limit", 20)
	v.SetDefault("feed.rebuild_fanout", 10)
	v.SetDefault("feed.rebuild_ttl", time.Hour)
	v.SetDefault("feed.rebuild_timeout", 15*time.Second)
	v.SetDefault("breaker.timeout", 10*time.Second)
	v.SetDefault("breaker.reset_timeout", 30*time.Second)
	v.SetDefault("breaker.error_threshold", 0.5)
	v.SetDefault("breaker.window", 10*time.Second)
	v.SetDefault("breaker.min_requests", 5)
	v.SetDefault("limit.window", 15*time.Minute)
	v.SetDefault("limit.max", 100)
	v.SetDefault("services", map[string]string{
		"auth":         "http://localhost:3001",
		"user":         "http://localhost:3002",
		"post":         "http://localhost:3003",
		"feed":         "http://localhost:3004",
		"notification": "http://localhost:3005",
		"job":          "http://localhost:3007",
		"search":       "http://localhost:3008",
	})
}
