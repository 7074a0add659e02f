package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	goAuthz "github.com/MrEthical07/goAuthz"
)

type appConfig struct {
	Env       string            `mapstructure:"env"`
	HTTP      httpSettings      `mapstructure:"http"`
	Redis     redisSettings     `mapstructure:"redis"`
	Postgres  postgresSettings  `mapstructure:"postgres"`
	Broadcast broadcastSettings `mapstructure:"broadcast"`
	Cache     cacheSettings     `mapstructure:"cache"`
	Session   sessionSettings   `mapstructure:"session"`
	Elevation elevationSettings `mapstructure:"elevation"`
	Metrics   metricsSettings   `mapstructure:"metrics"`
	Audit     auditSettings     `mapstructure:"audit"`
	RolesFile string            `mapstructure:"roles_file"`
}

type httpSettings struct {
	Addr          string `mapstructure:"addr"`
	SessionCookie string `mapstructure:"session_cookie"`
	ForwardedFor  string `mapstructure:"forwarded_for"`
}

type redisSettings struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type postgresSettings struct {
	DSN string `mapstructure:"dsn"`
}

type broadcastSettings struct {
	Transport string        `mapstructure:"transport"`
	Origin    string        `mapstructure:"origin"`
	Channel   string        `mapstructure:"channel"`
	Kafka     kafkaSettings `mapstructure:"kafka"`
}

type kafkaSettings struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

type cacheSettings struct {
	Capacity int           `mapstructure:"capacity"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type sessionSettings struct {
	DefaultTTL     time.Duration `mapstructure:"default_ttl"`
	MaxTTL         time.Duration `mapstructure:"max_ttl"`
	MaxPerActor    int           `mapstructure:"max_per_actor"`
	DetectIPChange bool          `mapstructure:"detect_ip_change"`
}

type elevationSettings struct {
	Enabled bool          `mapstructure:"enabled"`
	Key     string        `mapstructure:"key"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type metricsSettings struct {
	Enabled bool `mapstructure:"enabled"`
	Latency bool `mapstructure:"latency"`
}

type auditSettings struct {
	Enabled bool `mapstructure:"enabled"`
	// JSONFile, when set, also appends events as JSON lines.
	JSONFile string `mapstructure:"json_file"`
}

const (
	transportNone  = "none"
	transportRedis = "redis"
	transportKafka = "kafka"
)

func setDefaults(v *viper.Viper) {
	def := goAuthz.DefaultConfig()

	v.SetDefault("env", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.session_cookie", "")
	v.SetDefault("http.forwarded_for", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("broadcast.transport", transportRedis)
	v.SetDefault("broadcast.origin", "")
	v.SetDefault("broadcast.channel", "")
	v.SetDefault("broadcast.kafka.brokers", []string{})
	v.SetDefault("broadcast.kafka.topic", "")
	v.SetDefault("broadcast.kafka.client_id", "goauthz")
	v.SetDefault("cache.capacity", def.Cache.Capacity)
	v.SetDefault("cache.ttl", def.Cache.TTL)
	v.SetDefault("session.default_ttl", def.Session.DefaultTTL)
	v.SetDefault("session.max_ttl", def.Session.MaxTTL)
	v.SetDefault("session.max_per_actor", def.Session.MaxSessionsPerActor)
	v.SetDefault("session.detect_ip_change", def.DeviceBinding.DetectIPChange)
	v.SetDefault("elevation.enabled", false)
	v.SetDefault("elevation.key", "")
	v.SetDefault("elevation.ttl", def.Elevation.TTL)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.latency", true)
	v.SetDefault("audit.enabled", def.Audit.Enabled)
	v.SetDefault("audit.json_file", "")
	v.SetDefault("roles_file", "")
}

func loadConfig(file string) (*appConfig, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("GOAUTHZ")
	setDefaults(v)
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *appConfig) validate() error {
	switch c.Broadcast.Transport {
	case transportNone:
	case transportRedis:
		if c.Redis.Addr == "" {
			return errors.New("broadcast transport redis requires redis.addr")
		}
	case transportKafka:
		if len(c.Broadcast.Kafka.Brokers) == 0 {
			return errors.New("broadcast transport kafka requires broadcast.kafka.brokers")
		}
	default:
		return fmt.Errorf("unknown broadcast transport %q", c.Broadcast.Transport)
	}
	if c.Elevation.Enabled && len(c.Elevation.Key) < 32 {
		return errors.New("elevation.key must be at least 32 bytes")
	}
	return nil
}

// engineConfig maps the service settings onto the library Config.
func (c *appConfig) engineConfig() goAuthz.Config {
	cfg := goAuthz.DefaultConfig()
	cfg.Cache.Capacity = c.Cache.Capacity
	cfg.Cache.TTL = c.Cache.TTL
	cfg.Session.DefaultTTL = c.Session.DefaultTTL
	cfg.Session.MaxTTL = c.Session.MaxTTL
	cfg.Session.MaxSessionsPerActor = c.Session.MaxPerActor
	cfg.DeviceBinding.DetectIPChange = c.Session.DetectIPChange
	cfg.Broadcast.Origin = c.Broadcast.Origin
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Enabled && c.Metrics.Latency
	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Security.ProductionMode = c.Env == "production"
	if c.Elevation.Enabled {
		cfg.Elevation.Enabled = true
		cfg.Elevation.SigningMethod = "hs256"
		cfg.Elevation.PrivateKey = []byte(c.Elevation.Key)
		cfg.Elevation.TTL = c.Elevation.TTL
	}
	return cfg
}
