package config

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Default coordinate used when neither the session nor the device can
// provide one (Cairo).
const (
	DefaultLatitude  = 30.0444
	DefaultLongitude = 31.2357
)

// Config represents the overall application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Cache     CacheConfig     `yaml:"cache"`
	KeyStore  KeyStoreConfig  `yaml:"keystore"`
	Remote    RemoteConfig    `yaml:"remote"`
	Push      PushConfig      `yaml:"push"`
	Sync      SyncConfig      `yaml:"sync"`
	Location  LocationConfig  `yaml:"location"`
	Reminders RemindersConfig `yaml:"reminders"`
	Server    ServerConfig    `yaml:"server"`
	WebPush   WebPushConfig   `yaml:"webpush"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// CacheConfig holds the local cache database settings.
type CacheConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// KeyStoreConfig selects where session keys and reminder markers live.
type KeyStoreConfig struct {
	Driver        string `yaml:"driver"` // "memory" or "redis"
	RedisAddress  string `yaml:"redis_address"`
	RedisUsername string `yaml:"redis_username"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// RemoteConfig describes the remote service.
type RemoteConfig struct {
	BaseURL         string            `yaml:"base_url"`
	Headers         map[string]string `yaml:"headers"`
	TimeoutSeconds  int               `yaml:"timeout_seconds"`
	Timeout         time.Duration     `yaml:"-"`
	RateLimitPerSec float64           `yaml:"rate_limit_per_sec"`
	Burst           int               `yaml:"burst"`
}

// PushConfig holds the push channel endpoint.
type PushConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// SyncConfig holds the two timer intervals of the reconciler.
type SyncConfig struct {
	IntervalSeconds      int           `yaml:"interval_seconds"`
	Interval             time.Duration `yaml:"-"`
	AlertIntervalSeconds int           `yaml:"alert_interval_seconds"`
	AlertInterval        time.Duration `yaml:"-"`
}

// LocationConfig holds the fallback coordinate and the wall-clock zone.
type LocationConfig struct {
	DefaultLat float64        `yaml:"default_lat"`
	DefaultLng float64        `yaml:"default_lng"`
	DeviceLat  *float64       `yaml:"device_lat"`
	DeviceLng  *float64       `yaml:"device_lng"`
	Timezone   string         `yaml:"timezone"`
	Zone       *time.Location `yaml:"-"`
}

// RemindersConfig holds the devotional reminder hour windows, [start, end).
type RemindersConfig struct {
	MorningStartHour int `yaml:"morning_start_hour"`
	MorningEndHour   int `yaml:"morning_end_hour"`
	EveningStartHour int `yaml:"evening_start_hour"`
	EveningEndHour   int `yaml:"evening_end_hour"`
}

// ServerConfig holds the local state API settings.
type ServerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Port            int      `yaml:"port"`
	AllowOrigins    []string `yaml:"allow_origins"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	Burst           int      `yaml:"burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
}

// WebPushConfig holds the VAPID keys used to relay notifications.
type WebPushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
	Workers    int    `yaml:"workers"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills every unset field with its default value.
func (cfg *Config) ApplyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = "sqlite"
	}
	if cfg.Cache.DSN == "" && cfg.Cache.Driver == "sqlite" {
		cfg.Cache.DSN = "ummah-cache.db"
	}
	if cfg.KeyStore.Driver == "" {
		cfg.KeyStore.Driver = "memory"
	}

	if cfg.Remote.TimeoutSeconds <= 0 {
		cfg.Remote.TimeoutSeconds = 15
	}
	cfg.Remote.Timeout = time.Duration(cfg.Remote.TimeoutSeconds) * time.Second
	if cfg.Remote.RateLimitPerSec <= 0 {
		cfg.Remote.RateLimitPerSec = 5
	}
	if cfg.Remote.Burst <= 0 {
		cfg.Remote.Burst = 4
	}

	if cfg.Push.TopicPrefix == "" {
		cfg.Push.TopicPrefix = "ummah"
	}

	if cfg.Sync.IntervalSeconds <= 0 {
		cfg.Sync.IntervalSeconds = 30
	}
	cfg.Sync.Interval = time.Duration(cfg.Sync.IntervalSeconds) * time.Second
	if cfg.Sync.AlertIntervalSeconds <= 0 {
		cfg.Sync.AlertIntervalSeconds = 30
	}
	cfg.Sync.AlertInterval = time.Duration(cfg.Sync.AlertIntervalSeconds) * time.Second

	if cfg.Location.DefaultLat == 0 && cfg.Location.DefaultLng == 0 {
		cfg.Location.DefaultLat = DefaultLatitude
		cfg.Location.DefaultLng = DefaultLongitude
	}
	cfg.Location.Zone = time.Local
	if cfg.Location.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Location.Timezone)
		if err != nil {
			log.Warn().Err(err).Str("timezone", cfg.Location.Timezone).Msg("unknown timezone; using local time")
		} else {
			cfg.Location.Zone = loc
		}
	}

	r := &cfg.Reminders
	if r.MorningStartHour == 0 && r.MorningEndHour == 0 {
		r.MorningStartHour, r.MorningEndHour = 5, 10
	}
	if r.EveningStartHour == 0 && r.EveningEndHour == 0 {
		r.EveningStartHour, r.EveningEndHour = 16, 20
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.Burst <= 0 {
		cfg.Server.Burst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.WebPush.TTL <= 0 {
		cfg.WebPush.TTL = 3600
	}
	if cfg.WebPush.Workers <= 0 {
		log.Debug().Msg("webpush.workers is not set or invalid; defaulting to 1")
		cfg.WebPush.Workers = 1
	}
}
