package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	Log struct {
		Level string
	} `mapstructure:"log"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	GRPC struct {
		Addr string
	} `mapstructure:"grpc"`

	Store struct {
		Driver string
		Prefix string
	} `mapstructure:"store"`

	Redis struct {
		Addr     string
		Password string
		DB       int
	} `mapstructure:"redis"`

	MySQL struct {
		DSN string
	} `mapstructure:"mysql"`

	Sync struct {
		Workers         int
		QueueSize       int           `mapstructure:"queue_size"`
		SettleDelay     time.Duration `mapstructure:"settle_delay"`
		Timeout         time.Duration
		MaxTransactions int    `mapstructure:"max_transactions"`
		RemoteOverride  string `mapstructure:"remote_override"`
	} `mapstructure:"sync"`

	Ledger struct {
		StrictItemRefs bool `mapstructure:"strict_item_refs"`
	} `mapstructure:"ledger"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	Mirror struct {
		Addr     string
		Workbook string
	} `mapstructure:"mirror"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

var keys = map[string]any{
	"app.env":                 "production",
	"log.level":               "info",
	"http.addr":               ":8080",
	"grpc.addr":               ":50051",
	"store.driver":            "redis",
	"store.prefix":            "labstock:v3:",
	"redis.addr":              "localhost:6379",
	"redis.password":          "",
	"redis.db":                0,
	"mysql.dsn":               "root:root@tcp(localhost:3306)/labstock?parseTime=true",
	"sync.workers":            2,
	"sync.queue_size":         256,
	"sync.settle_delay":       "1500ms",
	"sync.timeout":            "15s",
	"sync.max_transactions":   800,
	"sync.remote_override":    "",
	"ledger.strict_item_refs": false,
	"auth.jwt_secret":         "",
	"auth.token_ttl":          "24h",
	"mirror.addr":             ":8090",
	"mirror.workbook":         "mirror.xlsx",
	"metrics.enabled":         true,
}

// Load reads an optional .env file, then the optional YAML file at path,
// then environment variables. HTTP_ADDR overrides http.addr, and so on.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range keys {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, c.validate()
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "redis", "mysql":
	default:
		return fmt.Errorf("store.driver must be redis or mysql, got %q", c.Store.Driver)
	}
	if c.Sync.Workers <= 0 || c.Sync.QueueSize <= 0 {
		return errors.New("sync.workers and sync.queue_size must be positive")
	}
	if c.Sync.MaxTransactions <= 0 {
		return errors.New("sync.max_transactions must be positive")
	}
	return nil
}
