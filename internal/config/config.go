package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Notifier NotifierConfig
	Auth     AuthConfig
	Catalog  CatalogConfig
	Sales    SalesConfig
	Reports  ReportsConfig
	Log      LogConfig
}

type AppConfig struct {
	Name string
	Env  string
}

type HTTPConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

type StoreConfig struct {
	Driver string // memory | postgres
}

type DatabaseConfig struct {
	DSN      string
	MaxConns int32
}

// RedisConfig with an empty Addr disables every Redis-backed feature.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig with no brokers disables event publishing.
type KafkaConfig struct {
	Brokers    []string
	SaleTopic  string
	AlertTopic string
}

type NotifierConfig struct {
	Group   string
	Workers int
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	// Users seeds the static directory behind GET /users, as id:name:role.
	Users []string
}

type CatalogConfig struct {
	DefaultLowStockThreshold int
}

type SalesConfig struct {
	TaxRate             decimal.Decimal
	InvoicePrefix       string
	InvoiceAttempts     int
	ReserveAttempts     int
	CompensationTimeout time.Duration
}

type ReportsConfig struct {
	MarginFraction decimal.Decimal
	Location       *time.Location
	CacheTTL       time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

// Load reads config.toml (optional) and POS_* environment variables, the
// latter winning, then applies defaults and validates.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pos-ledger")
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	v.SetEnvPrefix("POS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	taxRate, err := decimal.NewFromString(v.GetString("sales.tax_rate"))
	if err != nil {
		return nil, fmt.Errorf("sales.tax_rate: %w", err)
	}
	margin, err := decimal.NewFromString(v.GetString("reports.margin_fraction"))
	if err != nil {
		return nil, fmt.Errorf("reports.margin_fraction: %w", err)
	}
	loc, err := time.LoadLocation(v.GetString("reports.location"))
	if err != nil {
		return nil, fmt.Errorf("reports.location: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		HTTP: HTTPConfig{
			Addr:           v.GetString("http.addr"),
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			RequestTimeout: v.GetDuration("http.request_timeout"),
		},
		Store: StoreConfig{Driver: strings.ToLower(v.GetString("store.driver"))},
		Database: DatabaseConfig{
			DSN:      v.GetString("database.dsn"),
			MaxConns: v.GetInt32("database.max_conns"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Brokers:    stringList(v, "kafka.brokers"),
			SaleTopic:  v.GetString("kafka.sale_topic"),
			AlertTopic: v.GetString("kafka.alert_topic"),
		},
		Notifier: NotifierConfig{
			Group:   v.GetString("notifier.group"),
			Workers: v.GetInt("notifier.workers"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
			Users:     stringList(v, "auth.users"),
		},
		Catalog: CatalogConfig{
			DefaultLowStockThreshold: v.GetInt("catalog.default_low_stock_threshold"),
		},
		Sales: SalesConfig{
			TaxRate:             taxRate,
			InvoicePrefix:       v.GetString("sales.invoice_prefix"),
			InvoiceAttempts:     v.GetInt("sales.invoice_attempts"),
			ReserveAttempts:     v.GetInt("sales.reserve_attempts"),
			CompensationTimeout: v.GetDuration("sales.compensation_timeout"),
		},
		Reports: ReportsConfig{
			MarginFraction: margin,
			Location:       loc,
			CacheTTL:       v.GetDuration("reports.cache_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pos-ledger")
	v.SetDefault("app.env", "development")
	v.SetDefault("http.addr", ":8081")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.request_timeout", 5*time.Second)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("redis.addr", "")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.sale_topic", "pos.sale.recorded")
	v.SetDefault("kafka.alert_topic", "pos.stock.alerts")
	v.SetDefault("notifier.group", "pos-notifier")
	v.SetDefault("notifier.workers", 4)
	v.SetDefault("auth.issuer", "pos-ledger")
	v.SetDefault("catalog.default_low_stock_threshold", 10)
	v.SetDefault("sales.tax_rate", "0")
	v.SetDefault("sales.invoice_prefix", "INV")
	v.SetDefault("sales.invoice_attempts", 5)
	v.SetDefault("sales.reserve_attempts", 3)
	v.SetDefault("sales.compensation_timeout", 30*time.Second)
	v.SetDefault("reports.margin_fraction", "0.30")
	v.SetDefault("reports.location", "UTC")
	v.SetDefault("reports.cache_ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("store.driver must be memory or postgres, got %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Database.DSN == "" {
		return errors.New("database.dsn is required for the postgres store")
	}
	if c.Sales.TaxRate.IsNegative() {
		return errors.New("sales.tax_rate must not be negative")
	}
	if c.Reports.MarginFraction.IsNegative() || c.Reports.MarginFraction.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("reports.margin_fraction must be within [0, 1]")
	}
	if c.Catalog.DefaultLowStockThreshold < 0 {
		return errors.New("catalog.default_low_stock_threshold must not be negative")
	}
	return nil
}

// ValidateAPI checks what only the HTTP API needs on top of validate.
func (c *Config) ValidateAPI() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	return nil
}

// stringList accepts both a TOML array and a comma separated env value.
func stringList(v *viper.Viper, key string) []string {
	if s, ok := v.Get(key).(string); ok {
		return splitCSV(s)
	}
	return v.GetStringSlice(key)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
