package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PRICEFEED"

var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	SFTP     SFTPConfig     `mapstructure:"sftp"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	CSV      CSVConfig      `mapstructure:"csv"`
	Log      LogConfig      `mapstructure:"log"`
	Markets  []MarketConfig `mapstructure:"markets"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SFTPConfig holds the market-data provider connection. Credentials are
// expected from the environment, not from the committed config file.
type SFTPConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	KnownHostsPath string        `mapstructure:"known_hosts_path"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxFileBytes   int64         `mapstructure:"max_file_bytes"`
}

type ScheduleConfig struct {
	Cron       string `mapstructure:"cron"`
	Timezone   string `mapstructure:"timezone"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

type SnapshotConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type CSVConfig struct {
	DeliveryDayColumn string `mapstructure:"delivery_day_column"`
	HourColumnPattern string `mapstructure:"hour_column_pattern"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MarketConfig struct {
	Name       string `mapstructure:"name"`
	RemotePath string `mapstructure:"remote_path"`
	Collection string `mapstructure:"collection"`
}

// Load reads the config file at path, then applies .env and PRICEFEED_*
// environment overrides. A missing file is not an error; everything can come
// from the environment.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, fmt.Errorf("config path is empty")
	}

	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("sftp.port", 22)
	v.SetDefault("sftp.timeout", "30s")
	v.SetDefault("sftp.max_file_bytes", 32<<20)
	v.SetDefault("schedule.cron", "0 14 * * *")
	v.SetDefault("schedule.timezone", "Europe/Berlin")
	v.SetDefault("schedule.run_on_start", true)
	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.dir", "data/snapshots")
	v.SetDefault("csv.delivery_day_column", "Delivery day")
	v.SetDefault("csv.hour_column_pattern", `(?i)^hour\s*\d+[a-z]?$`)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are invisible to AutomaticEnv during Unmarshal.
	for _, key := range []string{
		"database.dsn",
		"sftp.host",
		"sftp.username",
		"sftp.password",
		"sftp.known_hosts_path",
	} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Markets) == 0 {
		cfg.Markets = []MarketConfig{
			{Name: "germany", RemotePath: "/prices/germany/auction_spot_prices_germany_luxembourg.csv", Collection: "germany_prices"},
			{Name: "austria", RemotePath: "/prices/austria/auction_spot_prices_austria.csv", Collection: "austria_prices"},
		}
	}

	for i := range cfg.Markets {
		cfg.Markets[i].Name = strings.ToLower(strings.TrimSpace(cfg.Markets[i].Name))
		if cfg.Markets[i].Collection == "" && cfg.Markets[i].Name != "" {
			cfg.Markets[i].Collection = cfg.Markets[i].Name + "_prices"
		}
	}
}

func (c Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.SFTP.Host == "" {
		return fmt.Errorf("sftp.host is required")
	}
	if c.SFTP.Username == "" {
		return fmt.Errorf("sftp.username is required")
	}
	if c.SFTP.Port <= 0 || c.SFTP.Port > 65535 {
		return fmt.Errorf("sftp.port is out of range: %d", c.SFTP.Port)
	}
	if c.SFTP.Timeout <= 0 {
		return fmt.Errorf("sftp.timeout must be positive")
	}
	if c.SFTP.MaxFileBytes <= 0 {
		return fmt.Errorf("sftp.max_file_bytes must be positive")
	}
	if c.Schedule.Cron == "" {
		return fmt.Errorf("schedule.cron is required")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if c.Snapshot.Enabled && c.Snapshot.Dir == "" {
		return fmt.Errorf("snapshot.dir is required when snapshots are enabled")
	}
	if _, err := regexp.Compile(c.CSV.HourColumnPattern); err != nil {
		return fmt.Errorf("csv.hour_column_pattern: %w", err)
	}

	names := make(map[string]bool, len(c.Markets))
	collections := make(map[string]bool, len(c.Markets))
	for i, market := range c.Markets {
		if market.Name == "" {
			return fmt.Errorf("markets[%d].name is required", i)
		}
		if market.RemotePath == "" {
			return fmt.Errorf("markets[%d].remote_path is required", i)
		}
		if !collectionPattern.MatchString(market.Collection) {
			return fmt.Errorf("markets[%d].collection is not a valid table name: %q", i, market.Collection)
		}
		if names[market.Name] {
			return fmt.Errorf("market %q is configured twice", market.Name)
		}
		if collections[market.Collection] {
			return fmt.Errorf("collection %q is used by more than one market", market.Collection)
		}
		names[market.Name] = true
		collections[market.Collection] = true
	}

	return nil
}
