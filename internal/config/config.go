package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Market   MarketConfig
}

// ServerConfig defines the HTTP listener settings.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// RedisConfig defines the price history cache settings.
type RedisConfig struct {
	Addr string
	DB   int
}

// MarketConfig defines the pricing and reservation parameters.
type MarketConfig struct {
	TickSeconds        int     `mapstructure:"tick_seconds"`
	ChaoticTickSeconds int     `mapstructure:"chaotic_tick_seconds"`
	LockTTLSeconds     int     `mapstructure:"lock_ttl_seconds"`
	Decay              float64 `mapstructure:"decay"`
	SensitivityK       float64 `mapstructure:"sensitivity_k"`
	HistoryTTLMinutes  int     `mapstructure:"history_ttl_minutes"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("market.tick_seconds", 3)
	viper.SetDefault("market.chaotic_tick_seconds", 3)
	viper.SetDefault("market.lock_ttl_seconds", 15)
	viper.SetDefault("market.decay", 0.95)
	viper.SetDefault("market.sensitivity_k", 0.02)
	viper.SetDefault("market.history_ttl_minutes", 5)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
