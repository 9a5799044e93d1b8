package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	APIBaseURL        string `mapstructure:"API_BASE_URL"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	HTTPTimeoutSecs   int    `mapstructure:"HTTP_TIMEOUT_SECS"`
	MaxRequestsPerSec int    `mapstructure:"MAX_REQUESTS_PER_SEC"`

	// Credential persistence.
	CredentialsFile string `mapstructure:"CREDENTIALS_FILE"`

	// Redis configuration (booking list cache).
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`

	// Payment providers.
	StripeKey          string  `mapstructure:"STRIPE_KEY"`
	WalletDisplayRate  float64 `mapstructure:"WALLET_DISPLAY_RATE"`
	ReturnListenerPort string  `mapstructure:"RETURN_LISTENER_PORT"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("API_BASE_URL", "http://127.0.0.1:8000/api")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_TIMEOUT_SECS", 30)
	viper.SetDefault("MAX_REQUESTS_PER_SEC", 10)
	viper.SetDefault("CREDENTIALS_FILE", ".estately/credentials.json")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("STRIPE_KEY", "")
	// Display-only conversion for the wallet rail (~$1 = 110 local currency).
	viper.SetDefault("WALLET_DISPLAY_RATE", 110.0)
	viper.SetDefault("RETURN_LISTENER_PORT", "8844")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
