package config

import (
	"log"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`

	// Operational region bounds. Position reports outside this box are
	// rejected. Defaults cover the Delhi service area.
	RegionMinLat float64 `mapstructure:"REGION_MIN_LAT"`
	RegionMaxLat float64 `mapstructure:"REGION_MAX_LAT"`
	RegionMinLng float64 `mapstructure:"REGION_MIN_LNG"`
	RegionMaxLng float64 `mapstructure:"REGION_MAX_LNG"`

	// Live feed subscriber buffer; oldest events are dropped when a slow
	// consumer falls this far behind.
	FeedBufferSize int `mapstructure:"FEED_BUFFER_SIZE"`

	// Notification delivery attempts before giving up.
	NotifyMaxAttempts int    `mapstructure:"NOTIFY_MAX_ATTEMPTS"`
	SESSenderAddress  string `mapstructure:"SES_SENDER_ADDRESS"`
	AWSRegion         string `mapstructure:"AWS_REGION"`

	AdminEmail        string `mapstructure:"ADMIN_EMAIL"`
	AdminPasswordHash string `mapstructure:"ADMIN_PASSWORD_HASH"`

	StripeAPIKey string
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REGION_MIN_LAT", 28.4)
	viper.SetDefault("REGION_MAX_LAT", 28.9)
	viper.SetDefault("REGION_MIN_LNG", 76.8)
	viper.SetDefault("REGION_MAX_LNG", 77.4)
	viper.SetDefault("FEED_BUFFER_SIZE", 64)
	viper.SetDefault("NOTIFY_MAX_ATTEMPTS", 3)

	err := viper.ReadInConfig()
	if err != nil {
		// A missing .env file is fine; everything can come from the environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No .env file found.")
		} else {
			return nil, err
		}
	}

	var cfg Config
	err = viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")

	return &cfg, nil
}
