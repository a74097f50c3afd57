/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the wallet bot.
// These values are loaded from environment variables.
type Config struct {
	ServerPort        string `mapstructure:"SERVER_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	RedisURL          string `mapstructure:"REDIS_URL"`
	TicketStorePrefix string `mapstructure:"TICKET_STORE_PREFIX"`
	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	NotifierQueue     string `mapstructure:"NOTIFIER_QUEUE"`
	ChatAPIBaseURL    string `mapstructure:"CHAT_API_BASE_URL"`
	BotToken          string `mapstructure:"BOT_TOKEN"`
	WebhookSecret     string `mapstructure:"WEBHOOK_SECRET"`
	WebhookPublicURL  string `mapstructure:"WEBHOOK_PUBLIC_URL"`
	RailAPIBaseURL    string `mapstructure:"RAIL_API_BASE_URL"`
	RailAPIKey        string `mapstructure:"RAIL_API_KEY"`
	TicketTTLMinutes  int    `mapstructure:"TICKET_TTL_MINUTES"`
	SweepSchedule     string `mapstructure:"SWEEP_SCHEDULE"`
	DeepLinkBaseURL   string `mapstructure:"DEEP_LINK_BASE_URL"`
	HistoryLimit      int    `mapstructure:"HISTORY_LIMIT"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("TICKET_STORE_PREFIX", "walletbot:tickets")
	viper.SetDefault("NOTIFIER_QUEUE", "walletbot.notices")
	viper.SetDefault("TICKET_TTL_MINUTES", 15)
	viper.SetDefault("SWEEP_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("HISTORY_LIMIT", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("TICKET_STORE_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("NOTIFIER_QUEUE")
	_ = viper.BindEnv("CHAT_API_BASE_URL")
	_ = viper.BindEnv("BOT_TOKEN")
	_ = viper.BindEnv("WEBHOOK_SECRET")
	_ = viper.BindEnv("WEBHOOK_PUBLIC_URL")
	_ = viper.BindEnv("RAIL_API_BASE_URL")
	_ = viper.BindEnv("RAIL_API_KEY")
	_ = viper.BindEnv("TICKET_TTL_MINUTES")
	_ = viper.BindEnv("SWEEP_SCHEDULE")
	_ = viper.BindEnv("DEEP_LINK_BASE_URL")
	_ = viper.BindEnv("HISTORY_LIMIT")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Platform-assigned port wins over the configured one.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.TicketStorePrefix = strings.TrimSpace(config.TicketStorePrefix)
	if config.TicketStorePrefix == "" {
		config.TicketStorePrefix = "walletbot:tickets"
	}
	if config.TicketTTLMinutes <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive ticket TTL configured; using default\" ttl_minutes=%d", config.TicketTTLMinutes)
		config.TicketTTLMinutes = 15
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 10
	}
	if strings.TrimSpace(config.SweepSchedule) == "" {
		config.SweepSchedule = "*/5 * * * *"
	}

	return
}
