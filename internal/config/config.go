package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	Port        string `mapstructure:"port"`
	PublicURL   string `mapstructure:"public_url"`

	// Token signing
	JWTSecret string `mapstructure:"jwt_secret"`

	// Document file storage root; files live under {data_dir}/{org_id}/
	DataDir string `mapstructure:"data_dir"`

	// Document analysis
	Analysis AnalysisConfig `mapstructure:"analysis"`
}

type AnalysisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	QueueName    string `mapstructure:"queue_name"`
	PollSeconds  int    `mapstructure:"poll_seconds"`
	MaxTags      int    `mapstructure:"max_tags"`
	SummaryLines int    `mapstructure:"summary_lines"`
}

// App holds the global config instance
var App Config

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// Auto-load .env file if present so 'go run' works without manually
	// exporting env vars. Missing .env is fine in Docker/production.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	v := viper.New()

	// Defaults
	v.SetDefault("port", "8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("analysis.enabled", true)
	v.SetDefault("analysis.queue_name", "document_analysis_queue")
	v.SetDefault("analysis.poll_seconds", 5)
	v.SetDefault("analysis.max_tags", 5)
	v.SetDefault("analysis.summary_lines", 3)

	// Config file settings
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("dev.config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("docvault")

	// Bind standard environment variables (Docker/deploy compatibility)
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("public_url", "PUBLIC_URL")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("data_dir", "DATA_DIR")

	_ = v.BindEnv("analysis.enabled", "ANALYSIS_ENABLED")
	_ = v.BindEnv("analysis.queue_name", "ANALYSIS_QUEUE_NAME")
	_ = v.BindEnv("analysis.poll_seconds", "ANALYSIS_POLL_SECONDS")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and environment variables")
		} else {
			return err
		}
	} else {
		log.Printf("Loaded config from: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&App); err != nil {
		return err
	}

	// Backfill environment variables for code that still uses os.Getenv()
	setEnvIfEmpty("DATABASE_URL", App.DatabaseURL)
	setEnvIfEmpty("REDIS_URL", App.RedisURL)
	setEnvIfEmpty("PORT", App.Port)
	setEnvIfEmpty("JWT_SECRET", App.JWTSecret)
	setEnvIfEmpty("DATA_DIR", App.DataDir)

	return nil
}

func setEnvIfEmpty(key, value string) {
	if value != "" && os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}
