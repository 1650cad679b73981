/**
 * @description
 * This file handles configuration management for the keygate backend.
 * It loads settings from environment variables, providing defaults for
 * schedules, usage plan names, and rate limits.
 */
package config

import (
	"github.com/spf13/viper"
)

// Config holds all configuration shared by the api, worker, and scheduler binaries.
type Config struct {
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	GatewayAPIBaseURL string `mapstructure:"GATEWAY_API_BASE_URL"`
	GatewayAPIKey     string `mapstructure:"GATEWAY_API_KEY"`
	AuthAPIBaseURL    string `mapstructure:"AUTH_API_BASE_URL"`
	AuthAPIKey        string `mapstructure:"AUTH_API_KEY"`

	FreeUsagePlanName string `mapstructure:"FREE_USAGE_PLAN_NAME"`
	PaidUsagePlanName string `mapstructure:"PAID_USAGE_PLAN_NAME"`

	BillingJobSchedule string `mapstructure:"BILLING_JOB_SCHEDULE"`

	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("BILLING_JOB_SCHEDULE", "0 0 * * *") // Daily at midnight.
	viper.SetDefault("FREE_USAGE_PLAN_NAME", "free")
	viper.SetDefault("PAID_USAGE_PLAN_NAME", "paid")
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("GATEWAY_API_BASE_URL")
	_ = viper.BindEnv("GATEWAY_API_KEY")
	_ = viper.BindEnv("AUTH_API_BASE_URL")
	_ = viper.BindEnv("AUTH_API_KEY")
	_ = viper.BindEnv("FREE_USAGE_PLAN_NAME")
	_ = viper.BindEnv("PAID_USAGE_PLAN_NAME")
	_ = viper.BindEnv("BILLING_JOB_SCHEDULE")
	_ = viper.BindEnv("RATE_LIMIT_PER_MINUTE")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
