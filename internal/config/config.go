/**
 * @description
 * This package handles the configuration management for the facepay-service. It uses the
 * Viper library to read configuration from environment variables (and an optional .env file),
 * providing a centralized place for key material, thresholds and infrastructure URLs.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 * - github.com/shopspring/decimal: parses whole-currency limits into minor units.
 */

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	defaultVerifyKeyPrefix    = "facepay:verify_failures"
	defaultFaceMatchThreshold = 0.55
	defaultFacePayLimitMinor  = int64(500000)
	defaultSessionTTLMinutes  = 15
	defaultEmbeddingDimension = 768
	defaultJWTTTLHours        = 168
	defaultVerifyMaxFailures  = 5
	defaultVerifyWindowMins   = 15
	defaultLedgerAuditSpec    = "*/30 * * * *"
)

// ErrMissingKeyMaterial is returned by Validate when any envelope key is absent.
var ErrMissingKeyMaterial = errors.New("missing key material")

// Config holds all the configuration variables for the facepay-service.
type Config struct {
	ServerPort               string  `mapstructure:"SERVER_PORT"`
	DatabaseURL              string  `mapstructure:"DATABASE_URL"`
	RedisURL                 string  `mapstructure:"REDIS_URL"`
	RedisVerifyKeyPrefix     string  `mapstructure:"REDIS_VERIFY_KEY_PREFIX"`
	RabbitMQURL              string  `mapstructure:"RABBITMQ_URL"`
	RepudiationEventQueue    string  `mapstructure:"REPUDIATION_EVENT_QUEUE"`
	EmbeddingServiceURL      string  `mapstructure:"EMBEDDING_SERVICE_URL"`
	EmbeddingServiceAPIKey   string  `mapstructure:"EMBEDDING_SERVICE_API_KEY"`
	EmbeddingDimension       int     `mapstructure:"EMBEDDING_DIMENSION"`
	AESKeyBase64             string  `mapstructure:"AES_KEY_BASE64"`
	RSAPrivateKeyBase64      string  `mapstructure:"RSA_PRIVATE_KEY_BASE64"`
	RSAPublicKeyBase64       string  `mapstructure:"RSA_PUBLIC_KEY_BASE64"`
	JWTSecret                string  `mapstructure:"JWT_SECRET"`
	JWTTTLHours              int     `mapstructure:"JWT_TTL_HOURS"`
	FaceMatchThreshold       float64 `mapstructure:"FACE_MATCH_THRESHOLD"`
	FacePayDefaultLimitMinor int64   `mapstructure:"FACEPAY_DEFAULT_LIMIT_MINOR"`
	SessionTTLMinutes        int     `mapstructure:"SESSION_TTL_MINUTES"`
	VerifyMaxFailures        int     `mapstructure:"VERIFY_MAX_FAILURES"`
	VerifyWindowMinutes      int     `mapstructure:"VERIFY_FAILURE_WINDOW_MINUTES"`
	LedgerAuditSchedule      string  `mapstructure:"LEDGER_AUDIT_SCHEDULE"`
	FrontendURL              string  `mapstructure:"FRONTEND_URL"`
}

// SessionTTL returns the payment session lifetime.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// JWTTTL returns the lifetime of issued login tokens.
func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLHours) * time.Hour
}

// VerifyFailureWindow returns how long failed verifications count against a vendor and customer.
func (c Config) VerifyFailureWindow() time.Duration {
	return time.Duration(c.VerifyWindowMinutes) * time.Minute
}

// Validate reports configuration the service cannot start without.
func (c Config) Validate() error {
	var missing []string
	if c.AESKeyBase64 == "" {
		missing = append(missing, "AES_KEY_BASE64")
	}
	if c.RSAPrivateKeyBase64 == "" {
		missing = append(missing, "RSA_PRIVATE_KEY_BASE64")
	}
	if c.RSAPublicKeyBase64 == "" {
		missing = append(missing, "RSA_PUBLIC_KEY_BASE64")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingKeyMaterial, strings.Join(missing, ", "))
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

// LoadConfig reads configuration from environment variables from the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REPUDIATION_EVENT_QUEUE", "facepay_service.repudiation_reports")
	viper.SetDefault("REDIS_VERIFY_KEY_PREFIX", defaultVerifyKeyPrefix)
	viper.SetDefault("EMBEDDING_DIMENSION", defaultEmbeddingDimension)
	viper.SetDefault("JWT_TTL_HOURS", defaultJWTTTLHours)
	viper.SetDefault("FACE_MATCH_THRESHOLD", defaultFaceMatchThreshold)
	viper.SetDefault("FACEPAY_DEFAULT_LIMIT_MINOR", defaultFacePayLimitMinor)
	viper.SetDefault("SESSION_TTL_MINUTES", defaultSessionTTLMinutes)
	viper.SetDefault("VERIFY_MAX_FAILURES", defaultVerifyMaxFailures)
	viper.SetDefault("VERIFY_FAILURE_WINDOW_MINUTES", defaultVerifyWindowMins)
	viper.SetDefault("LEDGER_AUDIT_SCHEDULE", defaultLedgerAuditSpec)
	viper.SetDefault("FRONTEND_URL", "http://localhost:3000")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "FACEPAY_REDIS_URL")
	_ = viper.BindEnv("REDIS_VERIFY_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REPUDIATION_EVENT_QUEUE")
	_ = viper.BindEnv("EMBEDDING_SERVICE_URL")
	_ = viper.BindEnv("EMBEDDING_SERVICE_API_KEY")
	_ = viper.BindEnv("EMBEDDING_DIMENSION")
	_ = viper.BindEnv("AES_KEY_BASE64", "AES_KEY_BASE64", "AES_KEY")
	_ = viper.BindEnv("RSA_PRIVATE_KEY_BASE64")
	_ = viper.BindEnv("RSA_PUBLIC_KEY_BASE64")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "JWT_SECRET_KEY")
	_ = viper.BindEnv("JWT_TTL_HOURS")
	_ = viper.BindEnv("FACE_MATCH_THRESHOLD")
	_ = viper.BindEnv("FACEPAY_DEFAULT_LIMIT_MINOR")
	_ = viper.BindEnv("FACEPAY_DEFAULT_LIMIT")
	_ = viper.BindEnv("SESSION_TTL_MINUTES")
	_ = viper.BindEnv("VERIFY_MAX_FAILURES")
	_ = viper.BindEnv("VERIFY_FAILURE_WINDOW_MINUTES")
	_ = viper.BindEnv("LEDGER_AUDIT_SCHEDULE")
	_ = viper.BindEnv("FRONTEND_URL")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisVerifyKeyPrefix = strings.TrimSpace(config.RedisVerifyKeyPrefix)
	if config.RedisVerifyKeyPrefix == "" {
		config.RedisVerifyKeyPrefix = defaultVerifyKeyPrefix
	}
	config.AESKeyBase64 = strings.TrimSpace(config.AESKeyBase64)
	config.RSAPrivateKeyBase64 = strings.TrimSpace(config.RSAPrivateKeyBase64)
	config.RSAPublicKeyBase64 = strings.TrimSpace(config.RSAPublicKeyBase64)
	config.FrontendURL = strings.TrimRight(strings.TrimSpace(config.FrontendURL), "/")

	// FACEPAY_DEFAULT_LIMIT is expressed in whole currency units and wins over the minor-unit key.
	if viper.IsSet("FACEPAY_DEFAULT_LIMIT") {
		limitStr := strings.TrimSpace(viper.GetString("FACEPAY_DEFAULT_LIMIT"))
		if limitStr != "" {
			limit, parseErr := decimal.NewFromString(limitStr)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid FACEPAY_DEFAULT_LIMIT\" value=%q err=%v", limitStr, parseErr)
			} else {
				config.FacePayDefaultLimitMinor = limit.Shift(2).Round(0).IntPart()
			}
		}
	}
	if config.FacePayDefaultLimitMinor <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive facepay limit configured; using default\" limit_minor=%d", config.FacePayDefaultLimitMinor)
		config.FacePayDefaultLimitMinor = defaultFacePayLimitMinor
	}

	if config.FaceMatchThreshold <= 0 || config.FaceMatchThreshold > 1 {
		log.Printf("level=warn component=config msg=\"face match threshold out of range; using default\" threshold=%f", config.FaceMatchThreshold)
		config.FaceMatchThreshold = defaultFaceMatchThreshold
	}
	if config.SessionTTLMinutes <= 0 {
		config.SessionTTLMinutes = defaultSessionTTLMinutes
	}
	if config.EmbeddingDimension <= 0 {
		config.EmbeddingDimension = defaultEmbeddingDimension
	}
	if config.JWTTTLHours <= 0 {
		config.JWTTTLHours = defaultJWTTTLHours
	}
	// Zero turns the verification limiter off.
	if config.VerifyMaxFailures < 0 {
		config.VerifyMaxFailures = defaultVerifyMaxFailures
	}
	if config.VerifyWindowMinutes <= 0 {
		config.VerifyWindowMinutes = defaultVerifyWindowMins
	}
	if strings.TrimSpace(config.LedgerAuditSchedule) == "" {
		config.LedgerAuditSchedule = defaultLedgerAuditSpec
	}

	return
}
