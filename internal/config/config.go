package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	AppMode  string
	Port     string
	Database DatabaseConfig
	JWT      JWTConfig
	Mpesa    MpesaConfig
	Loan     LoanConfig
	SMS      SMSConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	RefreshSecret    string
	AccessTokenMins  int
	RefreshTokenDays int
}

// MpesaConfig holds Daraja API credentials.
// Push payments (STK) and B2C disbursements use separate credential
// classes and must not share authorization material.
type MpesaConfig struct {
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string
	Passkey            string
	InitiatorName      string
	SecurityCredential string
	B2CShortCode       string
	CallbackBaseURL    string
}

// LoanConfig holds loan policy configuration
type LoanConfig struct {
	// EligibilityMultiplier scales total paid contributions into the
	// maximum loanable amount.
	EligibilityMultiplier float64
}

// SMSConfig holds the notification gateway configuration
type SMSConfig struct {
	APIURL   string
	APIKey   string
	SenderID string
}

// Global config instance
var AppConfig *Config

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	multiplier, err := strconv.ParseFloat(getEnv("LOAN_ELIGIBILITY_MULTIPLIER", "3"), 64)
	if err != nil || multiplier <= 0 {
		return nil, fmt.Errorf("invalid LOAN_ELIGIBILITY_MULTIPLIER: %s", getEnv("LOAN_ELIGIBILITY_MULTIPLIER", "3"))
	}

	config := &Config{
		AppMode:  appMode,
		Port:     getEnv("PORT", "3000"),
		Database: loadDatabaseConfig(),
		JWT:      loadJWTConfig(),
		Mpesa:    loadMpesaConfig(),
		Loan:     LoanConfig{EligibilityMultiplier: multiplier},
		SMS: SMSConfig{
			APIURL:   getEnv("SMS_API_URL", ""),
			APIKey:   getEnv("SMS_API_KEY", ""),
			SenderID: getEnv("SMS_SENDER_ID", "CHAMAPESA"),
		},
	}

	AppConfig = config

	log.Printf("Configuration loaded [MODE: %s]", appMode)
	return config, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "3306"),
		User:     getEnv("DB_USER", "root"),
		Password: getEnv("DB_PASS", ""),
		DBName:   getEnv("DB_NAME", "chamapesa"),
	}
}

func loadJWTConfig() JWTConfig {
	accessMins, _ := strconv.Atoi(getEnv("ACCESS_TOKEN_MINUTES", "15"))
	refreshDays, _ := strconv.Atoi(getEnv("REFRESH_TOKEN_DAYS", "7"))

	return JWTConfig{
		Secret:           getEnv("JWT_SECRET", "default_secret"),
		RefreshSecret:    getEnv("JWT_REFRESH_SECRET", "default_refresh_secret"),
		AccessTokenMins:  accessMins,
		RefreshTokenDays: refreshDays,
	}
}

func loadMpesaConfig() MpesaConfig {
	return MpesaConfig{
		BaseURL:            getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
		ConsumerKey:        getEnv("MPESA_CONSUMER_KEY", ""),
		ConsumerSecret:     getEnv("MPESA_CONSUMER_SECRET", ""),
		ShortCode:          getEnv("MPESA_SHORTCODE", ""),
		Passkey:            getEnv("MPESA_PASSKEY", ""),
		InitiatorName:      getEnv("MPESA_INITIATOR_NAME", ""),
		SecurityCredential: getEnv("MPESA_SECURITY_CREDENTIAL", ""),
		B2CShortCode:       getEnv("MPESA_B2C_SHORTCODE", ""),
		CallbackBaseURL:    getEnv("MPESA_CALLBACK_BASE_URL", ""),
	}
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" && c.IsDev() {
		return "*"
	}
	return origins
}
