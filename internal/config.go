package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"http_server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Security       SecurityConfig       `mapstructure:"security"`
	Gateway        GatewayConfig        `mapstructure:"gateway"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration"`
}

// GatewayConfig carries the Remita merchant credentials and call policy.
// Constructed once at startup and injected; nothing reads these from the
// environment at call time.
type GatewayConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	MerchantID     string        `mapstructure:"merchant_id"`
	ServiceTypeID  string        `mapstructure:"service_type_id"`
	APIKey         string        `mapstructure:"api_key"`
	PublicKey      string        `mapstructure:"public_key"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	AllowUnsigned  bool          `mapstructure:"allow_unsigned_webhooks"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
}

type ReconciliationConfig struct {
	BankFeedURL    string        `mapstructure:"bank_feed_url"`
	GraceWindow    time.Duration `mapstructure:"grace_window"`
	AmountEpsilon  int64         `mapstructure:"amount_epsilon"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type NotificationConfig struct {
	SMSGatewayURL   string        `mapstructure:"sms_gateway_url"`
	EmailGatewayURL string        `mapstructure:"email_gateway_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds a Config from environment variables, used for
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_SERVER_PORT", 8080),
			BaseURL:           getEnv("HTTP_SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("HTTP_SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_SOURCE", ""),
		},
		Security: SecurityConfig{
			JWTSecret:           getEnv("SECURITY_JWT_SECRET", ""),
			AccessTokenDuration: getEnvAsDuration("SECURITY_ACCESS_TOKEN_DURATION", 15*time.Minute),
		},
		Gateway: GatewayConfig{
			BaseURL:        getEnv("GATEWAY_BASE_URL", "https://remitademo.net/remita/exapp/api/v1/send/api"),
			MerchantID:     getEnv("GATEWAY_MERCHANT_ID", ""),
			ServiceTypeID:  getEnv("GATEWAY_SERVICE_TYPE_ID", ""),
			APIKey:         getEnv("GATEWAY_API_KEY", ""),
			PublicKey:      getEnv("GATEWAY_PUBLIC_KEY", ""),
			WebhookSecret:  getEnv("GATEWAY_WEBHOOK_SECRET", ""),
			AllowUnsigned:  getEnv("GATEWAY_ALLOW_UNSIGNED_WEBHOOKS", "false") == "true",
			RequestTimeout: getEnvAsDuration("GATEWAY_REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries:     getEnvAsInt("GATEWAY_MAX_RETRIES", 3),
			RetryBackoff:   getEnvAsDuration("GATEWAY_RETRY_BACKOFF", 2*time.Second),
		},
		Reconciliation: ReconciliationConfig{
			BankFeedURL:    getEnv("RECONCILIATION_BANK_FEED_URL", ""),
			GraceWindow:    getEnvAsDuration("RECONCILIATION_GRACE_WINDOW", 24*time.Hour),
			AmountEpsilon:  int64(getEnvAsInt("RECONCILIATION_AMOUNT_EPSILON", 1)),
			RequestTimeout: getEnvAsDuration("RECONCILIATION_REQUEST_TIMEOUT", 30*time.Second),
		},
		Notification: NotificationConfig{
			SMSGatewayURL:   getEnv("NOTIFICATION_SMS_GATEWAY_URL", ""),
			EmailGatewayURL: getEnv("NOTIFICATION_EMAIL_GATEWAY_URL", ""),
			RequestTimeout:  getEnvAsDuration("NOTIFICATION_REQUEST_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOGGING_LEVEL", "info"),
				Format: getEnv("LOGGING_FORMAT", "json"),
			},
		},
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.Reconciliation.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("reconciliation config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *GatewayConfig) Validate() error {
	if c.MerchantID == "" || c.ServiceTypeID == "" || c.APIKey == "" {
		return errors.New("merchant_id, service_type_id and api_key are required")
	}
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.WebhookSecret == "" && !c.AllowUnsigned {
		return errors.New("webhook_secret is required unless allow_unsigned_webhooks is set")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("max_retries cannot be negative")
	}
	return nil
}

func (c *ReconciliationConfig) Validate() error {
	if c.GraceWindow <= 0 {
		return errors.New("grace_window must be positive")
	}
	if c.AmountEpsilon < 0 {
		return errors.New("amount_epsilon cannot be negative")
	}
	return nil
}
