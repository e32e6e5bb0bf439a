// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database     DatabaseConfig     `json:"database"`
	Server       ServerConfig       `json:"server"`
	Security     SecurityConfig     `json:"security"`
	JWT          JWTConfig          `json:"jwt"`
	Admin        AdminConfig        `json:"admin"`
	Logging      LoggingConfig      `json:"logging"`
	Metrics      MetricsConfig      `json:"metrics"`
	Cache        CacheConfig        `json:"cache"`
	Deployment   DeploymentConfig   `json:"deployment"`
	Provisioning ProvisioningConfig `json:"provisioning"`
	Redemption   RedemptionConfig   `json:"redemption"`
	Notification NotificationConfig `json:"notification"`
	Marketplace  MarketplaceConfig  `json:"marketplace"`
	Reconciler   ReconcilerConfig   `json:"reconciler"`
	Catalog      CatalogConfig      `json:"catalog"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver"` // postgres, mysql
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	BodyLimit         int           `json:"body_limit"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	ProxyHeader       string        `json:"proxy_header"`
	EnableCompression bool          `json:"enable_compression"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	AuthRateLimit   int           `json:"auth_rate_limit"`   // requests per minute
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per minute
	RateLimitWindow time.Duration `json:"rate_limit_window"`

	// Vendor callbacks are accepted only from these addresses; empty allows all
	CallbackIPWhitelist []string `json:"callback_ip_whitelist"`
}

type JWTConfig struct {
	SecretKey      string        `json:"secret_key"`
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
	Issuer         string        `json:"issuer"`
	Audience       string        `json:"audience"`
}

type AdminConfig struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // bcrypt
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`

	// Reconciler log, rotated separately
	SchedulerLogPath string `json:"scheduler_log_path"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	Provider    string `json:"provider"` // redis, memory
	RedisURL    string `json:"redis_url"`
	RedisDB     int    `json:"redis_db"`
	RedisPrefix string `json:"redis_prefix"`
}

type DeploymentConfig struct {
	// Public host of the customer-facing QR pages
	Domain      string `json:"domain"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// ProvisioningConfig configures the warehouse order-submission vendor
type ProvisioningConfig struct {
	BaseURL      string        `json:"base_url"`
	CustomerCode string        `json:"customer_code"`
	CustomerAuth string        `json:"-"`
	Warehouse    string        `json:"warehouse"`
	Timeout      time.Duration `json:"timeout"`
}

// RedemptionConfig configures the coupon redemption vendor
type RedemptionConfig struct {
	BaseURL       string        `json:"base_url"`
	AppID         string        `json:"app_id"`
	AppSecret     string        `json:"-"`
	Timeout       time.Duration `json:"timeout"`
	InterPinDelay time.Duration `json:"inter_pin_delay"`
}

// NotificationConfig configures the customer messaging provider
type NotificationConfig struct {
	Enabled      bool          `json:"enabled"`
	BaseURL      string        `json:"base_url"`
	BasicAuth    string        `json:"-"` // base64 account:password for the token endpoint
	Account      string        `json:"account"`
	SenderKey    string        `json:"sender_key"`
	TemplateCode string        `json:"template_code"`
	From         string        `json:"from"`
	Template     string        `json:"template"`
	TokenTTL     time.Duration `json:"token_ttl"`
	Timeout      time.Duration `json:"timeout"`
}

// MarketplaceConfig configures the upstream order source and dispatch endpoint
type MarketplaceConfig struct {
	Enabled     bool          `json:"enabled"`
	BaseURL     string        `json:"base_url"`
	AccessToken string        `json:"-"`
	Lookback    time.Duration `json:"lookback"`
	Timeout     time.Duration `json:"timeout"`
}

type ReconcilerConfig struct {
	Enabled     bool          `json:"enabled"`
	Interval    time.Duration `json:"interval"`
	SubmitDelay time.Duration `json:"submit_delay"`
	BatchSize   int           `json:"batch_size"`
}

type CatalogConfig struct {
	Path string `json:"path"` // empty uses the embedded catalog
}

// DefaultNotificationTemplate is the activation message sent to customers
const DefaultNotificationTemplate = "안녕하세요! 링톡 입니다.\n해당 eSIM은 유심교체 없이\nQR코드 스캔을 통해 해외에서 사용 가능합니다.\n\n주문번호: #{주문번호}\n상품명: #{옵션번호}\n\n[개통정보]\nQR코드확인: #{qr링크}\n\n해외 현지에서 제품사용이 안될시,\n카카오톡 [링톡]으로 꼭! 문의부탁드립니다\n(평일: 09:00 ~ 18:00)\n\n※ 취소/환불규정\n이 상품은 결제와 동시에 고객님께 주요 개통정보가 전송되는 상품으로 스캔 및 삭제 후 취소/환불이 불가합니다. 취소 시 반드시 스캔 전에 사용기종 및 유효기한을 확인하셔서 구매처에 취소요청 바랍니다.\n\n링톡과 즐거운 여행 되시길 바랍니다."

// LoadProductionConfig loads and validates configuration from environment variables and ./.env
func LoadProductionConfig() (*ProductionConfig, error) {
	return LoadProductionConfigFrom(".env")
}

// LoadProductionConfigFrom loads configuration, reading envFile first when it exists
func LoadProductionConfigFrom(envFile string) (*ProductionConfig, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Driver:          getEnvString("DB_DRIVER", "postgres"),
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "ringtalk"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 3000),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 1024*1024), // 1MB
			TrustedProxies:    getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:       getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
		},
		Security: SecurityConfig{
			AllowedOrigins:      getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://ringtalk.shop"}),
			AllowedMethods:      getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:      getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization"}),
			AllowCredentials:    getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			CORSMaxAge:          getEnvInt("CORS_MAX_AGE", 86400),
			AuthRateLimit:       getEnvInt("AUTH_RATE_LIMIT", 20),
			GlobalRateLimit:     getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			RateLimitWindow:     getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			CallbackIPWhitelist: getEnvStringSlice("JOYTEL_IP_WHITELIST", []string{}),
		},
		JWT: JWTConfig{
			SecretKey:      getEnvString("JWT_SECRET_KEY", ""),
			AccessTokenTTL: getEnvDuration("JWT_ACCESS_TOKEN_TTL", 12*time.Hour),
			Issuer:         getEnvString("JWT_ISSUER", "esim-relay"),
			Audience:       getEnvString("JWT_AUDIENCE", "esim-relay-admin"),
		},
		Admin: AdminConfig{
			Username:     getEnvString("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnvString("ADMIN_PASSWORD_HASH", ""),
		},
		Logging: LoggingConfig{
			Level:            getEnvString("LOG_LEVEL", "info"),
			Output:           getEnvString("LOG_OUTPUT", "both"),
			FilePath:         getEnvString("LOG_FILE_PATH", "/var/log/esim-relay/app.log"),
			MaxSize:          getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:       getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:           getEnvInt("LOG_MAX_AGE", 30),
			Compress:         getEnvBool("LOG_COMPRESS", true),
			SchedulerLogPath: getEnvString("LOG_SCHEDULER_PATH", "/var/log/esim-relay/reconciler.log"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			Provider:    getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "esim:"),
		},
		Deployment: DeploymentConfig{
			Domain:      getEnvString("DOMAIN", "ringtalk.shop"),
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
		Provisioning: ProvisioningConfig{
			BaseURL:      getEnvString("JOYTEL_WAREHOUSE_BASE_URL", ""),
			CustomerCode: getEnvString("JOYTEL_WAREHOUSE_CUSTOMER_CODE", ""),
			CustomerAuth: getEnvString("JOYTEL_WAREHOUSE_CUSTOMER_AUTH", ""),
			Warehouse:    getEnvString("JOYTEL_WAREHOUSE", "上海仓库"),
			Timeout:      getEnvDuration("JOYTEL_WAREHOUSE_TIMEOUT", 15*time.Second),
		},
		Redemption: RedemptionConfig{
			BaseURL:       getEnvString("JOYTEL_RSP_BASE_URL", ""),
			AppID:         getEnvString("JOYTEL_RSP_APP_ID", ""),
			AppSecret:     getEnvString("JOYTEL_RSP_APP_SECRET", ""),
			Timeout:       getEnvDuration("JOYTEL_RSP_TIMEOUT", 15*time.Second),
			InterPinDelay: getEnvDuration("JOYTEL_RSP_INTER_PIN_DELAY", 100*time.Millisecond),
		},
		Notification: NotificationConfig{
			Enabled:      getEnvBool("BIZPPURIO_ENABLED", true),
			BaseURL:      getEnvString("BIZPPURIO_BASE_URL", "https://api.bizppurio.com"),
			BasicAuth:    getEnvString("BIZPPURIO_BASIC_AUTH", ""),
			Account:      getEnvString("BIZPPURIO_ACCOUNT", "ringtalk"),
			SenderKey:    getEnvString("BIZPPURIO_SENDER_KEY", ""),
			TemplateCode: getEnvString("BIZPPURIO_TEMPLATE_CODE", ""),
			From:         getEnvString("BIZPPURIO_FROM", "00000000000"),
			Template:     getEnvString("BIZPPURIO_TEMPLATE", DefaultNotificationTemplate),
			TokenTTL:     getEnvDuration("BIZPPURIO_TOKEN_TTL", 50*time.Minute),
			Timeout:      getEnvDuration("BIZPPURIO_TIMEOUT", 15*time.Second),
		},
		Marketplace: MarketplaceConfig{
			Enabled:     getEnvBool("MARKETPLACE_ENABLED", false),
			BaseURL:     getEnvString("MARKETPLACE_BASE_URL", ""),
			AccessToken: getEnvString("MARKETPLACE_ACCESS_TOKEN", ""),
			Lookback:    getEnvDuration("MARKETPLACE_LOOKBACK", 24*time.Hour),
			Timeout:     getEnvDuration("MARKETPLACE_TIMEOUT", 15*time.Second),
		},
		Reconciler: ReconcilerConfig{
			Enabled:     getEnvBool("RECONCILER_ENABLED", true),
			Interval:    getEnvDuration("RECONCILER_INTERVAL", 1*time.Minute),
			SubmitDelay: getEnvDuration("RECONCILER_SUBMIT_DELAY", 1*time.Second),
			BatchSize:   getEnvInt("RECONCILER_BATCH_SIZE", 10),
		},
		Catalog: CatalogConfig{
			Path: getEnvString("CATALOG_PATH", ""),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from envFile if it exists
func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	// Open .env file
	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open env file: %w", err)
	}
	defer file.Close()

	// Read file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		// Use standard library strings.Split and strings.TrimSpace
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "mysql" {
		errors = append(errors, "DB_DRIVER must be postgres or mysql")
	}
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate JWT configuration
	if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errors = append(errors, "JWT_ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.JWT.Issuer == "" {
		errors = append(errors, "JWT_ISSUER is required")
	}
	if cfg.JWT.Audience == "" {
		errors = append(errors, "JWT_AUDIENCE is required")
	}

	// Validate admin configuration
	if cfg.Admin.Username == "" {
		errors = append(errors, "ADMIN_USERNAME is required")
	}
	if cfg.Admin.PasswordHash == "" {
		errors = append(errors, "ADMIN_PASSWORD_HASH is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate vendor configuration
	if cfg.Provisioning.BaseURL == "" {
		errors = append(errors, "JOYTEL_WAREHOUSE_BASE_URL is required")
	}
	if cfg.Provisioning.CustomerCode == "" || cfg.Provisioning.CustomerAuth == "" {
		errors = append(errors, "JOYTEL_WAREHOUSE_CUSTOMER_CODE and JOYTEL_WAREHOUSE_CUSTOMER_AUTH are required")
	}
	if cfg.Redemption.BaseURL == "" {
		errors = append(errors, "JOYTEL_RSP_BASE_URL is required")
	}
	if cfg.Redemption.AppID == "" || cfg.Redemption.AppSecret == "" {
		errors = append(errors, "JOYTEL_RSP_APP_ID and JOYTEL_RSP_APP_SECRET are required")
	}
	if cfg.Redemption.InterPinDelay < 0 {
		errors = append(errors, "JOYTEL_RSP_INTER_PIN_DELAY must not be negative")
	}
	if cfg.Notification.Enabled {
		if cfg.Notification.BasicAuth == "" {
			errors = append(errors, "BIZPPURIO_BASIC_AUTH is required when notifications are enabled")
		}
		if cfg.Notification.SenderKey == "" || cfg.Notification.TemplateCode == "" {
			errors = append(errors, "BIZPPURIO_SENDER_KEY and BIZPPURIO_TEMPLATE_CODE are required when notifications are enabled")
		}
	}
	if cfg.Marketplace.Enabled && cfg.Marketplace.BaseURL == "" {
		errors = append(errors, "MARKETPLACE_BASE_URL is required when the marketplace is enabled")
	}
	if cfg.Reconciler.Enabled && cfg.Reconciler.Interval <= 0 {
		errors = append(errors, "RECONCILER_INTERVAL must be positive")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.Logging.Level) {
		errors = append(errors, "LOG_LEVEL must be one of: [debug info warn error]")
	}
	if !slices.Contains([]string{"stdout", "file", "both"}, cfg.Logging.Output) {
		errors = append(errors, "LOG_OUTPUT must be one of: [stdout file both]")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		if cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
		}
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
