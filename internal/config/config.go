package config

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ziher12/bitcio-trading/pkg/secrets"
)

// Config is the immutable settings bundle handed to the core at
// construction. Changing a value means loading a new Config and rebuilding
// the components that hold it.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	GCP      GCPConfig      `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type ExchangeConfig struct {
	// Legacy authentication (API key + HMAC secret)
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`

	// JWT authentication
	AuthType      string `mapstructure:"auth_type"` // "legacy" or "jwt"
	APIKeyName    string `mapstructure:"api_key_name"`
	PrivateKeyPEM string `mapstructure:"private_key_pem"`

	RESTURL   string          `mapstructure:"rest_url"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

type WebSocketConfig struct {
	URL            string `mapstructure:"url"`
	ReconnectDelay int    `mapstructure:"reconnect_delay"`
	MaxReconnects  int    `mapstructure:"max_reconnects"`
}

type RiskConfig struct {
	MaxPositionFraction float64 `mapstructure:"max_position_fraction"`
	MinSpread           float64 `mapstructure:"min_spread"`
	MaxLossFraction     float64 `mapstructure:"max_loss_fraction"`
}

type TradingConfig struct {
	Symbol        string  `mapstructure:"symbol"`
	BaseQuantity  float64 `mapstructure:"base_quantity"`
	ScalpDuration int     `mapstructure:"scalp_duration"` // seconds
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCPConfig struct {
	ProjectID   string              `mapstructure:"project_id"`
	UseSecrets  bool                `mapstructure:"use_secrets"`
	SecretNames secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/bitcio-trading")
	}

	v.SetEnvPrefix("BITCIO")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	if err := config.Risk.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (r RiskConfig) validate() error {
	if r.MaxPositionFraction <= 0 || r.MaxPositionFraction > 1 {
		return fmt.Errorf("risk.max_position_fraction must be in (0, 1], got %v", r.MaxPositionFraction)
	}
	if r.MinSpread < 0 {
		return fmt.Errorf("risk.min_spread must be >= 0, got %v", r.MinSpread)
	}
	if r.MaxLossFraction <= 0 || r.MaxLossFraction > 1 {
		return fmt.Errorf("risk.max_loss_fraction must be in (0, 1], got %v", r.MaxLossFraction)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)

	// Exchange defaults
	v.SetDefault("exchange.auth_type", "legacy")
	v.SetDefault("exchange.rest_url", "https://api.bitcio.com")
	v.SetDefault("exchange.websocket.url", "wss://ws.bitcio.com")
	v.SetDefault("exchange.websocket.reconnect_delay", 5)
	v.SetDefault("exchange.websocket.max_reconnects", 10)

	// Risk defaults
	v.SetDefault("risk.max_position_fraction", 0.1)
	v.SetDefault("risk.min_spread", 0.001)
	v.SetDefault("risk.max_loss_fraction", 0.05)

	// Trading defaults
	v.SetDefault("trading.symbol", "BTCUSDT")
	v.SetDefault("trading.base_quantity", 0.001)
	v.SetDefault("trading.scalp_duration", 3600)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// GCP defaults
	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.api_key", secretNames.APIKey)
	v.SetDefault("gcp.secret_names.api_secret", secretNames.APISecret)
	v.SetDefault("gcp.secret_names.api_key_name", secretNames.APIKeyName)
	v.SetDefault("gcp.secret_names.private_key", secretNames.PrivateKey)
}

func overrideFromEnv(config *Config) {
	if apiKey := os.Getenv("BITCIO_API_KEY"); apiKey != "" {
		config.Exchange.APIKey = apiKey
	}
	if apiSecret := os.Getenv("BITCIO_API_SECRET"); apiSecret != "" {
		config.Exchange.APISecret = apiSecret
	}
	if authType := os.Getenv("BITCIO_AUTH_TYPE"); authType != "" {
		config.Exchange.AuthType = authType
	}
	if apiKeyName := os.Getenv("BITCIO_API_KEY_NAME"); apiKeyName != "" {
		config.Exchange.APIKeyName = apiKeyName
	}
	if privateKey := os.Getenv("BITCIO_PRIVATE_KEY"); privateKey != "" {
		config.Exchange.PrivateKeyPEM = privateKey
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	// Only load secrets that are not already set
	if config.Exchange.APIKey == "" {
		config.Exchange.APIKey = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.APIKey, "")
	}
	if config.Exchange.APISecret == "" {
		config.Exchange.APISecret = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.APISecret, "")
	}
	if config.Exchange.APIKeyName == "" {
		config.Exchange.APIKeyName = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.APIKeyName, "")
	}
	if config.Exchange.PrivateKeyPEM == "" {
		config.Exchange.PrivateKeyPEM = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.PrivateKey, "")
	}

	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}
