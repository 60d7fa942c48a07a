package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const DefaultAPIBaseURL = "https://em-api-prod.everydaymoney.app"

type Config struct {
	Env       string `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTP      `yaml:"http"`
	DB        `yaml:"db"`
	Store     `yaml:"store"`
	Gateway   `yaml:"gateway"`
	Kafka     `yaml:"kafka"`
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

type HTTP struct {
	Port string `yaml:"port" env:"PORT" env-default:"8080"`
}

type DB struct {
	Dsn            string `yaml:"dsn" env:"POSTGRES_URL"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

type Store struct {
	Name      string `yaml:"name" env:"STORE_NAME" env-default:"Shop"`
	URL       string `yaml:"url" env:"STORE_URL"`
	PublicURL string `yaml:"public_url" env:"PUBLIC_URL"`
	// PriceDecimals is the number of decimals prices are rounded to.
	PriceDecimals int32 `yaml:"price_decimals" env:"PRICE_DECIMALS" env-default:"2"`
	// PricesIncludeTax mirrors the shop-wide tax display setting.
	PricesIncludeTax bool `yaml:"prices_include_tax" env:"PRICES_INCLUDE_TAX" env-default:"false"`
}

// Gateway is the recognised option surface of the Moniq payment method.
type Gateway struct {
	Enabled              string `yaml:"enabled" env:"MONIQ_ENABLED" env-default:"yes"`
	Title                string `yaml:"title" env:"MONIQ_TITLE" env-default:"Moniq"`
	Description          string `yaml:"description" env:"MONIQ_DESCRIPTION" env-default:"Pay securely using Moniq. You will be redirected to complete your purchase."`
	PublicKey            string `yaml:"public_key" env:"MONIQ_PUBLIC_KEY"`
	APISecret            string `yaml:"api_secret" env:"MONIQ_API_SECRET"`
	WebhookSecret        string `yaml:"webhook_secret" env:"MONIQ_WEBHOOK_SECRET"`
	OrderStatusOnSuccess string `yaml:"order_status_on_success" env:"MONIQ_ORDER_STATUS_ON_SUCCESS" env-default:"processing"`
	Debug                bool   `yaml:"debug" env:"MONIQ_DEBUG" env-default:"false"`
	APIBaseURL           string `yaml:"api_base_url" env:"MONIQ_API_URL" env-default:"https://em-api-prod.everydaymoney.app"`
}

// IsEnabled treats anything but an explicit no/false/0 as enabled.
func (g Gateway) IsEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(g.Enabled)) {
	case "no", "false", "0", "off":
		return false
	}
	return true
}

type Kafka struct {
	Brokers string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string `yaml:"topic" env:"KAFKA_PAYMENT_TOPIC" env-default:"moniq-payment-events"`
}

func (k Kafka) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Load reads .env, then the optional YAML file named by MONIQ_CONFIG_PATH,
// then environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	var cfg Config
	if path := os.Getenv("MONIQ_CONFIG_PATH"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to find config file: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) Validate() error {
	switch c.Gateway.OrderStatusOnSuccess {
	case "processing", "completed":
	case "":
		c.Gateway.OrderStatusOnSuccess = "processing"
	default:
		return fmt.Errorf("order_status_on_success must be processing or completed, got %q", c.Gateway.OrderStatusOnSuccess)
	}
	if c.Gateway.APIBaseURL == "" {
		c.Gateway.APIBaseURL = DefaultAPIBaseURL
	}
	c.Gateway.APIBaseURL = strings.TrimRight(c.Gateway.APIBaseURL, "/")
	if c.Store.PriceDecimals < 0 {
		return fmt.Errorf("price_decimals must not be negative")
	}
	return nil
}

// WebhookURL is the public address the provider posts notifications to.
func (c *Config) WebhookURL() string {
	return strings.TrimRight(c.Store.PublicURL, "/") + "/payments/moniq/webhook"
}
