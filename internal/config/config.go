// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Режимы проверки прав администратора.
const (
	AuthModeStrict               = "strict"
	AuthModeBootstrapFirstCaller = "bootstrap_first_caller"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string        `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string        `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string        `yaml:"migrations_path" env-default:"./migrations"`
	RabbitMQURL             string        `yaml:"rabbitmq_url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries      int           `yaml:"rabbitmq_max_retries" env-default:"5"`
	RabbitMQRetryDelay      time.Duration `yaml:"rabbitmq_retry_delay" env-default:"3s"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Telegram                `yaml:"telegram"`
	Auth                    `yaml:"auth"`
	PaymentProvider         `yaml:"payment_provider"`
	Scheduler               `yaml:"scheduler"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// Ограничение частоты запросов с одного IP для публичных и мини-приложения маршрутов.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env-default:"5"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env-default:"10"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// Telegram настройки Bot API и проверки init data мини-приложения.
type Telegram struct {
	BotToken    string        `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	APIURL      string        `yaml:"api_url"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	InitDataTTL time.Duration `yaml:"init_data_ttl"`
}

// Auth настройки проверки прав администратора.
//
// DevBypass включает литерал "dev" вместо подписанной init data, только для разработки.
type Auth struct {
	Mode              string  `yaml:"mode" env:"AUTH_MODE" env-default:"strict"`
	BootstrapAdminIDs []int64 `yaml:"bootstrap_admin_ids"`
	DevBypass         bool    `yaml:"dev_bypass" env:"AUTH_DEV_BYPASS"`
	DevUserID         int64   `yaml:"dev_user_id"`
}

// PaymentProvider настройки крипто-процессинга.
type PaymentProvider struct {
	APIURL        string        `yaml:"api_url" env-default:"https://api.nowpayments.io/v1"`
	APIKey        string        `yaml:"api_key" env:"PAYMENT_API_KEY"`
	IPNSecret     string        `yaml:"ipn_secret" env:"PAYMENT_IPN_SECRET"`
	IPNURL        string        `yaml:"ipn_callback_url"`
	Timeout       time.Duration `yaml:"timeout" env-default:"15s"`
	PriceCurrency string        `yaml:"price_currency" env-default:"usd"`
}

// Scheduler интервалы фоновых задач.
type Scheduler struct {
	ExpireInterval      time.Duration `yaml:"expire_interval" env-default:"10m"`
	PaymentPollInterval time.Duration `yaml:"payment_poll_interval" env-default:"2m"`
	PaymentPollAge      time.Duration `yaml:"payment_poll_age" env-default:"1m"`
	PaymentPollBatch    int           `yaml:"payment_poll_batch" env-default:"50"`
	BroadcastInterval   time.Duration `yaml:"broadcast_interval" env-default:"1m"`
}

// MustLoad функция для загрузки конфига, возвращает конфиг, прочитанный из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}
	return &cfg
}

// Validate проверяет значения, которые нельзя исправить значением по умолчанию.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case AuthModeStrict, AuthModeBootstrapFirstCaller:
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
	if c.Auth.DevBypass && c.Env == "prod" {
		return fmt.Errorf("auth.dev_bypass is not allowed in prod")
	}
	if c.Auth.Mode == AuthModeBootstrapFirstCaller && c.Env == "prod" {
		return fmt.Errorf("auth mode %s is not allowed in prod", c.Auth.Mode)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Auth:\n"+
			"  Mode: %s\n"+
			"  DevBypass: %t\n"+
			"PaymentProvider:\n"+
			"  APIURL: %s\n"+
			"  Timeout: %s\n",
		c.Env,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.Auth.Mode,
		c.Auth.DevBypass,
		c.PaymentProvider.APIURL,
		c.PaymentProvider.Timeout,
	)
}
