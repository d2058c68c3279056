package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Fees           FeesConfig
	Idempotency    IdempotencyConfig
	Retry          RetryConfig
	Stripe         StripeConfig
	Moneroo        MonerooConfig
	Ebilling       EbillingConfig
	Shap           ShapConfig
	Webhooks       WebhooksConfig
	PayoutQueue    PayoutQueueConfig
	Reconciliation ReconciliationConfig
	Scheduler      SchedulerConfig
	Firebase       FirebaseConfig
	Archive        ArchiveConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    int
	RateWindow   time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

type FeesConfig struct {
	PlatformRate  float64
	PlatformFixed int64
}

type IdempotencyConfig struct {
	TTL time.Duration
}

type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
}

type MonerooConfig struct {
	SecretKey     string
	BaseURL       string
	WebhookSecret string
	ReturnURL     string
}

type EbillingConfig struct {
	Username     string
	SharedKey    string
	BaseURL      string
	WebhookToken string
}

type ShapConfig struct {
	APIID          string
	APISecret      string
	BaseURL        string
	WebhookToken   string
	TokenCacheSize int
}

type WebhooksConfig struct {
	DeliveryTimeout  time.Duration
	DeliveryMaxTries int
	DeliveryInterval time.Duration
}

type PayoutQueueConfig struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	StallTimeout time.Duration
	StallSweep   time.Duration
}

type ReconciliationConfig struct {
	TimeZone string
	RunAt    string
}

type SchedulerConfig struct {
	Enabled          bool
	BillingInterval  time.Duration
	DunningInterval  time.Duration
	DeliveryInterval time.Duration
	PurgeInterval    time.Duration
}

type FirebaseConfig struct {
	ServiceAccountPath string
}

// ArchiveConfig selects where reconciliation reports are stored: "s3", "cloudinary" or "" (disabled).
type ArchiveConfig struct {
	Backend             string
	S3Region            string
	S3Bucket            string
	S3Prefix            string
	S3PublicBaseURL     string
	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
}

// Defaults returns the built-in configuration before any file or environment overrides.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8099",
			Env:          "development",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit:    300,
			RateWindow:   60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             "boohpay:boohpay@tcp(localhost:3306)/boohpay?charset=utf8mb4&parseTime=True&loc=UTC",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret: "change-me-in-production",
			AccessExpiry: 24 * time.Hour,
			Issuer:       "boohpay",
		},
		Fees: FeesConfig{
			PlatformRate:  0.015,
			PlatformFixed: 100,
		},
		Idempotency: IdempotencyConfig{TTL: 24 * time.Hour},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
		},
		Moneroo: MonerooConfig{BaseURL: "https://api.moneroo.io"},
		Ebilling: EbillingConfig{
			BaseURL: "https://stg.billing-easy.com/api/v1/merchant",
		},
		Shap: ShapConfig{
			BaseURL:        "https://test.billing-easy.net/shap/api/v1/merchant",
			TokenCacheSize: 1024,
		},
		Webhooks: WebhooksConfig{
			DeliveryTimeout:  10 * time.Second,
			DeliveryMaxTries: 8,
			DeliveryInterval: time.Minute,
		},
		PayoutQueue: PayoutQueueConfig{
			Workers:      4,
			PollInterval: time.Second,
			MaxAttempts:  5,
			BackoffBase:  5 * time.Second,
			StallTimeout: time.Minute,
			StallSweep:   30 * time.Second,
		},
		Reconciliation: ReconciliationConfig{
			TimeZone: "Europe/Paris",
			RunAt:    "02:00",
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			BillingInterval:  time.Hour,
			DunningInterval:  6 * time.Hour,
			DeliveryInterval: time.Minute,
			PurgeInterval:    time.Hour,
		},
	}
}

// Load builds the configuration from defaults, an optional config.yaml (or the file named by
// BOOHPAY_CONFIG), a .env file and the process environment, in increasing order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	v := viper.New()
	v.SetConfigType("yaml")
	if path := os.Getenv("BOOHPAY_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("BOOHPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyEnv(v, cfg)
	return cfg, nil
}

// applyEnv maps the environment variables used by the deployment scripts onto the config tree.
func applyEnv(v *viper.Viper, cfg *Config) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if s := os.Getenv(k); s != "" {
				*dst = s
				return
			}
		}
	}
	if s := v.GetString("server.port"); s != "" {
		cfg.Server.Port = s
	}
	if s := v.GetString("server.env"); s != "" {
		cfg.Server.Env = s
	}
	if s := v.GetString("database.dsn"); s != "" {
		cfg.Database.DSN = s
	}
	if s := v.GetString("jwt.accesssecret"); s != "" {
		cfg.JWT.AccessSecret = s
	}
	if n := v.GetInt("payoutqueue.workers"); n > 0 {
		cfg.PayoutQueue.Workers = n
	}
	if v.IsSet("scheduler.enabled") {
		cfg.Scheduler.Enabled = v.GetBool("scheduler.enabled")
	}

	str(&cfg.Server.Port, "PORT")
	str(&cfg.Server.Env, "APP_ENV")
	str(&cfg.Database.DSN, "DATABASE_URL")
	str(&cfg.JWT.AccessSecret, "JWT_SECRET")
	str(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	str(&cfg.Stripe.PublishableKey, "STRIPE_PUBLISHABLE_KEY")
	str(&cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	str(&cfg.Moneroo.SecretKey, "MONEROO_SECRET_KEY")
	str(&cfg.Moneroo.BaseURL, "MONEROO_BASE_URL")
	str(&cfg.Moneroo.WebhookSecret, "MONEROO_WEBHOOK_SECRET")
	str(&cfg.Moneroo.ReturnURL, "MONEROO_RETURN_URL")
	str(&cfg.Ebilling.Username, "EBILLING_USERNAME")
	str(&cfg.Ebilling.SharedKey, "EBILLING_SHARED_KEY")
	str(&cfg.Ebilling.BaseURL, "EBILLING_BASE_URL")
	str(&cfg.Ebilling.WebhookToken, "EBILLING_WEBHOOK_TOKEN")
	str(&cfg.Shap.APIID, "SHAP_API_ID")
	str(&cfg.Shap.APISecret, "SHAP_API_SECRET")
	str(&cfg.Shap.BaseURL, "SHAP_BASE_URL")
	str(&cfg.Shap.WebhookToken, "SHAP_WEBHOOK_TOKEN")
	str(&cfg.Firebase.ServiceAccountPath, "FIREBASE_SERVICE_ACCOUNT_PATH")
	str(&cfg.Archive.Backend, "RECON_ARCHIVE_BACKEND")
	str(&cfg.Archive.S3Region, "AWS_REGION")
	str(&cfg.Archive.S3Bucket, "RECON_ARCHIVE_BUCKET")
	str(&cfg.Archive.CloudinaryName, "CLOUDINARY_CLOUD_NAME")
	str(&cfg.Archive.CloudinaryAPIKey, "CLOUDINARY_API_KEY")
	str(&cfg.Archive.CloudinaryAPISecret, "CLOUDINARY_API_SECRET")
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}
