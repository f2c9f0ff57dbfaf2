package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	ProviderStripe = "stripe"
	ProviderMock   = "mock"
)

type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Policy     PolicyConfig
	Pricing    PricingConfig
	OpenAI     OpenAIConfig
	Transcript TranscriptConfig
	Stripe     StripeConfig
	Supabase   SupabaseConfig
}

// Load reads the process environment. Call godotenv.Load first to pick up a .env file.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.App.AdminPath = normalizePath(cfg.App.AdminPath)
	if cfg.Stripe.Provider != ProviderStripe && cfg.Stripe.Provider != ProviderMock {
		return nil, fmt.Errorf("PAYMENT_PROVIDER must be %q or %q", ProviderStripe, ProviderMock)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env       string `envconfig:"APP_ENV" default:"dev"`
	Port      string `envconfig:"PORT" default:"3000"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	AdminPath string `envconfig:"ADMIN_PATH" default:"/api/admin"`
	// How often stale drafts are flipped to expired. Zero disables the sweep.
	ExpirySweepInterval time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"15m"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

type DBConfig struct {
	URL             string        `envconfig:"DATABASE_URL"`
	Driver          string        `envconfig:"DB_DRIVER" default:"postgres"`
	AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"false"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

type RedisConfig struct {
	URL         string        `envconfig:"REDIS_URL"`
	PoolSize    int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	// TTL for Stripe webhook idempotency keys.
	IdempotencyTTL time.Duration `envconfig:"REDIS_IDEMPOTENCY_TTL" default:"72h"`
	PromptCacheTTL time.Duration `envconfig:"REDIS_PROMPT_CACHE_TTL" default:"10m"`
}

// Enabled reports whether a Redis URL was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type JWTConfig struct {
	Secret   string `envconfig:"JWT_SECRET" required:"true"`
	TTLHours int    `envconfig:"JWT_TTL_HOURS" default:"168"`
}

func (j JWTConfig) TTL() time.Duration {
	if j.TTLHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(j.TTLHours) * time.Hour
}

type PolicyConfig struct {
	DraftExpiryHours       int           `envconfig:"DRAFT_EXPIRY_HOURS" default:"48"`
	FreeAIGenerations      int           `envconfig:"FREE_AI_GENERATIONS" default:"3"`
	PaidAIGenerations      int           `envconfig:"PAID_AI_GENERATIONS" default:"30"`
	AIRequestsPerMinute    int           `envconfig:"AI_REQUESTS_PER_MINUTE" default:"10"`
	DuplicateSuppression   time.Duration `envconfig:"AI_DUPLICATE_WINDOW" default:"2m"`
	MinPayoutCents         int64         `envconfig:"MIN_PAYOUT_CENTS" default:"2500"`
	SubscriptionDocsPerMon int           `envconfig:"SUBSCRIPTION_DOCS_PER_PERIOD" default:"5"`
}

func (p PolicyConfig) DraftExpiry() time.Duration {
	return time.Duration(p.DraftExpiryHours) * time.Hour
}

type PricingConfig struct {
	DocumentCents     int64 `envconfig:"PRICE_DOCUMENT_CENTS" default:"4900"`
	PackSize          int   `envconfig:"PACK_SIZE" default:"3"`
	PackCents         int64 `envconfig:"PRICE_PACK_CENTS" default:"11900"`
	MonthlyCents      int64 `envconfig:"PRICE_MONTHLY_CENTS" default:"2900"`
	AnnualCents       int64 `envconfig:"PRICE_ANNUAL_CENTS" default:"24900"`
	PromoPayoutCents  int64 `envconfig:"PROMO_PAYOUT_CENTS" default:"1000"`
	PromoDiscountPerc int   `envconfig:"PROMO_DISCOUNT_PERCENT" default:"10"`
}

// Dollars converts a cent amount to a two-place decimal.
func Dollars(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-2)
}

type OpenAIConfig struct {
	APIKey  string        `envconfig:"OPENAI_API_KEY"`
	BaseURL string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com"`
	Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"120s"`
}

type TranscriptConfig struct {
	BaseURL string        `envconfig:"TRANSCRIPT_API_URL"`
	APIKey  string        `envconfig:"TRANSCRIPT_API_KEY"`
	Timeout time.Duration `envconfig:"TRANSCRIPT_TIMEOUT" default:"30s"`
}

type StripeConfig struct {
	Provider      string `envconfig:"PAYMENT_PROVIDER" default:"mock"`
	APIKey        string `envconfig:"STRIPE_SECRET_KEY"`
	WebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	SuccessURL    string `envconfig:"STRIPE_SUCCESS_URL" default:"http://localhost:5173/checkout/success"`
	CancelURL     string `envconfig:"STRIPE_CANCEL_URL" default:"http://localhost:5173/checkout/cancel"`
	DevSecret     string `envconfig:"DEV_PAYMENT_SECRET"`
}

type SupabaseConfig struct {
	URL    string `envconfig:"SUPABASE_URL"`
	Key    string `envconfig:"SUPABASE_SERVICE_KEY"`
	Bucket string `envconfig:"SUPABASE_BUCKET" default:"complaints"`
}

func (s SupabaseConfig) Enabled() bool {
	return s.URL != "" && s.Key != ""
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/api/admin"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}
