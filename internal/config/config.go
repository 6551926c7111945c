package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Auth        AuthConfig        `yaml:"auth"`
	LLM         LLMConfig         `yaml:"llm"`
	Storage     StorageConfig     `yaml:"storage"`
	Extract     ExtractConfig     `yaml:"extract"`
	Rewrite     RewriteConfig     `yaml:"rewrite"`
	Remediation RemediationConfig `yaml:"remediation"`
	Worker      WorkerConfig      `yaml:"worker"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	CORS        CORSConfig        `yaml:"cors"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"180s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// DatabaseConfig selects PostgreSQL. An empty URL runs on the in-memory store.
type DatabaseConfig struct {
	URL            string `yaml:"url"             env:"DATABASE_URL"`
	MaxConns       int32  `yaml:"max_conns"       env:"DB_MAX_CONNS"       env-default:"20"`
	MinConns       int32  `yaml:"min_conns"       env:"DB_MIN_CONNS"       env-default:"2"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH"    env-default:"migrations"`
}

// RedisConfig backs the distributed claims and the task queue. An empty Addr
// keeps claims in process and disables the queue.
type RedisConfig struct {
	Addr        string `yaml:"addr"         env:"REDIS_ADDR"`
	Password    string `yaml:"password"     env:"REDIS_PASSWORD"`
	DB          int    `yaml:"db"           env:"REDIS_DB"           env-default:"0"`
	ClaimPrefix string `yaml:"claim_prefix" env:"REDIS_CLAIM_PREFIX" env-default:"pdfaccess:claim:"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET" env-required:"true"`
}

type LLMConfig struct {
	OpenAIKey        string        `yaml:"openai_key"        env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"   env:"OPENAI_API_BASE_URL"`
	AnthropicKey     string        `yaml:"anthropic_key"     env:"ANTHROPIC_API_KEY"`
	OllamaURL        string        `yaml:"ollama_url"        env:"OLLAMA_URL"`
	DefaultProvider  string        `yaml:"default_provider"  env:"LLM_DEFAULT_PROVIDER"  env-default:"openai"`
	DefaultModel     string        `yaml:"default_model"     env:"LLM_DEFAULT_MODEL"     env-default:"gpt-4o-mini"`
	FallbackProvider string        `yaml:"fallback_provider" env:"LLM_FALLBACK_PROVIDER"`
	FallbackModel    string        `yaml:"fallback_model"    env:"LLM_FALLBACK_MODEL"`
	MaxRetries       int           `yaml:"max_retries"       env:"LLM_MAX_RETRIES"       env-default:"2"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"     env:"LLM_RETRY_BACKOFF"     env-default:"500ms"`
	Temperature      float64       `yaml:"temperature"       env:"LLM_TEMPERATURE"       env-default:"0.3"`
}

// StorageConfig picks where uploaded PDFs are read from: "supabase" or "local".
type StorageConfig struct {
	Backend     string `yaml:"backend"      env:"STORAGE_BACKEND"      env-default:"supabase"`
	SupabaseURL string `yaml:"supabase_url" env:"SUPABASE_URL"`
	SupabaseKey string `yaml:"supabase_key" env:"SUPABASE_SERVICE_KEY"`
	Bucket      string `yaml:"bucket"       env:"STORAGE_BUCKET"       env-default:"documents"`
	LocalRoot   string `yaml:"local_root"   env:"STORAGE_LOCAL_ROOT"   env-default:"uploads"`
}

type ExtractConfig struct {
	MaxBytes         int64 `yaml:"max_bytes"         env:"EXTRACT_MAX_BYTES"         env-default:"104857600"`
	StrictValidation bool  `yaml:"strict_validation" env:"EXTRACT_STRICT_VALIDATION" env-default:"false"`
}

type RewriteConfig struct {
	URL     string        `yaml:"url"     env:"REWRITE_URL"     env-required:"true"`
	Secret  string        `yaml:"secret"  env:"REWRITE_SECRET"`
	Timeout time.Duration `yaml:"timeout" env:"REWRITE_TIMEOUT" env-default:"120s"`
}

type RemediationConfig struct {
	GenerateTimeout  time.Duration `yaml:"generate_timeout"  env:"REMEDIATION_GENERATE_TIMEOUT"  env-default:"60s"`
	ImplementTimeout time.Duration `yaml:"implement_timeout" env:"REMEDIATION_IMPLEMENT_TIMEOUT" env-default:"120s"`
	ClaimTTL         time.Duration `yaml:"claim_ttl"         env:"REMEDIATION_CLAIM_TTL"         env-default:"5m"`
	BulkConcurrency  int           `yaml:"bulk_concurrency"  env:"REMEDIATION_BULK_CONCURRENCY"  env-default:"4"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency" env:"WORKER_CONCURRENCY" env-default:"10"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RATE_LIMIT_RPS"   env-default:"10"`
	Burst             int     `yaml:"burst"               env:"RATE_LIMIT_BURST" env-default:"20"`
}

type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
