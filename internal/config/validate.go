package config

import (
	"errors"
	"fmt"
	"strings"
)

func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}

	switch c.Storage.Backend {
	case "supabase":
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" {
			errs = append(errs, errors.New("storage: supabase backend needs supabase_url and supabase_key"))
		}
	case "local":
		if c.Storage.LocalRoot == "" {
			errs = append(errs, errors.New("storage: local backend needs local_root"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be supabase or local (got %q)", c.Storage.Backend))
	}

	if !c.hasProvider(c.LLM.DefaultProvider) {
		errs = append(errs, fmt.Errorf("llm: default provider %q is not configured", c.LLM.DefaultProvider))
	}
	if c.LLM.FallbackProvider != "" && !c.hasProvider(c.LLM.FallbackProvider) {
		errs = append(errs, fmt.Errorf("llm: fallback provider %q is not configured", c.LLM.FallbackProvider))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries must be >= 0 (got %d)", c.LLM.MaxRetries))
	}

	if c.Remediation.GenerateTimeout <= 0 || c.Remediation.ImplementTimeout <= 0 {
		errs = append(errs, errors.New("remediation timeouts must be > 0"))
	}
	if c.Remediation.BulkConcurrency < 1 {
		errs = append(errs, fmt.Errorf("remediation.bulk_concurrency must be >= 1 (got %d)", c.Remediation.BulkConcurrency))
	}
	if c.Extract.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("extract.max_bytes must be > 0 (got %d)", c.Extract.MaxBytes))
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("rate_limit: requests_per_second and burst must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) hasProvider(name string) bool {
	switch strings.ToLower(name) {
	case "openai":
		return c.LLM.OpenAIKey != ""
	case "anthropic":
		return c.LLM.AnthropicKey != ""
	case "ollama":
		return c.LLM.OllamaURL != ""
	default:
		return false
	}
}

// QueueEnabled reports whether Redis is configured for asynq.
func (c *Config) QueueEnabled() bool {
	return c.Redis.Addr != ""
}
