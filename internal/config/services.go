package config

import "fmt"

const (
	EnvVisionBaseURL = "TIPTORO_VISION_BASE_URL"
	EnvVisionToken   = "TIPTORO_VISION_TOKEN"
	EnvLLMBaseURL    = "TIPTORO_LLM_BASE_URL"
	EnvLLMToken      = "TIPTORO_LLM_TOKEN"
	EnvLLMModel      = "TIPTORO_LLM_MODEL"
	EnvRenderBaseURL = "TIPTORO_RENDER_BASE_URL"
	EnvRenderToken   = "TIPTORO_RENDER_TOKEN"

	EnvDedupCacheEntries = "TIPTORO_DEDUP_CACHE_ENTRIES"
)

// ServiceConfig points at one remote capability provider.
type ServiceConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

// LLMConfig points at an OpenAI-compatible chat completion provider.
type LLMConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
	Model   string `toml:"model"`
}

// ServicesConfig holds the remote capability providers consumed by the
// adapters, plus local adapter tuning.
type ServicesConfig struct {
	Vision ServiceConfig `toml:"vision"`
	LLM    LLMConfig     `toml:"llm"`
	Render ServiceConfig `toml:"render"`
	// DedupCacheEntries bounds the in-process question dedup cache.
	DedupCacheEntries int64 `toml:"dedup_cache_entries"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ServicesConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ServicesConfig) Merge(overlay *ServicesConfig) {
	if overlay.Vision.BaseURL != "" {
		c.Vision.BaseURL = overlay.Vision.BaseURL
	}
	if overlay.Vision.Token != "" {
		c.Vision.Token = overlay.Vision.Token
	}
	if overlay.LLM.BaseURL != "" {
		c.LLM.BaseURL = overlay.LLM.BaseURL
	}
	if overlay.LLM.Token != "" {
		c.LLM.Token = overlay.LLM.Token
	}
	if overlay.LLM.Model != "" {
		c.LLM.Model = overlay.LLM.Model
	}
	if overlay.Render.BaseURL != "" {
		c.Render.BaseURL = overlay.Render.BaseURL
	}
	if overlay.Render.Token != "" {
		c.Render.Token = overlay.Render.Token
	}
	if overlay.DedupCacheEntries != 0 {
		c.DedupCacheEntries = overlay.DedupCacheEntries
	}
}

func (c *ServicesConfig) loadDefaults() {
	if c.Vision.BaseURL == "" {
		c.Vision.BaseURL = "http://localhost:8501"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.deepseek.com"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "deepseek-chat"
	}
	if c.Render.BaseURL == "" {
		c.Render.BaseURL = "http://localhost:8502"
	}
	if c.DedupCacheEntries == 0 {
		c.DedupCacheEntries = 10_000
	}
}

func (c *ServicesConfig) loadEnv() {
	envOverride(EnvVisionBaseURL, &c.Vision.BaseURL)
	envOverride(EnvVisionToken, &c.Vision.Token)
	envOverride(EnvLLMBaseURL, &c.LLM.BaseURL)
	envOverride(EnvLLMToken, &c.LLM.Token)
	envOverride(EnvLLMModel, &c.LLM.Model)
	envOverride(EnvRenderBaseURL, &c.Render.BaseURL)
	envOverride(EnvRenderToken, &c.Render.Token)
	envOverrideInt64(EnvDedupCacheEntries, &c.DedupCacheEntries)
}

func (c *ServicesConfig) validate() error {
	if c.Vision.BaseURL == "" {
		return fmt.Errorf("vision base_url required")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm base_url required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model required")
	}
	if c.Render.BaseURL == "" {
		return fmt.Errorf("render base_url required")
	}
	if c.DedupCacheEntries < 0 {
		return fmt.Errorf("dedup_cache_entries must be positive")
	}
	return nil
}
