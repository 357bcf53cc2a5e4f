package llm

import "time"

// Config points the HTTP editor at an OpenAI-compatible chat completions API.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o-mini",
		MaxTokens: 2048,
		Timeout:   60 * time.Second,
	}
}
