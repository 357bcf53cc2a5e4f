package worker

import "time"

// Config tunes the simulated stages.
type Config struct {
	// StageDelay is the time each pipeline stage takes.
	StageDelay time.Duration
	// SkillDelay is the time a skill job spends generating.
	SkillDelay time.Duration
	// ScrapeWebsites fetches the configured business website during the
	// GBP_SCRAPED stage instead of only recording its url.
	ScrapeWebsites bool
	// ScrapeTimeout bounds one website fetch.
	ScrapeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		StageDelay:    2 * time.Second,
		SkillDelay:    3 * time.Second,
		ScrapeTimeout: 15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.StageDelay <= 0 {
		c.StageDelay = def.StageDelay
	}
	if c.SkillDelay <= 0 {
		c.SkillDelay = def.SkillDelay
	}
	if c.ScrapeTimeout <= 0 {
		c.ScrapeTimeout = def.ScrapeTimeout
	}
	return c
}
