// Package config assembles the dev server configuration from defaults, an
// optional .env file and SITEBUILDER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Hamiltonwise/signalsai-sub006/internal/llm"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/server"
	"github.com/Hamiltonwise/signalsai-sub006/internal/skills"
	"github.com/Hamiltonwise/signalsai-sub006/internal/store"
	"github.com/Hamiltonwise/signalsai-sub006/internal/worker"
)

var ErrInvalid = errors.New("invalid configuration value")

const envPrefix = "SITEBUILDER_"

// Poll sets the client side poll cadence.
type Poll struct {
	PipelineInterval time.Duration
	SkillInterval    time.Duration
	SkillMaxAttempts int
}

type Log struct {
	Level string
}

type Config struct {
	Server server.Config
	Store  store.Config
	Worker worker.Config
	LLM    llm.Config
	Poll   Poll
	Log    Log
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	sk := skills.DefaultConfig()
	return Config{
		Server: server.DefaultConfig(),
		Store:  store.DefaultConfig(),
		Worker: worker.DefaultConfig(),
		LLM:    llm.DefaultConfig(),
		Poll: Poll{
			PipelineInterval: pipeline.DefaultPollInterval,
			SkillInterval:    sk.PollInterval,
			SkillMaxAttempts: sk.MaxAttempts,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads envFile when it exists and overlays the process environment on
// top; a variable set in the environment wins over the file. An empty
// envFile skips the file.
func Load(envFile string) (Config, error) {
	vars := map[string]string{}
	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read %s: %w", envFile, err)
		default:
			vars = fileVars
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}
	return FromLookup(lookup)
}

// FromLookup builds a Config from defaults and the variables lookup reports.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	r := reader{lookup: lookup}

	r.str("ADDR", &cfg.Server.ListenAddr)
	r.list("ALLOWED_ORIGINS", &cfg.Server.AllowedOrigins)

	r.str("DATA_DIR", &cfg.Store.Dir)
	r.str("DB_DSN", &cfg.Store.DSN)

	r.duration("STAGE_DELAY", &cfg.Worker.StageDelay)
	r.duration("SKILL_DELAY", &cfg.Worker.SkillDelay)
	r.boolean("SCRAPE_WEBSITES", &cfg.Worker.ScrapeWebsites)
	r.duration("SCRAPE_TIMEOUT", &cfg.Worker.ScrapeTimeout)

	r.str("LLM_BASE_URL", &cfg.LLM.BaseURL)
	r.str("LLM_API_KEY", &cfg.LLM.APIKey)
	if cfg.LLM.APIKey == "" {
		if v, ok := lookup("OPENAI_API_KEY"); ok {
			cfg.LLM.APIKey = strings.TrimSpace(v)
		}
	}
	r.str("LLM_MODEL", &cfg.LLM.Model)
	r.integer("LLM_MAX_TOKENS", &cfg.LLM.MaxTokens)
	r.duration("LLM_TIMEOUT", &cfg.LLM.Timeout)

	r.duration("POLL_INTERVAL", &cfg.Poll.PipelineInterval)
	r.duration("SKILL_POLL_INTERVAL", &cfg.Poll.SkillInterval)
	r.integer("SKILL_MAX_ATTEMPTS", &cfg.Poll.SkillMaxAttempts)

	r.str("LOG_LEVEL", &cfg.Log.Level)

	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	return cfg, nil
}

// reader collects parse errors so one bad variable does not hide the next.
type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) get(key string) (string, bool) {
	v, ok := r.lookup(envPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *reader) list(key string, dst *[]string) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (r *reader) integer(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%w: %s%s=%q wants a positive integer", ErrInvalid, envPrefix, key, v))
		return
	}
	*dst = n
}

func (r *reader) boolean(key string, dst *bool) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %s%s=%q wants true or false", ErrInvalid, envPrefix, key, v))
		return
	}
	*dst = b
}

func (r *reader) duration(key string, dst *time.Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%w: %s%s=%q wants a positive duration", ErrInvalid, envPrefix, key, v))
		return
	}
	*dst = d
}
