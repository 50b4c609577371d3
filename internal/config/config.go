// Package config loads Trace's ambient configuration: state/blob paths,
// capture/triage/summarizer tuning, scheduler and supervisor timing, and
// which LLM/embedding provider to talk to.
//
// Grounded on vthunder-bud2's cmd/bud/main.go startup sequence: an
// optional .env file loaded via godotenv, then plain os.Getenv reads
// with string defaults, numeric/duration values parsed with
// time.ParseDuration/strconv.Atoi and a graceful fallback to the
// default on a parse error rather than a fatal exit, and a single
// fatal check for the one setting that has no sane default (here, an
// LLM API key when the configured provider needs one).
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/tracehq/trace/internal/capture"
	"github.com/tracehq/trace/internal/triage"
)

// Config is every environment-derived setting Trace's entrypoints need
// to wire up the capture pipeline, scheduler, supervisor, and LLM
// clients.
type Config struct {
	StatePath string // TRACE_STATE_PATH, default "state"

	Capture capture.Config
	Triage  triage.Config

	SchedulerDailyAt        time.Duration // TRACE_DAILY_AT, default 03:00 offset from midnight
	SupervisorInterval      time.Duration // TRACE_SUPERVISOR_INTERVAL, default 60s
	SupervisorMaxRestarts   int           // TRACE_MAX_RESTART_ATTEMPTS, default 3
	SummarizerParallelism   int           // TRACE_SUMMARIZER_PARALLELISM, default 1
	BackfillLookback        time.Duration // TRACE_BACKFILL_LOOKBACK, default 168h (7 days)
	BackfillMinActivity     int           // TRACE_BACKFILL_MIN_ACTIVITY, default 1

	LLMProvider       string // TRACE_LLM_PROVIDER: "ollama" (default) or "anthropic"
	LLMAPIKey         string // TRACE_LLM_API_KEY, required when LLMProvider != "ollama"
	LLMModel          string // TRACE_LLM_MODEL, provider-specific default if empty
	OllamaBaseURL     string // TRACE_OLLAMA_URL, default http://localhost:11434
	OllamaEmbedModel  string // TRACE_OLLAMA_EMBED_MODEL, default "" (client applies nomic-embed-text)
	EmbeddingProvider string // TRACE_EMBEDDING_PROVIDER, default "ollama"
}

// Load reads .env (if present) and the environment into a Config,
// falling back to spec defaults for anything unset or unparseable.
// It does not validate that a required LLM API key is present; call
// RequireLLMCredentials for that once the provider choice is final.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] no .env file found, using environment variables")
	} else {
		log.Println("[config] loaded .env file")
	}

	statePath := getenvDefault("TRACE_STATE_PATH", "state")

	cfg := Config{
		StatePath: statePath,
		Capture:   capture.DefaultConfig(),
		Triage:    triage.DefaultConfig(),

		SchedulerDailyAt:      3 * time.Hour,
		SupervisorInterval:    60 * time.Second,
		SupervisorMaxRestarts: 3,
		SummarizerParallelism: 1,
		BackfillLookback:      7 * 24 * time.Hour,
		BackfillMinActivity:   1,

		LLMProvider:       getenvDefault("TRACE_LLM_PROVIDER", "ollama"),
		LLMAPIKey:         os.Getenv("TRACE_LLM_API_KEY"),
		LLMModel:          os.Getenv("TRACE_LLM_MODEL"),
		OllamaBaseURL:     getenvDefault("TRACE_OLLAMA_URL", "http://localhost:11434"),
		OllamaEmbedModel:  os.Getenv("TRACE_OLLAMA_EMBED_MODEL"),
		EmbeddingProvider: getenvDefault("TRACE_EMBEDDING_PROVIDER", "ollama"),
	}

	if v := os.Getenv("TRACE_TICK_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Capture.TickPeriod = d
		} else {
			log.Printf("[config] invalid TRACE_TICK_PERIOD %q, using default %s", v, cfg.Capture.TickPeriod)
		}
	}
	if v := os.Getenv("TRACE_DEDUP_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Capture.DedupThreshold = n
		} else {
			log.Printf("[config] invalid TRACE_DEDUP_THRESHOLD %q, using default %d", v, cfg.Capture.DedupThreshold)
		}
	}
	if v := os.Getenv("TRACE_JPEG_QUALITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Capture.JPEGQuality = n
		} else {
			log.Printf("[config] invalid TRACE_JPEG_QUALITY %q, using default %d", v, cfg.Capture.JPEGQuality)
		}
	}
	if v := os.Getenv("TRACE_LOCATION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Capture.LocationInterval = d
		} else {
			log.Printf("[config] invalid TRACE_LOCATION_INTERVAL %q, using default %s", v, cfg.Capture.LocationInterval)
		}
	}

	if v := os.Getenv("TRACE_DAILY_AT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SchedulerDailyAt = d
		} else {
			log.Printf("[config] invalid TRACE_DAILY_AT %q, using default %s", v, cfg.SchedulerDailyAt)
		}
	}
	if v := os.Getenv("TRACE_SUPERVISOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SupervisorInterval = d
		} else {
			log.Printf("[config] invalid TRACE_SUPERVISOR_INTERVAL %q, using default %s", v, cfg.SupervisorInterval)
		}
	}
	if v := os.Getenv("TRACE_MAX_RESTART_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SupervisorMaxRestarts = n
		} else {
			log.Printf("[config] invalid TRACE_MAX_RESTART_ATTEMPTS %q, using default %d", v, cfg.SupervisorMaxRestarts)
		}
	}
	if v := os.Getenv("TRACE_SUMMARIZER_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SummarizerParallelism = n
		} else {
			log.Printf("[config] invalid TRACE_SUMMARIZER_PARALLELISM %q, using default %d", v, cfg.SummarizerParallelism)
		}
	}
	if v := os.Getenv("TRACE_BACKFILL_LOOKBACK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BackfillLookback = d
		} else {
			log.Printf("[config] invalid TRACE_BACKFILL_LOOKBACK %q, using default %s", v, cfg.BackfillLookback)
		}
	}
	if v := os.Getenv("TRACE_BACKFILL_MIN_ACTIVITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BackfillMinActivity = n
		} else {
			log.Printf("[config] invalid TRACE_BACKFILL_MIN_ACTIVITY %q, using default %d", v, cfg.BackfillMinActivity)
		}
	}

	if v := os.Getenv("TRACE_DIVERSITY_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Triage.DiversityWindow = d
		} else {
			log.Printf("[config] invalid TRACE_DIVERSITY_WINDOW %q, using default %s", v, cfg.Triage.DiversityWindow)
		}
	}
	if v := os.Getenv("TRACE_ANCHOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Triage.AnchorInterval = d
		} else {
			log.Printf("[config] invalid TRACE_ANCHOR_INTERVAL %q, using default %s", v, cfg.Triage.AnchorInterval)
		}
	}
	if v := os.Getenv("TRACE_MAX_KEYFRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Triage.MaxKeyframes = n
		} else {
			log.Printf("[config] invalid TRACE_MAX_KEYFRAMES %q, using default %d", v, cfg.Triage.MaxKeyframes)
		}
	}

	if err := os.MkdirAll(cfg.StatePath, 0o755); err != nil {
		return Config{}, fmt.Errorf("config: create state dir: %w", err)
	}

	return cfg, nil
}

// RequireLLMCredentials fails fast when the configured LLM provider
// needs an API key that was never set, mirroring the teacher's single
// fatal-if-required-and-missing check for DISCORD_TOKEN.
func (c Config) RequireLLMCredentials() error {
	if c.LLMProvider != "ollama" && c.LLMAPIKey == "" {
		return fmt.Errorf("config: TRACE_LLM_API_KEY is required for provider %q", c.LLMProvider)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
