// Package config holds the closed configuration surface from spec.md §6:
// execution bounds, cache backend selection, broadcaster queue sizing, git
// defaults, and LLM binding. Config is YAML-tagged and loaded the way the
// teacher repo's internal/config loads its own Config: DefaultConfig()
// first, then an optional file overlay, then environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mgxlabs/orchestrator/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config holds every recognized orchestrator option.
type Config struct {
	Execution   ExecutionConfig   `yaml:"execution"`
	Cache       CacheConfig       `yaml:"cache"`
	Broadcaster BroadcasterConfig `yaml:"broadcaster"`
	Git         GitConfig         `yaml:"git"`
	LLM         LLMConfig         `yaml:"llm"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ExecutionConfig bounds the run state machine and team orchestrator.
type ExecutionConfig struct {
	MaxRounds              int `yaml:"max_rounds"`
	MaxRevisionRounds      int `yaml:"max_revision_rounds"`
	MemorySize             int `yaml:"memory_size"`
	ApprovalTimeoutSeconds int `yaml:"approval_timeout_seconds"`
	RunTimeoutSeconds      int `yaml:"run_timeout_seconds"`
	ConcurrencyCap         int `yaml:"concurrency_cap"`
}

// CacheBackend is the closed set of pluggable cache implementations.
type CacheBackend string

const (
	CacheNull           CacheBackend = "null"
	CacheInMemoryLRUTTL CacheBackend = "in_memory_lru_ttl"
	CacheRemoteKV       CacheBackend = "remote_keyvalue"
)

// CacheConfig configures the LLM response cache.
type CacheConfig struct {
	Enabled    bool         `yaml:"enable_caching"`
	Backend    CacheBackend `yaml:"cache_backend"`
	MaxEntries int          `yaml:"cache_max_entries"`
	TTLSeconds int          `yaml:"cache_ttl_seconds"`
	RemoteURL  string       `yaml:"remote_url"`
}

// BroadcasterConfig configures the event broadcaster.
type BroadcasterConfig struct {
	SubscriberQueueCapacity int `yaml:"subscriber_queue_capacity"`
}

// GitConfig configures the git hooks (branch naming, commit template, push retries).
type GitConfig struct {
	RunBranchPrefix   string `yaml:"run_branch_prefix"`
	CommitTemplate    string `yaml:"commit_template"`
	PushMaxAttempts   int    `yaml:"push_max_attempts"`
	PushBackoffBaseMs int    `yaml:"push_backoff_base_ms"`
}

// DefaultConfig returns the documented defaults from spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		Execution: ExecutionConfig{
			MaxRounds:              5,
			MaxRevisionRounds:      2,
			MemorySize:             50,
			ApprovalTimeoutSeconds: 300,
			RunTimeoutSeconds:      1800,
			ConcurrencyCap:         100,
		},
		Cache: CacheConfig{
			Enabled:    true,
			Backend:    CacheInMemoryLRUTTL,
			MaxEntries: 1024,
			TTLSeconds: 3600,
		},
		Broadcaster: BroadcasterConfig{
			SubscriberQueueCapacity: 100,
		},
		Git: GitConfig{
			RunBranchPrefix:   "mgx",
			CommitTemplate:    "MGX Task: {task_name} - Run #{run_number}",
			PushMaxAttempts:   3,
			PushBackoffBaseMs: 500,
		},
		LLM: LLMConfig{
			Provider:  "genai",
			APIKeyEnv: "GENAI_API_KEY",
			Model:     "gemini-2.0-flash",
			Timeout:   "120s",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Dir:       ".mgx/logs",
			DebugMode: false,
		},
	}
}

// Load reads path (if non-empty and present) over DefaultConfig, then
// applies environment overrides via ApplyEnv. A missing path is not an
// error — callers run on defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				logging.Get(logging.CategoryBoot).Error("failed to parse config %s: %v", path, err)
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			logging.Get(logging.CategoryBoot).Info("config loaded from %s", path)
		case os.IsNotExist(err):
			logging.Get(logging.CategoryBoot).Info("config file not found, using defaults: %s", path)
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.Environ())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnv overlays MGX_*-prefixed environment variables onto cfg. Unknown
// keys are ignored; this mirrors the teacher's env-override layer over a
// much smaller, closed key set.
func (c *Config) ApplyEnv(environ []string) {
	lookup := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			lookup[k] = v
		}
	}

	setInt := func(key string, dst *int) {
		if v, ok := lookup[key]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setInt("MGX_MAX_ROUNDS", &c.Execution.MaxRounds)
	setInt("MGX_MAX_REVISION_ROUNDS", &c.Execution.MaxRevisionRounds)
	setInt("MGX_MEMORY_SIZE", &c.Execution.MemorySize)
	setInt("MGX_APPROVAL_TIMEOUT_SECONDS", &c.Execution.ApprovalTimeoutSeconds)
	setInt("MGX_RUN_TIMEOUT_SECONDS", &c.Execution.RunTimeoutSeconds)
	setInt("MGX_CONCURRENCY_CAP", &c.Execution.ConcurrencyCap)
	setInt("MGX_CACHE_MAX_ENTRIES", &c.Cache.MaxEntries)
	setInt("MGX_CACHE_TTL_SECONDS", &c.Cache.TTLSeconds)
	setInt("MGX_SUBSCRIBER_QUEUE_CAPACITY", &c.Broadcaster.SubscriberQueueCapacity)
	setInt("MGX_PUSH_MAX_ATTEMPTS", &c.Git.PushMaxAttempts)

	if v, ok := lookup["MGX_CACHE_BACKEND"]; ok {
		c.Cache.Backend = CacheBackend(v)
	}
	if v, ok := lookup["MGX_REMOTE_CACHE_URL"]; ok {
		c.Cache.RemoteURL = v
	}
	if v, ok := lookup["MGX_ENABLE_CACHING"]; ok {
		c.Cache.Enabled = v == "1" || v == "true"
	}
	if v, ok := lookup["MGX_RUN_BRANCH_PREFIX"]; ok {
		c.Git.RunBranchPrefix = v
	}
	if v, ok := lookup["MGX_COMMIT_TEMPLATE"]; ok {
		c.Git.CommitTemplate = v
	}
	if v, ok := lookup["MGX_LLM_PROVIDER"]; ok {
		c.LLM.Provider = v
	}
	if v, ok := lookup["MGX_LLM_MODEL"]; ok {
		c.LLM.Model = v
	}
	if v, ok := lookup["MGX_DEBUG"]; ok {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
	if v, ok := lookup["MGX_LOG_LEVEL"]; ok {
		c.Logging.Level = v
	}
}

// Validate rejects configurations the executor could not safely run with.
func (c *Config) Validate() error {
	if c.Execution.MaxRounds < 1 {
		return fmt.Errorf("execution.max_rounds must be >= 1")
	}
	if c.Execution.MaxRevisionRounds < 0 {
		return fmt.Errorf("execution.max_revision_rounds must be >= 0")
	}
	if c.Execution.ConcurrencyCap < 1 {
		return fmt.Errorf("execution.concurrency_cap must be >= 1")
	}
	if c.Execution.ApprovalTimeoutSeconds < 1 {
		return fmt.Errorf("execution.approval_timeout_seconds must be >= 1")
	}
	if c.Execution.RunTimeoutSeconds < 1 {
		return fmt.Errorf("execution.run_timeout_seconds must be >= 1")
	}
	switch c.Cache.Backend {
	case CacheNull, CacheInMemoryLRUTTL, CacheRemoteKV:
	default:
		return fmt.Errorf("cache.cache_backend %q is not recognized", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheRemoteKV && c.Cache.RemoteURL == "" {
		return fmt.Errorf("cache.remote_url is required when cache_backend is remote_keyvalue")
	}
	if c.Broadcaster.SubscriberQueueCapacity < 1 {
		return fmt.Errorf("broadcaster.subscriber_queue_capacity must be >= 1")
	}
	if c.Git.PushMaxAttempts < 1 {
		return fmt.Errorf("git.push_max_attempts must be >= 1")
	}
	return nil
}
