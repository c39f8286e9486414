// Package config resolves scamintel settings from the config file, the
// environment and command-line flags, recording where each value came from.
// Precedence, lowest first: built-in default, config file, .env, environment, CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// Set reports whether the value was supplied by any source.
func (v ResolvedValue) Set() bool {
	return strings.TrimSpace(v.Value) != ""
}

// Int parses the value as an integer, returning def when unset.
func (v ResolvedValue) Int(def int) (int, error) {
	if !v.Set() {
		return def, nil
	}
	n, err := strconv.Atoi(v.Value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q from %s: %w", v.Value, v.From, err)
	}
	return n, nil
}

// Duration parses a Go duration ("90s", "1h"), or a bare integer as
// milliseconds. def is returned when unset.
func (v ResolvedValue) Duration(def time.Duration) (time.Duration, error) {
	if !v.Set() {
		return def, nil
	}
	if ms, err := strconv.Atoi(v.Value); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v.Value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q from %s: %w", v.Value, v.From, err)
	}
	return d, nil
}

type ResolveOptions struct {
	ConfigPath string
	DotEnvPath string // "" tries ./.env

	CLILLM          string
	CLILLMTimeout   string
	CLISessionStore string
	CLIRedisURL     string
	CLIDBPath       string
	CLIHandlePolicy string
	CLICallbackURL  string
	CLILogLevel     string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`
	DotEnvPath string `json:"dotenv_path,omitempty"`

	LLM           ResolvedValue `json:"llm"`
	LLMBaseURL    ResolvedValue `json:"llm_base_url"`
	LLMTimeout    ResolvedValue `json:"llm_timeout"`
	HistoryWindow ResolvedValue `json:"history_window"`
	LLMCacheSize  ResolvedValue `json:"llm_cache_size"`

	SessionStore ResolvedValue `json:"session_store"`
	RedisURL     ResolvedValue `json:"redis_url"`
	DBPath       ResolvedValue `json:"db_path"`
	SessionTTL   ResolvedValue `json:"session_ttl"`

	HandlePolicy   ResolvedValue `json:"handle_policy"`
	PaymentHandles []string      `json:"payment_handles,omitempty"`
	Keywords       []string      `json:"keywords,omitempty"`

	CallbackURL     ResolvedValue     `json:"callback_url"`
	CallbackHeaders map[string]string `json:"-"`

	LogLevel ResolvedValue `json:"log_level"`

	LLMKeys map[string]ResolvedValue `json:"-"`
}

type fileConfig struct {
	LogLevel string `yaml:"log_level"`
	LLM      struct {
		Provider      string `yaml:"provider"`
		APIKey        string `yaml:"api_key"`
		BaseURL       string `yaml:"base_url"`
		TimeoutMS     int    `yaml:"timeout_ms"`
		HistoryWindow int    `yaml:"history_window"`
		CacheSize     int    `yaml:"cache_size"`
	} `yaml:"llm"`
	Session struct {
		Store      string `yaml:"store"`
		RedisURL   string `yaml:"redis_url"`
		SQLitePath string `yaml:"sqlite_path"`
		TTL        string `yaml:"ttl"`
	} `yaml:"session"`
	Extract struct {
		HandlePolicy   string   `yaml:"handle_policy"`
		PaymentHandles []string `yaml:"payment_handles"`
		Keywords       []string `yaml:"keywords"`
	} `yaml:"extract"`
	Report struct {
		CallbackURL string            `yaml:"callback_url"`
		Headers     map[string]string `yaml:"headers"`
	} `yaml:"report"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".scamintel", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.LogLevel, cfg.LogLevel, SourceConfig, path)
		apply(&out.LLM, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.LLMBaseURL, cfg.LLM.BaseURL, SourceConfig, path)
		if cfg.LLM.TimeoutMS > 0 {
			apply(&out.LLMTimeout, strconv.Itoa(cfg.LLM.TimeoutMS), SourceConfig, path)
		}
		if cfg.LLM.HistoryWindow > 0 {
			apply(&out.HistoryWindow, strconv.Itoa(cfg.LLM.HistoryWindow), SourceConfig, path)
		}
		if cfg.LLM.CacheSize > 0 {
			apply(&out.LLMCacheSize, strconv.Itoa(cfg.LLM.CacheSize), SourceConfig, path)
		}
		apply(&out.SessionStore, cfg.Session.Store, SourceConfig, path)
		apply(&out.RedisURL, cfg.Session.RedisURL, SourceConfig, path)
		apply(&out.DBPath, cfg.Session.SQLitePath, SourceConfig, path)
		apply(&out.SessionTTL, cfg.Session.TTL, SourceConfig, path)
		apply(&out.HandlePolicy, cfg.Extract.HandlePolicy, SourceConfig, path)
		apply(&out.CallbackURL, cfg.Report.CallbackURL, SourceConfig, path)
		out.PaymentHandles = cleanList(cfg.Extract.PaymentHandles)
		out.Keywords = cleanList(cfg.Extract.Keywords)
		out.CallbackHeaders = cfg.Report.Headers

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			p := providerOf(cfg.LLM.Provider)
			if p == "" {
				p = "default"
			}
			out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	// .env never overrides variables already present in the environment.
	dotenv := strings.TrimSpace(opts.DotEnvPath)
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err == nil {
		out.DotEnvPath = dotenv
	} else if opts.DotEnvPath != "" || !errors.Is(err, fs.ErrNotExist) {
		return out, fmt.Errorf("loading %s: %w", dotenv, err)
	}

	applyEnv(&out.LogLevel, "SCAMINTEL_LOG_LEVEL")
	applyEnv(&out.LLM, "SCAMINTEL_LLM")
	applyEnv(&out.LLMBaseURL, "SCAMINTEL_LLM_BASE_URL")
	applyEnv(&out.LLMTimeout, "SCAMINTEL_LLM_TIMEOUT_MS")
	applyEnv(&out.HistoryWindow, "SCAMINTEL_HISTORY_WINDOW")
	applyEnv(&out.LLMCacheSize, "SCAMINTEL_LLM_CACHE_SIZE")
	applyEnv(&out.SessionStore, "SCAMINTEL_SESSION_STORE")
	applyEnv(&out.RedisURL, "REDIS_URL")
	applyEnv(&out.RedisURL, "SCAMINTEL_REDIS_URL")
	applyEnv(&out.DBPath, "SCAMINTEL_DB")
	applyEnv(&out.SessionTTL, "SCAMINTEL_SESSION_TTL")
	applyEnv(&out.HandlePolicy, "SCAMINTEL_HANDLE_POLICY")
	applyEnv(&out.CallbackURL, "SCAMINTEL_CALLBACK_URL")
	if v := strings.TrimSpace(os.Getenv("SCAMINTEL_PAYMENT_HANDLES")); v != "" {
		out.PaymentHandles = append(out.PaymentHandles, cleanList(strings.Split(v, ","))...)
	}

	// Later entries win when several variables name the same provider.
	for _, e := range []struct{ env, provider string }{
		{"OPENAI_API_KEY", "openai"},
		{"GROK_API_KEY", "groq"},
		{"GROQ_API_KEY", "groq"},
		{"OPENROUTER_API_KEY", "openrouter"},
		{"GOOGLE_API_KEY", "google"},
		{"GEMINI_API_KEY", "google"},
		{"SCAMINTEL_LLM_API_KEY", "custom"},
	} {
		if v := strings.TrimSpace(os.Getenv(e.env)); v != "" {
			out.LLMKeys[e.provider] = ResolvedValue{Value: v, Source: SourceEnv, From: e.env}
		}
	}

	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")
	apply(&out.LLM, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.LLMTimeout, opts.CLILLMTimeout, SourceCLI, "--llm-timeout")
	apply(&out.SessionStore, opts.CLISessionStore, SourceCLI, "--session-store")
	apply(&out.RedisURL, opts.CLIRedisURL, SourceCLI, "--redis-url")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.HandlePolicy, opts.CLIHandlePolicy, SourceCLI, "--handle-policy")
	apply(&out.CallbackURL, opts.CLICallbackURL, SourceCLI, "--callback-url")

	applyDefault(&out.LLM, "off")
	applyDefault(&out.SessionStore, "memory")
	applyDefault(&out.HandlePolicy, "upi")
	applyDefault(&out.LogLevel, "info")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, nil
}

// LLMEnabled reports whether an external extractor should be configured.
func (r ResolvedConfig) LLMEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(r.LLM.Value)) {
	case "", "off", "none", "pattern":
		return false
	}
	return true
}

// APIKeyForProvider returns the key for a provider (or "provider/model").
func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func applyDefault(dst *ResolvedValue, v string) {
	if dst.Set() {
		return
	}
	*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func cleanList(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
