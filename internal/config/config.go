package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPath is read when GENCODE_CONFIG is unset.
const DefaultPath = "gencode.toml"

type Config struct {
	Provider  ProviderConfig  `toml:"provider"`
	Generate  GenerateConfig  `toml:"generate"`
	Sandbox   SandboxConfig   `toml:"sandbox"`
	Telegram  TelegramConfig  `toml:"telegram"`
	WebSocket WebSocketConfig `toml:"websocket"`
	Server    ServerConfig    `toml:"server"`
	Observer  ObserverConfig  `toml:"observer"`
	History   HistoryConfig   `toml:"history"`
}

type ProviderConfig struct {
	Name    string `toml:"name"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Retries int    `toml:"retries"`
	Timeout int    `toml:"timeout"` // seconds
	RPM     int    `toml:"rpm"`
}

type GenerateConfig struct {
	Language    string   `toml:"language"`
	Temperature *float64 `toml:"temperature"`
	MaxTokens   *int     `toml:"max_tokens"`
	Guidelines  bool     `toml:"guidelines"`
	Concurrency int      `toml:"concurrency"`
}

type SandboxConfig struct {
	Engine    string       `toml:"engine"` // interpreter, docker or remote
	Timeout   int          `toml:"timeout"`
	MaxOutput int          `toml:"max_output"`
	MaxSteps  uint64       `toml:"max_steps"`
	Profile   string       `toml:"profile"`
	Allow     []string     `toml:"allow"`
	Docker    DockerConfig `toml:"docker"`
	Remote    RemoteConfig `toml:"remote"`
}

type DockerConfig struct {
	Image     string  `toml:"image"`
	MemoryMB  int64   `toml:"memory_mb"`
	CPUs      float64 `toml:"cpus"`
	PidsLimit int64   `toml:"pids_limit"`
}

type RemoteConfig struct {
	URL      string `toml:"url"`
	Retries  int    `toml:"retries"`
	CAFile   string `toml:"ca_file"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

type TelegramConfig struct {
	Token        string   `toml:"token"`
	AllowedUsers []string `toml:"allowed_users"`
}

type WebSocketConfig struct {
	Enabled        bool     `toml:"enabled"`
	Path           string   `toml:"path"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// ServerConfig is the HTTP listener the bot opens for the WebSocket frontend
// and health checks.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Service string                     `toml:"service"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

// HistoryConfig selects the run history store. An empty driver disables it.
type HistoryConfig struct {
	Driver string `toml:"driver"` // sqlite or postgres
	DSN    string `toml:"dsn"`    // file path for sqlite, connection string for postgres
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider: ProviderConfig{Name: "vllm", Model: "qwen2.5-coder-7b", Retries: 1, Timeout: 120},
		Generate: GenerateConfig{Language: "en", Guidelines: true, Concurrency: 4},
		Sandbox: SandboxConfig{
			Engine:    "interpreter",
			Timeout:   10,
			MaxOutput: 64 * 1024,
			MaxSteps:  50_000_000,
			Profile:   "default",
			Docker:    DockerConfig{Image: "python:3.12-alpine", MemoryMB: 128, CPUs: 0.5, PidsLimit: 64},
			Remote:    RemoteConfig{Retries: 2},
		},
		WebSocket: WebSocketConfig{Path: "/ws"},
		Server:    ServerConfig{Addr: ":8080"},
		Observer:  ObserverConfig{Service: "gencode"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
// A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("GENCODE_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Provider.Name, "GENCODE_PROVIDER")
	setString(&cfg.Provider.Model, "GENCODE_MODEL")
	setString(&cfg.Provider.APIKey, "GENCODE_API_KEY")
	setString(&cfg.Provider.BaseURL, "GENCODE_BASE_URL")
	setInt(&cfg.Provider.Retries, "GENCODE_RETRIES")
	setString(&cfg.Generate.Language, "GENCODE_LANGUAGE")
	setString(&cfg.Sandbox.Engine, "GENCODE_SANDBOX_ENGINE")
	setInt(&cfg.Sandbox.Timeout, "GENCODE_SANDBOX_TIMEOUT")
	setString(&cfg.Sandbox.Remote.URL, "GENCODE_SANDBOX_URL")
	setString(&cfg.Telegram.Token, "GENCODE_TELEGRAM_TOKEN")
	if v := os.Getenv("GENCODE_TELEGRAM_ALLOWED_USERS"); v != "" {
		cfg.Telegram.AllowedUsers = splitList(v)
	}
	setString(&cfg.Server.Addr, "GENCODE_SERVER_ADDR")
	setString(&cfg.History.Driver, "GENCODE_HISTORY_DRIVER")
	setString(&cfg.History.DSN, "GENCODE_HISTORY_DSN")
	if v := os.Getenv("GENCODE_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// Gemini keys are commonly exported under their own name.
	if cfg.Provider.APIKey == "" && cfg.Provider.Name == "gemini" {
		cfg.Provider.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
