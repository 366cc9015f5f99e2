package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the chatvri pipeline.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Gateway   GatewayConfig             `json:"gateway"`
	Providers map[string]ProviderConfig `json:"providers"`
	Retrieval RetrievalConfig           `json:"retrieval"`
	Session   SessionConfig             `json:"session"`
	Store     StoreConfig               `json:"store"`
	Metrics   MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string   `json:"logLevel"`
	LogFile               string   `json:"logFile,omitempty"`
	MaxConcurrentMessages int      `json:"maxConcurrentMessages"`
	DefaultProvider       string   `json:"defaultProvider"`
	FailoverChain         []string `json:"failoverChain,omitempty"` // provider fallback order
	GenerateTimeoutS      int      `json:"generateTimeoutSeconds"`
	GenerateRatePerMin    float64  `json:"generateRatePerMinute"` // 0 = unlimited
	HistoryLimit          int      `json:"historyLimit"`          // exchanges included in the prompt
	ReplyMaxChars         int      `json:"replyMaxChars"`         // WhatsApp message-size limit
}

// GatewayConfig configures the WhatsApp HTTP gateway client and poller.
type GatewayConfig struct {
	APIURL              string `json:"apiUrl"`
	APIKey              string `json:"apiKey"`
	PollIntervalS       int    `json:"pollIntervalSeconds"`
	PollLimit           int    `json:"pollLimit"`
	SeenCapacity        int    `json:"seenCapacity"`
	SendMaxRetries      int    `json:"sendMaxRetries"`
	CountryPrefix       string `json:"countryPrefix"`       // completed onto 9-digit local numbers
	CooldownAfterErrors int    `json:"cooldownAfterErrors"` // consecutive poll failures before backing off
	CooldownMaxS        int    `json:"cooldownMaxSeconds"`
}

type ProviderConfig struct {
	Enabled      bool   `json:"enabled"`
	APIBase      string `json:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty"`
}

// RetrievalConfig configures the retrieval engine. The scoring weights
// make the historical heuristic variants configuration rather than code.
type RetrievalConfig struct {
	SnapshotPath     string  `json:"snapshotPath"`
	CatalogPath      string  `json:"catalogPath"` // faculty catalog + synonym table (YAML)
	EmbedBase        string  `json:"embedBase"`   // Ollama-compatible embeddings endpoint
	EmbedModel       string  `json:"embedModel"`
	TopK             int     `json:"topK"`
	ScoreThreshold   float64 `json:"scoreThreshold"`
	SimilarityWeight float64 `json:"similarityWeight"`
	CategoryBonus    float64 `json:"categoryBonus"`
	TypeBonus        float64 `json:"typeBonus"`
	KeywordBonus     float64 `json:"keywordBonus"` // per shared token
	CategoryFilter   bool    `json:"categoryFilter"`
	CacheSize        int     `json:"cacheSize"`
}

type SessionConfig struct {
	IdleMinutes   int `json:"idleMinutes"`
	SweepSeconds  int `json:"sweepSeconds"`
}

// StoreConfig selects and tunes the conversation store backend.
type StoreConfig struct {
	Driver         string `json:"driver"` // "postgres" | "sqlite"
	DSN            string `json:"dsn,omitempty"`
	DBPath         string `json:"dbPath,omitempty"`
	PoolMin        int    `json:"poolMin"`
	PoolMax        int    `json:"poolMax"`
	AcquireTimeout int    `json:"acquireTimeoutSeconds"`
	SaveRetries    int    `json:"saveRetries"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// DefaultConfigDir returns the default config directory (~/.chatvri).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatvri"
	}
	return filepath.Join(home, ".chatvri")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			MaxConcurrentMessages: 50,
			DefaultProvider:       "deepseek",
			GenerateTimeoutS:      30,
			GenerateRatePerMin:    60,
			HistoryLimit:          5,
			ReplyMaxChars:         1600,
		},
		Gateway: GatewayConfig{
			APIURL:              "http://localhost:3000",
			PollIntervalS:       3,
			PollLimit:           50,
			SeenCapacity:        1000,
			SendMaxRetries:      3,
			CountryPrefix:       "51",
			CooldownAfterErrors: 3,
			CooldownMaxS:        60,
		},
		Providers: map[string]ProviderConfig{
			"deepseek": {
				Enabled:      true,
				APIBase:      "https://api.deepseek.com/v1",
				APIKey:       "${DEEPSEEK_API_KEY}",
				DefaultModel: "deepseek-chat",
			},
			"ollama": {
				Enabled:      false,
				APIBase:      "http://localhost:11434",
				DefaultModel: "gemma3:1b",
			},
		},
		Retrieval: RetrievalConfig{
			SnapshotPath:     "~/.chatvri/knowledge_base.json",
			CatalogPath:      "~/.chatvri/catalog.yaml",
			EmbedBase:        "http://localhost:11434",
			EmbedModel:       "nomic-embed-text",
			TopK:             5,
			ScoreThreshold:   0.35,
			SimilarityWeight: 1.0,
			CategoryBonus:    0.30,
			TypeBonus:        0.15,
			KeywordBonus:     0.05,
			CategoryFilter:   true,
			CacheSize:        200,
		},
		Session: SessionConfig{
			IdleMinutes:  15,
			SweepSeconds: 60,
		},
		Store: StoreConfig{
			Driver:         "sqlite",
			DBPath:         "~/.chatvri/chatvri.db",
			PoolMin:        2,
			PoolMax:        20,
			AcquireTimeout: 10,
			SaveRetries:    2,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9090",
		},
	}
}

func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Retrieval.SnapshotPath = ExpandPath(cfg.Retrieval.SnapshotPath)
	cfg.Retrieval.CatalogPath = ExpandPath(cfg.Retrieval.CatalogPath)
	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 500 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 500")
	}
	if cfg.General.GenerateTimeoutS < 1 {
		errs = append(errs, "general.generateTimeoutSeconds must be >= 1")
	}
	if cfg.General.HistoryLimit < 0 {
		errs = append(errs, "general.historyLimit must be >= 0")
	}
	if cfg.General.ReplyMaxChars < 1 {
		errs = append(errs, "general.replyMaxChars must be >= 1")
	}

	if cfg.Gateway.APIURL == "" {
		errs = append(errs, "gateway.apiUrl is required")
	}
	if cfg.Gateway.PollIntervalS < 1 {
		errs = append(errs, "gateway.pollIntervalSeconds must be >= 1")
	}
	if cfg.Gateway.PollLimit < 1 {
		errs = append(errs, "gateway.pollLimit must be >= 1")
	}
	if cfg.Gateway.SeenCapacity < 1 {
		errs = append(errs, "gateway.seenCapacity must be >= 1")
	}
	if cfg.Gateway.SendMaxRetries < 0 {
		errs = append(errs, "gateway.sendMaxRetries must be >= 0")
	}

	if cfg.Retrieval.TopK < 1 {
		errs = append(errs, "retrieval.topK must be >= 1")
	}
	if cfg.Retrieval.ScoreThreshold < 0 {
		errs = append(errs, "retrieval.scoreThreshold must be >= 0")
	}
	if cfg.Retrieval.CacheSize < 1 {
		errs = append(errs, "retrieval.cacheSize must be >= 1")
	}

	if cfg.Session.IdleMinutes < 1 {
		errs = append(errs, "session.idleMinutes must be >= 1")
	}
	if cfg.Session.SweepSeconds < 1 {
		errs = append(errs, "session.sweepSeconds must be >= 1")
	}

	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DSN == "" {
			errs = append(errs, "store.dsn is required for the postgres driver")
		}
	case "sqlite":
		if cfg.Store.DBPath == "" {
			errs = append(errs, "store.dbPath is required for the sqlite driver")
		}
	default:
		errs = append(errs, "store.driver must be one of: postgres, sqlite")
	}
	if cfg.Store.PoolMax < 1 {
		errs = append(errs, "store.poolMax must be >= 1")
	}
	if cfg.Store.PoolMin < 0 || cfg.Store.PoolMin > cfg.Store.PoolMax {
		errs = append(errs, "store.poolMin must be between 0 and store.poolMax")
	}
	if cfg.Store.SaveRetries < 0 {
		errs = append(errs, "store.saveRetries must be >= 0")
	}

	// Validate failover chain references exist in providers.
	for _, provName := range cfg.General.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown provider: %s", provName))
		}
	}

	for name, pc := range cfg.Providers {
		if pc.Enabled && pc.APIBase == "" && name != "ollama" {
			errs = append(errs, fmt.Sprintf("providers.%s: apiBase is required", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
