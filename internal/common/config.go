package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Browser     BrowserConfig   `toml:"browser"`
	Source      SourceConfig    `toml:"source"`
	Assets      AssetsConfig    `toml:"assets"`
	Imports     ImportsConfig   `toml:"imports"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Mailer      MailerConfig    `toml:"mailer"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// CrawlerConfig contains settings shared by every acquisition strategy
type CrawlerConfig struct {
	UserAgent      string        `toml:"user_agent"`      // User agent for outbound requests
	RequestDelay   time.Duration `toml:"request_delay"`   // Politeness delay between requests to the target
	RandomDelay    time.Duration `toml:"random_delay"`    // Random jitter added to the politeness delay
	RequestTimeout time.Duration `toml:"request_timeout"` // Per-request timeout
	MaxBodySize    int           `toml:"max_body_size"`   // Maximum response body size in bytes
	DefaultBudget  int           `toml:"default_budget"`  // Default page budget when a job does not set one
	MaxBudget      int           `toml:"max_budget"`      // Hard ceiling on a job's page budget
	StrictClasses  bool          `toml:"strict_classes"`  // Include sorted class lists in structural fingerprints
}

// BrowserConfig contains headless-browser rendering configuration
type BrowserConfig struct {
	Headless      bool          `toml:"headless"`       // Run Chrome headless (disable for debugging)
	HydrationWait time.Duration `toml:"hydration_wait"` // Settle time after navigation before capture
	ScrollSteps   int           `toml:"scroll_steps"`   // Number of progressive scroll increments per page
	ScrollPause   time.Duration `toml:"scroll_pause"`   // Pause between scroll increments
	ClickTimeout  time.Duration `toml:"click_timeout"`  // Timeout for in-page navigation clicks
	NavTimeout    time.Duration `toml:"nav_timeout"`    // Timeout for hard navigations
}

// SourceConfig contains source-repository acquisition configuration
type SourceConfig struct {
	GithubToken string `toml:"github_token"` // Optional GitHub token for private repositories
}

// AssetsConfig contains media sideloading configuration
type AssetsConfig struct {
	Dir             string        `toml:"dir"`              // Local directory for downloaded assets
	PublicPrefix    string        `toml:"public_prefix"`    // Path prefix rewritten into content (default: "/assets")
	DownloadTimeout time.Duration `toml:"download_timeout"` // Per-asset download timeout
	MaxSize         int64         `toml:"max_size"`         // Maximum asset size in bytes
}

// ImportsConfig contains import pipeline defaults
type ImportsConfig struct {
	PresetsPath      string `toml:"presets_path"`      // YAML file with named import presets
	ValidationSample int    `toml:"validation_sample"` // Held-out group members checked per selector (default: 5)
	TransformDefault bool   `toml:"transform_default"` // Run the transformation phase unless the job opts out
	StaleAfter       string `toml:"stale_after"`       // Mark running jobs failed when the heartbeat is older than this
}

// SchedulerConfig controls cron-driven recurring imports
type SchedulerConfig struct {
	Enabled bool `toml:"enabled"`
}

// MailerConfig controls completion-notification email
type MailerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`     // SMTP host
	Port     int    `toml:"port"`     // SMTP port
	Username string `toml:"username"` // SMTP auth username
	Password string `toml:"password"` // SMTP auth password
	From     string `toml:"from"`     // Sender address
	To       string `toml:"to"`       // Recipient for job notifications
}

// WebSocketConfig contains configuration for WebSocket event streaming
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	// Whitelist of event types to broadcast via WebSocket. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for structural analysis (default: "gemini-3-flash-preview")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "4s" for 15 RPM)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.2)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Model for structural analysis (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.2)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // Default provider: "claude" or "gemini" (default: "claude")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in migro.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Crawler: CrawlerConfig{
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestDelay:   1 * time.Second,
			RandomDelay:    500 * time.Millisecond,
			RequestTimeout: 30 * time.Second,
			MaxBodySize:    10 * 1024 * 1024, // 10MB
			DefaultBudget:  50,
			MaxBudget:      500,
			StrictClasses:  false,
		},
		Browser: BrowserConfig{
			Headless:      true,
			HydrationWait: 3 * time.Second,
			ScrollSteps:   6,
			ScrollPause:   400 * time.Millisecond,
			ClickTimeout:  5 * time.Second,
			NavTimeout:    30 * time.Second,
		},
		Source: SourceConfig{
			GithubToken: "", // Public repositories work without a token
		},
		Assets: AssetsConfig{
			Dir:             "./data/assets",
			PublicPrefix:    "/assets",
			DownloadTimeout: 30 * time.Second,
			MaxSize:         25 * 1024 * 1024, // 25MB
		},
		Imports: ImportsConfig{
			PresetsPath:      "./presets.yaml",
			ValidationSample: 5,
			TransformDefault: true,
			StaleAfter:       "10m",
		},
		Scheduler: SchedulerConfig{
			Enabled: false, // Disabled by default - user must explicitly opt-in
		},
		Mailer: MailerConfig{
			Enabled: false,
			Port:    587,
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info",
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"HTTP response",
				"Publishing event",
			},
			AllowedEvents: []string{},
			ThrottleIntervals: map[string]string{
				"import_progress": "1s", // Max 1 progress update per second per job
			},
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-3-flash-preview",
			Timeout:     "5m",
			RateLimit:   "4s",
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "5m",
			RateLimit:   "1s",
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MIGRO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("MIGRO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("MIGRO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("MIGRO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if reset := os.Getenv("MIGRO_BADGER_RESET"); reset != "" {
		if r, err := strconv.ParseBool(reset); err == nil {
			config.Storage.Badger.ResetOnStartup = r
		}
	}

	// Logging configuration
	if level := os.Getenv("MIGRO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("MIGRO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("MIGRO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Crawler configuration
	if userAgent := os.Getenv("MIGRO_CRAWLER_USER_AGENT"); userAgent != "" {
		config.Crawler.UserAgent = userAgent
	}
	if requestDelay := os.Getenv("MIGRO_CRAWLER_REQUEST_DELAY"); requestDelay != "" {
		if rd, err := time.ParseDuration(requestDelay); err == nil {
			config.Crawler.RequestDelay = rd
		}
	}
	if requestTimeout := os.Getenv("MIGRO_CRAWLER_REQUEST_TIMEOUT"); requestTimeout != "" {
		if rt, err := time.ParseDuration(requestTimeout); err == nil {
			config.Crawler.RequestTimeout = rt
		}
	}
	if budget := os.Getenv("MIGRO_CRAWLER_DEFAULT_BUDGET"); budget != "" {
		if b, err := strconv.Atoi(budget); err == nil {
			config.Crawler.DefaultBudget = b
		}
	}
	if maxBudget := os.Getenv("MIGRO_CRAWLER_MAX_BUDGET"); maxBudget != "" {
		if b, err := strconv.Atoi(maxBudget); err == nil {
			config.Crawler.MaxBudget = b
		}
	}
	if strict := os.Getenv("MIGRO_CRAWLER_STRICT_CLASSES"); strict != "" {
		if s, err := strconv.ParseBool(strict); err == nil {
			config.Crawler.StrictClasses = s
		}
	}

	// Browser configuration
	if headless := os.Getenv("MIGRO_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if wait := os.Getenv("MIGRO_BROWSER_HYDRATION_WAIT"); wait != "" {
		if w, err := time.ParseDuration(wait); err == nil {
			config.Browser.HydrationWait = w
		}
	}

	// Source configuration
	if token := os.Getenv("MIGRO_GITHUB_TOKEN"); token != "" {
		config.Source.GithubToken = token
	} else if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.Source.GithubToken = token
	}

	// Assets configuration
	if dir := os.Getenv("MIGRO_ASSETS_DIR"); dir != "" {
		config.Assets.Dir = dir
	}

	// LLM configuration
	if apiKey := os.Getenv("MIGRO_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("MIGRO_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if apiKey := os.Getenv("MIGRO_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("MIGRO_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if provider := os.Getenv("MIGRO_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(strings.ToLower(provider))
	}

	// Scheduler configuration
	if enabled := os.Getenv("MIGRO_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}

	// Mailer configuration
	if enabled := os.Getenv("MIGRO_MAILER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Mailer.Enabled = e
		}
	}
	if host := os.Getenv("MIGRO_MAILER_HOST"); host != "" {
		config.Mailer.Host = host
	}
	if password := os.Getenv("MIGRO_MAILER_PASSWORD"); password != "" {
		config.Mailer.Password = password
	}
}
