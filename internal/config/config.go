// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv    string `env:"APP_ENV" envDefault:"dev"`
	Port      int    `env:"PORT" envDefault:"5000"`
	StaticDir string `env:"STATIC_DIR" envDefault:"static"`

	// Primary backends
	GeminiAPIKey          string `env:"GEMINI_API_KEY"`
	GeminiModel           string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	GoogleProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleLocation        string `env:"GOOGLE_CLOUD_LOCATION" envDefault:"us-central1"`
	GoogleCredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	VertexModel           string `env:"VERTEX_MODEL" envDefault:"gemini-1.5-flash"`
	// Secondary (OpenAI-compatible) backend
	OpenRouterAPIKey    string        `env:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL   string        `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenRouterModel     string        `env:"OPENROUTER_VISION_MODEL" envDefault:"qwen/qwen-2.5-72b-instruct"`
	OpenRouterMaxTokens int           `env:"OPENROUTER_MAX_TOKENS" envDefault:"1024"`
	OpenRouterReferer   string        `env:"OPENROUTER_REFERER"`
	OpenRouterTitle     string        `env:"OPENROUTER_TITLE" envDefault:"AI Calculator"`
	AIRequestTimeout    time.Duration `env:"AI_REQUEST_TIMEOUT" envDefault:"120s"`
	// Retry Configuration
	AIMaxRetries  int           `env:"AI_MAX_RETRIES" envDefault:"3"`
	AIBackoffBase time.Duration `env:"AI_BACKOFF_BASE" envDefault:"1s"`

	// Response cache
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	CacheBackend string        `env:"CACHE_BACKEND" envDefault:"memory"`
	RedisURL     string        `env:"REDIS_URL"`

	// Retention of generated files
	CleanupInterval   time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	CleanupMaxFileAge time.Duration `env:"CLEANUP_MAX_FILE_AGE" envDefault:"2h"`
	CleanupMaxFiles   int           `env:"CLEANUP_MAX_FILES" envDefault:"500"`
	CleanupErrorDelay time.Duration `env:"CLEANUP_ERROR_DELAY" envDefault:"60s"`
	// CleanupPatterns lists the glob patterns swept in the generated directory.
	// Figure outputs live in a subdirectory and are only removed by the
	// per-file delayed delete unless a pattern such as "tikz/tikz_*.png" is added.
	CleanupPatterns []string      `env:"CLEANUP_PATTERNS" envSeparator:"," envDefault:"plot_*.png"`
	ServedFileTTL   time.Duration `env:"SERVED_FILE_TTL" envDefault:"10m"`

	// Plot rendering
	PlotSandbox      string        `env:"PLOT_SANDBOX" envDefault:"docker"`
	// Built from internal/adapter/diagram/Dockerfile.sandbox.
	PlotSandboxImage string        `env:"PLOT_SANDBOX_IMAGE" envDefault:"ai-calculator/plot-sandbox:latest"`
	PlotPythonBin    string        `env:"PLOT_PYTHON_BIN" envDefault:"python3"`
	PlotTimeout      time.Duration `env:"PLOT_TIMEOUT" envDefault:"30s"`
	PlotMemoryMB     int64         `env:"PLOT_MEMORY_MB" envDefault:"512"`

	// Figure rendering
	LatexBin      string        `env:"LATEX_BIN" envDefault:"pdflatex"`
	LatexTimeout  time.Duration `env:"LATEX_TIMEOUT" envDefault:"30s"`
	PdftoppmBin   string        `env:"PDFTOPPM_BIN" envDefault:"pdftoppm"`
	ConvertBin    string        `env:"CONVERT_BIN" envDefault:"convert"`
	RasterTimeout time.Duration `env:"RASTER_TIMEOUT" envDefault:"15s"`
	RasterDPI     int           `env:"RASTER_DPI" envDefault:"300"`

	PromptsFile string `env:"PROMPTS_FILE"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"ai-calculator"`

	MaxUploadMB           int64         `env:"MAX_UPLOAD_MB" envDefault:"10"`
	CORSAllowOrigins      string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"0"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"180s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT" envDefault:"170s"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// GeneratedDir is the directory rendered diagrams are written to. It lives
// under StaticDir so the files are reachable at /static/generated/...
func (c Config) GeneratedDir() string { return filepath.Join(c.StaticDir, "generated") }

// FigureDir is the subdirectory of GeneratedDir holding compiled figures.
func (c Config) FigureDir() string { return filepath.Join(c.GeneratedDir(), FigureSubdir) }

// FigureSubdir is the path segment figure outputs are grouped under.
const FigureSubdir = "tikz"

// VertexConfigured reports whether the hosted backend may be probed: a project
// id is set and the credentials file exists on disk.
func (c Config) VertexConfigured() bool {
	if c.GoogleProjectID == "" || c.GoogleCredentialsFile == "" {
		return false
	}
	st, err := os.Stat(c.GoogleCredentialsFile)
	return err == nil && !st.IsDir()
}

// RedisEnabled reports whether a Redis URL has been provided.
func (c Config) RedisEnabled() bool { return strings.TrimSpace(c.RedisURL) != "" }
