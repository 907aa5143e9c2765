// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultHTTPPort       = 3001
	DefaultStoragePath    = "./data"
	DefaultInstallCommand = "npm install"
	DefaultDevCommand     = "npm run dev -- --port {port} --host"
	DefaultInstallTimeout = 120 * time.Second
	DefaultStopGrace      = 5 * time.Second
	DefaultPortPoolSize   = 100
	DefaultMaxSteps       = 10
	DefaultLogReplay      = 300
)

// Config is the umbrella configuration object constructed once at startup
// and passed explicitly into every component. There are no package-level
// singletons; lifecycle is owned by main.
type Config struct {
	HTTPPort    int
	DatabaseURL string
	JWTSecret   string
	StoragePath string
	CORSOrigin  string
	WebDist     string // optional SPA bundle directory; empty disables static serving

	// Provider credentials. An empty key means that provider is unavailable.
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string

	// Process supervisor settings.
	PortBase       int // first candidate dev-server port
	PortPoolSize   int // number of candidate ports; doubles as the running-workspace cap
	InstallCommand string
	DevCommand     string
	InstallTimeout time.Duration
	StopGrace      time.Duration

	// Generation pipeline settings.
	MaxSteps  int // maximum provider round-trips per stream
	LogReplay int // bounded per-workspace log replay ring size
}

// Load builds a Config from the environment. Callers load .env files
// (godotenv) before invoking it.
func Load() (*Config, error) {
	httpPort, err := getEnvInt("PORT", DefaultHTTPPort)
	if err != nil {
		return nil, err
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	// Default port base sits just above the service port so preview ports
	// cluster with it: service on 3001 leases 3003, 3004, ...
	portBase, err := getEnvInt("PREVIEW_PORT_BASE", httpPort+2)
	if err != nil {
		return nil, err
	}
	poolSize, err := getEnvInt("PREVIEW_PORT_MAX", DefaultPortPoolSize)
	if err != nil {
		return nil, err
	}
	if poolSize < 1 {
		return nil, fmt.Errorf("PREVIEW_PORT_MAX must be at least 1, got %d", poolSize)
	}

	installTimeout, err := getEnvDuration("INSTALL_TIMEOUT", DefaultInstallTimeout)
	if err != nil {
		return nil, err
	}

	maxSteps, err := getEnvInt("MAX_STEPS", DefaultMaxSteps)
	if err != nil {
		return nil, err
	}
	if maxSteps < 1 {
		return nil, fmt.Errorf("MAX_STEPS must be at least 1, got %d", maxSteps)
	}

	return &Config{
		HTTPPort:    httpPort,
		DatabaseURL: databaseURL,
		JWTSecret:   jwtSecret,
		StoragePath: getEnv("STORAGE_PATH", DefaultStoragePath),
		CORSOrigin:  getEnv("CORS_ORIGIN", "*"),
		WebDist:     os.Getenv("WEB_DIST"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),

		PortBase:       portBase,
		PortPoolSize:   poolSize,
		InstallCommand: getEnv("INSTALL_COMMAND", DefaultInstallCommand),
		DevCommand:     getEnv("DEV_COMMAND", DefaultDevCommand),
		InstallTimeout: installTimeout,
		StopGrace:      DefaultStopGrace,

		MaxSteps:  maxSteps,
		LogReplay: DefaultLogReplay,
	}, nil
}

// ProviderKey returns the credential for a provider name, or "" when the
// provider is unknown or unconfigured.
func (c *Config) ProviderKey(provider string) string {
	switch provider {
	case "anthropic":
		return c.AnthropicAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "google":
		return c.GoogleAPIKey
	default:
		return ""
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	// Accept bare seconds ("120") as well as Go duration syntax ("2m").
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
