package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

const (
	UsersBackendMemory   = "memory"
	UsersBackendPostgres = "postgres"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	AI            AIConfig
	Users         UsersConfig
	ObjectStore   ObjectStoreConfig
	Export        ExportConfig
	Sandbox       SandboxConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type AIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type UsersConfig struct {
	Backend         string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	SessionTTL      time.Duration
	BcryptCost      int
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ExportConfig struct {
	Enabled  bool
	Interval time.Duration
}

type SandboxConfig struct {
	Enabled bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("NLSQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid NLSQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	// OPENAI_API_KEY is a fallback credential; NLSQL_AI_API_KEY wins when both are set.
	if err := applyString(lookup, "OPENAI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "NLSQL_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "NLSQL_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "NLSQL_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "NLSQL_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "NLSQL_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "NLSQL_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "NLSQL_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "NLSQL_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "NLSQL_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "NLSQL_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyInt(lookup, "NLSQL_AI_MAX_TOKENS", &cfg.AI.MaxTokens) },
		func() error { return applyDuration(lookup, "NLSQL_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyString(lookup, "NLSQL_USERS_BACKEND", &cfg.Users.Backend) },
		func() error { return applyString(lookup, "NLSQL_USERS_DSN", &cfg.Users.DSN) },
		func() error { return applyInt(lookup, "NLSQL_USERS_MAX_OPEN_CONNS", &cfg.Users.MaxOpenConns) },
		func() error { return applyInt(lookup, "NLSQL_USERS_MAX_IDLE_CONNS", &cfg.Users.MaxIdleConns) },
		func() error { return applyDuration(lookup, "NLSQL_USERS_CONN_MAX_IDLE_TIME", &cfg.Users.ConnMaxIdleTime) },
		func() error { return applyDuration(lookup, "NLSQL_USERS_CONN_MAX_LIFETIME", &cfg.Users.ConnMaxLifetime) },
		func() error { return applyDuration(lookup, "NLSQL_USERS_SESSION_TTL", &cfg.Users.SessionTTL) },
		func() error { return applyInt(lookup, "NLSQL_USERS_BCRYPT_COST", &cfg.Users.BcryptCost) },
		func() error { return applyString(lookup, "NLSQL_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "NLSQL_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "NLSQL_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "NLSQL_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "NLSQL_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "NLSQL_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "NLSQL_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "NLSQL_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "NLSQL_EXPORT_ENABLED", &cfg.Export.Enabled) },
		func() error { return applyDuration(lookup, "NLSQL_EXPORT_INTERVAL", &cfg.Export.Interval) },
		func() error { return applyBool(lookup, "NLSQL_SANDBOX_ENABLED", &cfg.Sandbox.Enabled) },
		func() error { return applyBool(lookup, "NLSQL_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "NLSQL_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "NLSQL_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "NLSQL_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	cfg.Users.Backend = strings.ToLower(cfg.Users.Backend)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	switch cfg.AI.Provider {
	case ProviderOpenAI:
		cfg.AI.BaseURL = firstNonEmpty(cfg.AI.BaseURL, "https://api.openai.com")
		cfg.AI.Model = firstNonEmpty(cfg.AI.Model, "gpt-4-turbo")
	case ProviderOllama:
		cfg.AI.BaseURL = firstNonEmpty(cfg.AI.BaseURL, "http://localhost:11434")
		cfg.AI.Model = firstNonEmpty(cfg.AI.Model, "llama3.2")
	default:
		return Config{}, fmt.Errorf("invalid NLSQL_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	switch cfg.Users.Backend {
	case UsersBackendMemory:
	case UsersBackendPostgres:
		if cfg.Users.DSN == "" {
			return Config{}, fmt.Errorf("NLSQL_USERS_DSN is required for the postgres users backend")
		}
	default:
		return Config{}, fmt.Errorf("invalid NLSQL_USERS_BACKEND: %q", cfg.Users.Backend)
	}
	if cfg.Export.Interval < 0 {
		return Config{}, fmt.Errorf("NLSQL_EXPORT_INTERVAL must be >= 0")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "nlsql-api"},
		HTTP: HTTPConfig{
			Address:      ":3000",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 75 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		AI: AIConfig{
			Provider:    ProviderOpenAI,
			Temperature: 0,
			MaxTokens:   200,
			Timeout:     60 * time.Second,
		},
		Users: UsersConfig{
			Backend:         UsersBackendMemory,
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			SessionTTL:      time.Hour,
			BcryptCost:      10,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "nlsql",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Export: ExportConfig{
			Enabled:  false,
			Interval: 0,
		},
		Sandbox: SandboxConfig{
			Enabled: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   true,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":13000"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
		cfg.Sandbox.Enabled = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}

func firstNonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
