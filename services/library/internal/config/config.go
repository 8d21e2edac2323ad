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
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the YAML config.
const ConfigPath = "config.yaml"

// Generation providers.
const (
	ProviderGemini       = "gemini"
	ProviderOllama       = "ollama"
	ProviderOpenAICompat = "openai-compat"
)

// Storage backends.
const (
	StorageMinio = "minio"
	StorageFile  = "file"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	LogsDir  string `yaml:"logsDir"`

	DatabaseURL string `yaml:"databaseURL"`

	StorageBackend string `yaml:"storageBackend"`
	FileStorageDir string `yaml:"fileStorageDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	ImportDir      string `yaml:"importDir"`
	PublicBaseURL  string `yaml:"publicBaseURL"`
	PresignExpiry  string `yaml:"presignExpiry"`

	AllowedEmail     string `yaml:"allowedEmail"`
	GoogleAPIBaseURL string `yaml:"googleAPIBaseURL"`

	GenerationProvider      string `yaml:"generationProvider"`
	GenerationBaseURL       string `yaml:"generationBaseURL"`
	GenerationAPIKey        string `yaml:"generationAPIKey"`
	GenerationModel         string `yaml:"generationModel"`
	GeminiRequestsPerMinute int    `yaml:"geminiRequestsPerMinute"`
	TTSAPIKey               string `yaml:"ttsAPIKey"`
	TTSLanguageCode         string `yaml:"ttsLanguageCode"`
	TTSVoiceName            string `yaml:"ttsVoiceName"`

	SessionTTL      string `yaml:"sessionTTL"`
	MaxHistoryTurns int    `yaml:"maxHistoryTurns"`
	LLMTimeout      string `yaml:"llmTimeout"`
	StorageTimeout  string `yaml:"storageTimeout"`
	RetryDelay      string `yaml:"retryDelay"`

	CORSOrigins             []string `yaml:"corsOrigins"`
	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	AskRateLimitPerMinute   int      `yaml:"askRateLimitPerMinute"`
	AudioRateLimitPerMinute int      `yaml:"audioRateLimitPerMinute"`
	MaxUploadBytes          int64    `yaml:"maxUploadBytes"`
	MaxAudioBytes           int64    `yaml:"maxAudioBytes"`
}

// Load reads config from path (defaults to config.yaml). Variables from a
// .env file in the working directory are loaded first and never override
// the real environment.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = StorageFile
	}
	if cfg.GenerationProvider == "" {
		cfg.GenerationProvider = ProviderGemini
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LIBRARY_STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("ALLOWED_EMAIL"); v != "" {
		cfg.AllowedEmail = strings.TrimSpace(v)
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GenerationAPIKey = v
	}
	if v := os.Getenv("GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("GOOGLE_TTS_API_KEY"); v != "" {
		cfg.TTSAPIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("LIBRARY_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	if v := os.Getenv("LIBRARY_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("LIBRARY_ASK_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AskRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("LIBRARY_LLM_TIMEOUT"); v != "" {
		cfg.LLMTimeout = v
	}
	if v := os.Getenv("LIBRARY_STORAGE_TIMEOUT"); v != "" {
		cfg.StorageTimeout = v
	}
	if v := os.Getenv("LIBRARY_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.AllowedEmail == "" {
		return errors.New("config: allowedEmail is required (set in config.yaml or ALLOWED_EMAIL)")
	}
	switch cfg.StorageBackend {
	case StorageFile:
		if cfg.FileStorageDir == "" {
			return errors.New("config: fileStorageDir is required for the file storage backend")
		}
	case StorageMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint, minioAccessKey, minioSecretKey and minioBucket are required for the minio storage backend")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q", cfg.StorageBackend)
	}
	switch cfg.GenerationProvider {
	case ProviderGemini:
		if cfg.GenerationAPIKey == "" {
			return errors.New("config: generationAPIKey is required for gemini (set in config.yaml or GEMINI_API_KEY)")
		}
	case ProviderOllama, ProviderOpenAICompat:
		if cfg.GenerationBaseURL == "" {
			return fmt.Errorf("config: generationBaseURL is required for %s", cfg.GenerationProvider)
		}
	default:
		return fmt.Errorf("config: unknown generationProvider %q", cfg.GenerationProvider)
	}
	if cfg.GenerationModel == "" {
		return errors.New("config: generationModel is required (set in config.yaml)")
	}
	for name, raw := range map[string]string{
		"presignExpiry":  cfg.PresignExpiry,
		"sessionTTL":     cfg.SessionTTL,
		"llmTimeout":     cfg.LLMTimeout,
		"storageTimeout": cfg.StorageTimeout,
		"retryDelay":     cfg.RetryDelay,
	} {
		if _, err := ParseDuration(raw, 0); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

// ParseDuration parses a Go duration string. Blank input yields fallback.
func ParseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
