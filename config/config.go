package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreSQLite = "sqlite"
)

type Config struct {
	// Server settings
	ServerPort string `json:"server_port"`
	// ReadTimeout bounds the whole request including the body. Zero leaves
	// bodies unbounded; ReadHeaderTimeout still applies.
	ReadTimeout       time.Duration `json:"read_timeout"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	Debug             bool          `json:"debug"`
	PublicBaseURL     string        `json:"public_base_url"`

	LogDir   string `json:"log_dir"`
	LogLevel string `json:"log_level"`

	Middleware MiddlewareConfig `json:"middleware"`
	CORS       CORSConfig       `json:"cors"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`

	Google  GoogleConfig  `json:"google"`
	Session SessionConfig `json:"session"`
	Drive   DriveConfig   `json:"drive"`
	Store   StoreConfig   `json:"store"`
	Upload  UploadConfig  `json:"upload"`
	Cache   CacheConfig   `json:"cache"`

	Version string `json:"version"`

	RequestTimeout  time.Duration `json:"request_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type MiddlewareConfig struct {
	EnableRecover   bool `json:"enable_recover"`
	EnableRequestID bool `json:"enable_request_id"`
	EnableLogger    bool `json:"enable_logger"`
	EnableMetrics   bool `json:"enable_metrics"`
	EnableTimeout   bool `json:"enable_timeout"`
	EnableCORS      bool `json:"enable_cors"`
	EnableRateLimit bool `json:"enable_rate_limit"`
}

type CORSConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `json:"enabled"`
	RequestsPerMinute int  `json:"requests_per_minute"`
	BurstSize         int  `json:"burst_size"`
}

// GoogleConfig holds the OAuth client registered for sign-in and Drive access.
type GoogleConfig struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"-"`
	RedirectURL  string   `json:"redirect_url"`
	Scopes       []string `json:"scopes"`
}

type SessionConfig struct {
	Secret        string        `json:"-"`
	CookieName    string        `json:"cookie_name"`
	TTL           time.Duration `json:"ttl"`
	MaxSessions   int           `json:"max_sessions"`
	RefreshMargin time.Duration `json:"refresh_margin"`
	SecureCookie  bool          `json:"secure_cookie"`
}

type DriveConfig struct {
	FolderName       string `json:"folder_name"`
	APIBaseURL       string `json:"api_base_url"`
	UploadBaseURL    string `json:"upload_base_url"`
	EmbedURLTemplate string `json:"embed_url_template"`
}

type StoreConfig struct {
	Driver          string        `json:"driver"`
	MongoURI        string        `json:"mongo_uri"`
	MongoDatabase   string        `json:"mongo_database"`
	MongoCollection string        `json:"mongo_collection"`
	SQLitePath      string        `json:"sqlite_path"`
	QueryTimeout    time.Duration `json:"query_timeout"`
}

type UploadConfig struct {
	MaxFileSize    int64         `json:"max_file_size"`
	ThumbnailAt    time.Duration `json:"thumbnail_at"`
	ThumbnailWidth int           `json:"thumbnail_width"`
	FFmpegPath     string        `json:"ffmpeg_path"`
	ClearDelay     time.Duration `json:"clear_delay"`
	Timeout        time.Duration `json:"timeout"`
}

type CacheConfig struct {
	PlaybackTTL   time.Duration `json:"playback_ttl"`
	PlaybackSize  int           `json:"playback_size"`
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"-"`
	RedisDB       int           `json:"redis_db"`
}

func defaultDevConfig() MiddlewareConfig {
	return MiddlewareConfig{
		EnableRecover:   true,
		EnableRequestID: true,
		EnableLogger:    true,
		EnableMetrics:   true,
		EnableTimeout:   false,
		EnableCORS:      true,
		EnableRateLimit: false,
	}
}

func defaultProdConfig() MiddlewareConfig {
	return MiddlewareConfig{
		EnableRecover:   true,
		EnableRequestID: true,
		EnableLogger:    true,
		EnableMetrics:   true,
		EnableTimeout:   true,
		EnableCORS:      true,
		EnableRateLimit: true,
	}
}

// Load reads configuration from the environment, after applying an optional .env file.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables without validating it.
func FromEnv() *Config {
	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 0),
		ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 15*time.Second),
		WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 10*time.Minute),
		IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		Debug:             getEnvAsBool("DEBUG", false),
		PublicBaseURL:     strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		LogDir:   getEnv("LOG_DIR", "/var/log/videoverse"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Version: getEnv("VERSION", "1.0.0"),

		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Minute),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		CORS: CORSConfig{
			Enabled:        getEnvAsBool("CORS_ENABLED", true),
			AllowedOrigins: getEnvAsStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsStringSlice(
				"CORS_ALLOWED_METHODS",
				[]string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			),
			AllowedHeaders: getEnvAsStringSlice(
				"CORS_ALLOWED_HEADERS",
				[]string{"Content-Type", "X-Upload-ID"},
			),
			ExposedHeaders:   getEnvAsStringSlice("CORS_EXPOSED_HEADERS", []string{"X-Request-ID"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 86400),
		},

		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 120),
			BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 20),
		},

		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/callback"),
			Scopes: getEnvAsStringSlice("GOOGLE_SCOPES", []string{
				"openid",
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
				"https://www.googleapis.com/auth/drive",
			}),
		},

		Session: SessionConfig{
			Secret:        getEnv("SESSION_SECRET", ""),
			CookieName:    getEnv("SESSION_COOKIE", "videoverse_session"),
			TTL:           getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
			MaxSessions:   getEnvAsInt("SESSION_MAX", 10000),
			RefreshMargin: getEnvAsDuration("TOKEN_REFRESH_MARGIN", 5*time.Minute),
			SecureCookie:  getEnvAsBool("SESSION_SECURE_COOKIE", false),
		},

		Drive: DriveConfig{
			FolderName:       getEnv("DRIVE_FOLDER_NAME", "videoverse"),
			APIBaseURL:       getEnv("DRIVE_API_BASE_URL", "https://www.googleapis.com/drive/v3"),
			UploadBaseURL:    getEnv("DRIVE_UPLOAD_BASE_URL", ""),
			EmbedURLTemplate: getEnv("DRIVE_EMBED_URL_TEMPLATE", "https://drive.google.com/file/d/%s/preview"),
		},

		Store: StoreConfig{
			Driver:          getEnv("STORE_DRIVER", StoreMongo),
			MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase:   getEnv("MONGO_DATABASE", "videoverse"),
			MongoCollection: getEnv("MONGO_COLLECTION", "videos"),
			SQLitePath:      getEnv("DB_PATH", "/var/lib/videoverse/data.db"),
			QueryTimeout:    getEnvAsDuration("DB_QUERY_TIMEOUT", 10*time.Second),
		},

		Upload: UploadConfig{
			MaxFileSize:    getEnvAsInt64("UPLOAD_MAX_FILE_SIZE", 500*1024*1024),
			ThumbnailAt:    getEnvAsDuration("THUMBNAIL_AT", time.Second),
			ThumbnailWidth: getEnvAsInt("THUMBNAIL_WIDTH", 640),
			FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
			ClearDelay:     getEnvAsDuration("UPLOAD_CLEAR_DELAY", 1500*time.Millisecond),
			Timeout:        getEnvAsDuration("UPLOAD_TIMEOUT", 10*time.Minute),
		},

		Cache: CacheConfig{
			PlaybackTTL:   getEnvAsDuration("PLAYBACK_CACHE_TTL", 5*time.Minute),
			PlaybackSize:  getEnvAsInt("PLAYBACK_CACHE_SIZE", 1024),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},

		Middleware: defaultDevConfig(),
	}

	if os.Getenv("ENV") == "production" {
		cfg.Middleware = defaultProdConfig()
		cfg.Session.SecureCookie = getEnvAsBool("SESSION_SECURE_COOKIE", true)
	}

	return cfg
}

func (c *Config) Validate() error {
	if err := validateRequired(c); err != nil {
		return err
	}

	if err := validateTimeouts(c); err != nil {
		return err
	}

	if err := validateStore(c); err != nil {
		return err
	}

	return validatePaths(c)
}

func validateRequired(c *Config) error {
	required := []struct {
		value string
		name  string
	}{
		{c.Google.ClientID, "GOOGLE_CLIENT_ID"},
		{c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET"},
		{c.Session.Secret, "SESSION_SECRET"},
		{c.Drive.FolderName, "DRIVE_FOLDER_NAME"},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}

	if !strings.Contains(c.Drive.EmbedURLTemplate, "%s") {
		return fmt.Errorf("embed URL template must contain %%s")
	}

	return nil
}

func validateTimeouts(c *Config) error {
	if c.ReadTimeout < 0 {
		return fmt.Errorf("read timeout must not be negative")
	}
	if c.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("read header timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.Session.RefreshMargin < 0 {
		return fmt.Errorf("token refresh margin must not be negative")
	}
	if c.Upload.ThumbnailAt < 0 {
		return fmt.Errorf("thumbnail offset must not be negative")
	}
	return nil
}

func validateStore(c *Config) error {
	switch c.Store.Driver {
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo store")
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

func validatePaths(c *Config) error {
	paths := []struct {
		path string
		name string
	}{
		{c.LogDir, "log directory"},
	}

	if c.Store.Driver == StoreSQLite {
		paths = append(paths, struct {
			path string
			name string
		}{filepath.Dir(c.Store.SQLitePath), "database directory"})
	}

	for _, p := range paths {
		if err := os.MkdirAll(p.path, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p.name, err)
		}
	}

	return nil
}

// Helper functions for reading environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		if value = strings.TrimSpace(value); value != "" {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return parts
		}
	}
	return defaultValue
}
