package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed school.yaml
var defaultSchoolYAML []byte

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env       string
	HTTPPort  string
	LogLevel  string
	LogFormat string

	DBDriver    string
	DatabaseURL string
	RedisAddr   string

	ModelBackend  string
	ModelPath     string
	ModelRedisKey string

	MediaBackend        string
	MediaDir            string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string

	FaceServiceURL string
	FaceThreshold  float64
	FaceImageSize  int
	PhotoMaxSize   int

	OperatorPassword string
	JWTIssuer        string
	JWTSigningKey    string
	SessionTTL       time.Duration
	RateLimitPerMin  int

	School School
}

// School lists the class and section choices offered to the operator.
type School struct {
	Classes  []string `yaml:"classes"`
	Sections []string `yaml:"sections"`
}

// Load reads an optional .env file and returns config populated from
// environment variables with sensible defaults.
func Load() (App, error) {
	_ = godotenv.Load()

	school, err := loadSchool(os.Getenv("SCHOOL_FILE"))
	if err != nil {
		return App{}, err
	}

	password := os.Getenv("OPERATOR_PASSWORD")
	signingKey := os.Getenv("JWT_SIGNING_KEY")
	if password != "" && signingKey == "" {
		return App{}, fmt.Errorf("JWT_SIGNING_KEY must be set when OPERATOR_PASSWORD is set")
	}
	if signingKey == "" {
		signingKey = "dev-signing-secret-change"
	}

	return App{
		Env:       getEnv("APP_ENV", "dev"),
		HTTPPort:  getEnv("HTTP_PORT", "8081"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		DBDriver:    getEnv("DB_DRIVER", "sqlite3"),
		DatabaseURL: getEnv("DATABASE_URL", "classattend.db"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),

		ModelBackend:  getEnv("MODEL_BACKEND", "file"),
		ModelPath:     getEnv("MODEL_PATH", "recognizer.model"),
		ModelRedisKey: getEnv("MODEL_REDIS_KEY", "classattend:model"),

		MediaBackend:        getEnv("MEDIA_BACKEND", "local"),
		MediaDir:            getEnv("MEDIA_DIR", "media"),
		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		CloudinaryFolder:    getEnv("CLOUDINARY_FOLDER", "classattend"),

		FaceServiceURL: getEnv("FACE_SERVICE_URL", "http://localhost:8000"),
		FaceThreshold:  floatEnv("FACE_THRESHOLD", 70),
		FaceImageSize:  intEnv("FACE_IMAGE_SIZE", 200),
		PhotoMaxSize:   intEnv("PHOTO_MAX_SIZE", 1600),

		OperatorPassword: password,
		JWTIssuer:        getEnv("JWT_ISSUER", "classattend"),
		JWTSigningKey:    signingKey,
		SessionTTL:       durationEnv("SESSION_TTL", 12*time.Hour),
		RateLimitPerMin:  intEnv("RATE_LIMIT_PER_MIN", 120),

		School: school,
	}, nil
}

// CloudinaryConfigured reports whether all Cloudinary credentials are set.
func (a App) CloudinaryConfigured() bool {
	return a.CloudinaryCloudName != "" && a.CloudinaryAPIKey != "" && a.CloudinaryAPISecret != ""
}

func loadSchool(path string) (School, error) {
	data := defaultSchoolYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return School{}, fmt.Errorf("read school file: %w", err)
		}
		data = b
	}
	var s School
	if err := yaml.Unmarshal(data, &s); err != nil {
		return School{}, fmt.Errorf("parse school file: %w", err)
	}
	if len(s.Classes) == 0 || len(s.Sections) == 0 {
		return School{}, fmt.Errorf("school file must list classes and sections")
	}
	return s, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Warn().Str("key", key).Err(err).Dur("fallback", fallback).Msg("invalid duration, using fallback")
			return fallback
		}
		return d
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
		log.Warn().Str("key", key).Int("fallback", fallback).Msg("invalid int, using fallback")
	}
	return fallback
}

func floatEnv(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 {
			return f
		}
		log.Warn().Str("key", key).Float64("fallback", fallback).Msg("invalid float, using fallback")
	}
	return fallback
}
