package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Reference timezones must resolve in minimal containers

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/facegate/internal/attendance"
)

//go:embed policy.yaml
var policyYAML []byte

// Candidate index modes
const (
	CandidateIndexScan     = "scan"     // Compare against every active profile
	CandidateIndexHNSW     = "hnsw"     // In-memory HNSW graph built on startup
	CandidateIndexPgvector = "pgvector" // Nearest-neighbour query in PostgreSQL
)

// PostgresDimension is the encoding length of the embedding column.
const PostgresDimension = 128

type Config struct {
	Policy    PolicyConfig    `yaml:"policy"`
	Clearance ClearanceConfig `yaml:"clearance"`
	Matching  MatchingConfig  `yaml:"-"`
	Database  DatabaseConfig  `yaml:"-"`
	Redis     RedisConfig     `yaml:"-"`
	Embedding EmbeddingConfig `yaml:"-"`
	Web       WebConfig       `yaml:"-"`
	Log       LogConfig       `yaml:"-"`
}

type PolicyConfig struct {
	Tolerance                float64       `yaml:"tolerance"`
	QualityMinScore          float64       `yaml:"quality_min_score"`
	DedupBufferSeconds       int           `yaml:"dedup_buffer_seconds"`
	ClearanceLevelThresholds []float64     `yaml:"clearance_level_thresholds"`
	Quality                  QualityConfig `yaml:"quality"`
}

type QualityConfig struct {
	MinFaceRatio float64        `yaml:"min_face_ratio"`
	MinLuminance float64        `yaml:"min_luminance"`
	MaxLuminance float64        `yaml:"max_luminance"`
	Weights      QualityWeights `yaml:"weights"`
}

type QualityWeights struct {
	Sharpness float64 `yaml:"sharpness"`
	Luminance float64 `yaml:"luminance"`
	Contrast  float64 `yaml:"contrast"`
	Size      float64 `yaml:"size"`
}

type ClearanceConfig struct {
	Timezone    string `yaml:"timezone"`    // IANA name of the reference timezone for week boundaries
	Schedule    string `yaml:"schedule"`    // Cron expression for the weekly recompute, empty disables it
	Concurrency int    `yaml:"concurrency"` // Parallel person/site recomputations
}

type MatchingConfig struct {
	Dimension      int    // Encoding length (default 128)
	CandidateIndex string // scan, hnsw or pgvector
	CandidateLimit int    // Profiles handed to the matcher when an index narrows the pool
	HNSWIndexPath  string // Path to persist the HNSW index (optional, rebuilt on startup if empty)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, empty runs on the in-memory store
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RedisConfig struct {
	URL     string        // Enables the distributed per-person lock when set
	LockTTL time.Duration // Lock expiry if a worker dies while holding it
}

type EmbeddingConfig struct {
	URL string // Face embedding server, defaults to http://localhost:8000
}

type WebConfig struct {
	Host      string
	Port      int
	JWTSecret      string   // HMAC secret for bearer tokens, empty disables authentication
	AllowedOrigins []string // CORS origins in addition to localhost
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envFloatList reads a comma separated list of floats. Any invalid entry keeps the default.
func envFloatList(key string, defaultVal []float64) []float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var values []float64
	for _, part := range strings.Split(s, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return defaultVal
		}
		values = append(values, f)
	}
	return values
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envStringList reads a comma separated list, dropping empty entries.
func envStringList(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func Load() *Config {
	var cfg Config
	if err := yaml.Unmarshal(policyYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}

	p := &cfg.Policy
	p.Tolerance = envFloat("FACE_TOLERANCE", p.Tolerance)
	p.QualityMinScore = envFloat("QUALITY_MIN_SCORE", p.QualityMinScore)
	p.DedupBufferSeconds = envInt("DEDUP_BUFFER_SECONDS", p.DedupBufferSeconds)
	p.ClearanceLevelThresholds = envFloatList("CLEARANCE_LEVEL_THRESHOLDS", p.ClearanceLevelThresholds)

	cfg.Clearance.Timezone = envString("CLEARANCE_TIMEZONE", cfg.Clearance.Timezone)
	cfg.Clearance.Schedule = envString("CLEARANCE_SCHEDULE", cfg.Clearance.Schedule)
	cfg.Clearance.Concurrency = envInt("CLEARANCE_CONCURRENCY", cfg.Clearance.Concurrency)

	cfg.Matching = MatchingConfig{
		Dimension:      envInt("ENCODING_DIM", 128),
		CandidateIndex: envString("CANDIDATE_INDEX", CandidateIndexScan),
		CandidateLimit: envInt("CANDIDATE_LIMIT", 32),
		HNSWIndexPath:  os.Getenv("HNSW_INDEX_PATH"),
	}
	cfg.Database = DatabaseConfig{
		URL:          os.Getenv("DATABASE_URL"),
		MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
	}
	cfg.Redis = RedisConfig{
		URL:     os.Getenv("REDIS_URL"),
		LockTTL: time.Duration(envInt("LOCK_TTL_SECONDS", 10)) * time.Second,
	}
	cfg.Embedding = EmbeddingConfig{
		URL: envString("EMBEDDING_URL", "http://localhost:8000"),
	}
	cfg.Web = WebConfig{
		Host:      os.Getenv("WEB_HOST"),
		Port:      envInt("WEB_PORT", 8080),
		JWTSecret:      os.Getenv("WEB_JWT_SECRET"),
		AllowedOrigins: envStringList("WEB_ALLOWED_ORIGINS"),
	}
	cfg.Log = LogConfig{
		Level:  envString("LOG_LEVEL", "info"),
		Format: envString("LOG_FORMAT", "json"),
	}
	return &cfg
}

// ToPolicy converts the configured values into the engine policy.
func (p PolicyConfig) ToPolicy() attendance.Policy {
	return attendance.Policy{
		Tolerance:                p.Tolerance,
		QualityMinScore:          p.QualityMinScore,
		DedupBuffer:              time.Duration(p.DedupBufferSeconds) * time.Second,
		ClearanceLevelThresholds: append([]float64(nil), p.ClearanceLevelThresholds...),
		Quality: attendance.QualityPolicy{
			MinFaceRatio:    p.Quality.MinFaceRatio,
			MinLuminance:    p.Quality.MinLuminance,
			MaxLuminance:    p.Quality.MaxLuminance,
			SharpnessWeight: p.Quality.Weights.Sharpness,
			LuminanceWeight: p.Quality.Weights.Luminance,
			ContrastWeight:  p.Quality.Weights.Contrast,
			SizeWeight:      p.Quality.Weights.Size,
		},
	}
}

// Location loads the reference timezone.
func (c *ClearanceConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid CLEARANCE_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate reports the first setting the server cannot start with.
func (c *Config) Validate() error {
	if err := c.Policy.ToPolicy().Validate(); err != nil {
		return err
	}
	if _, err := c.Clearance.Location(); err != nil {
		return err
	}
	switch c.Matching.CandidateIndex {
	case CandidateIndexScan, CandidateIndexHNSW:
	case CandidateIndexPgvector:
		if c.Database.URL == "" {
			return fmt.Errorf("CANDIDATE_INDEX=%s requires DATABASE_URL", CandidateIndexPgvector)
		}
	default:
		return fmt.Errorf("unknown CANDIDATE_INDEX %q (want %s, %s or %s)",
			c.Matching.CandidateIndex, CandidateIndexScan, CandidateIndexHNSW, CandidateIndexPgvector)
	}
	// The schema stores embeddings as vector(128).
	if c.Database.URL != "" && c.Matching.Dimension != PostgresDimension {
		return fmt.Errorf("ENCODING_DIM=%d is not supported with DATABASE_URL (schema uses %d)", c.Matching.Dimension, PostgresDimension)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("unknown LOG_FORMAT %q (want json or console)", c.Log.Format)
	}
	return nil
}

// Addr returns the listen address for the web server.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
