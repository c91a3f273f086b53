package infra

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv       string
	Port         string
	StoreBackend string
	RedisURL     string
	DatabaseURL  string
	DBMaxConns   int

	JobTTL      time.Duration
	FinalizeTTL time.Duration

	PreviewLimit        int
	PerDomainCap        int
	CandidateMultiplier int
	DefaultTargetCount  int
	DenyDomains         []string
	AllowDomains        []string

	SerpAPIKey          string
	SerpAPIBaseURL      string
	SerpAPISafe         string
	SearchMaxPages      int
	SearchParallelPages bool
	SearchRatePerSecond float64
	SearchTimeout       time.Duration

	RenderWebhookURL string
	RenderTimeout    time.Duration
	PublicBaseURL    string
	CallbackSecret   string
	APIToken         string

	WorkerConcurrency int
	WorkerPopWait     time.Duration
	WorkerMaxAttempts int
	WorkerRetryDelay  time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", BackendRedis)),
		RedisURL:            os.Getenv("REDIS_URL"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DBMaxConns:          getEnvInt("DB_MAX_CONNS", 10),
		JobTTL:              time.Hour * time.Duration(getEnvInt("JOB_TTL_HOURS", 24)),
		FinalizeTTL:         time.Minute * time.Duration(getEnvInt("FINALIZE_LOCK_MINUTES", 10)),
		PreviewLimit:        getEnvInt("PREVIEW_LIMIT", 15),
		PerDomainCap:        getEnvInt("PER_DOMAIN_CAP", 3),
		CandidateMultiplier: getEnvInt("CANDIDATE_MULTIPLIER", 4),
		DefaultTargetCount:  getEnvInt("DEFAULT_TARGET_COUNT", 7),
		DenyDomains:         getEnvDomains("DENY_DOMAINS", "pinterest.com,pinimg.com,shutterstock.com,alamy.com,dreamstime.com,123rf.com"),
		AllowDomains:        getEnvDomains("ALLOW_DOMAINS", "unsplash.com,pexels.com,wikimedia.org,flickr.com,staticflickr.com"),
		SerpAPIKey:          os.Getenv("SERPAPI_KEY"),
		SerpAPIBaseURL:      getEnv("SERPAPI_BASE_URL", "https://serpapi.com"),
		SerpAPISafe:         strings.ToLower(getEnv("SERPAPI_SAFE", "off")),
		SearchMaxPages:      getEnvInt("SEARCH_MAX_PAGES", 3),
		SearchParallelPages: getEnvBool("SEARCH_PARALLEL_PAGES", false),
		SearchRatePerSecond: getEnvFloat("SEARCH_RATE_PER_SECOND", 2),
		SearchTimeout:       time.Second * time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 20)),
		RenderWebhookURL:    os.Getenv("RENDER_WEBHOOK_URL"),
		RenderTimeout:       time.Second * time.Duration(getEnvInt("RENDER_TIMEOUT_SECONDS", 30)),
		PublicBaseURL:       strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		CallbackSecret:      os.Getenv("CALLBACK_SECRET"),
		APIToken:            os.Getenv("API_TOKEN"),
		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPopWait:       time.Second * time.Duration(getEnvInt("WORKER_POP_WAIT_SECONDS", 5)),
		WorkerMaxAttempts:   getEnvInt("WORKER_MAX_ATTEMPTS", 3),
		WorkerRetryDelay:    time.Millisecond * time.Duration(getEnvInt("WORKER_RETRY_DELAY_MS", 2000)),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:     getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:" + cfg.Port
	}

	switch cfg.StoreBackend {
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis store backend")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store backend")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
	}

	positives := map[string]int{
		"JOB_TTL_HOURS":         int(cfg.JobTTL / time.Hour),
		"FINALIZE_LOCK_MINUTES": int(cfg.FinalizeTTL / time.Minute),
		"PREVIEW_LIMIT":         cfg.PreviewLimit,
		"PER_DOMAIN_CAP":        cfg.PerDomainCap,
		"CANDIDATE_MULTIPLIER":  cfg.CandidateMultiplier,
		"DEFAULT_TARGET_COUNT":  cfg.DefaultTargetCount,
		"SEARCH_MAX_PAGES":      cfg.SearchMaxPages,
		"WORKER_CONCURRENCY":    cfg.WorkerConcurrency,
		"WORKER_MAX_ATTEMPTS":   cfg.WorkerMaxAttempts,
	}
	names := make([]string, 0, len(positives))
	for name := range positives {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if positives[name] <= 0 {
			return nil, fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.DefaultTargetCount > cfg.PreviewLimit {
		return nil, fmt.Errorf("DEFAULT_TARGET_COUNT (%d) exceeds PREVIEW_LIMIT (%d)", cfg.DefaultTargetCount, cfg.PreviewLimit)
	}

	return cfg, nil
}

// CallbackURL is the address the render collaborator posts results to.
func (c *Config) CallbackURL() string {
	return c.PublicBaseURL + "/v1/callbacks/render"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDomains parses a comma separated host list. Entries may be bare hosts
// or URLs; they are lower-cased, stripped of "www." and de-duplicated.
func getEnvDomains(key, fallback string) []string {
	raw := getEnv(key, fallback)
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, ",") {
		host := domain.NormalizeHost(part)
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}
