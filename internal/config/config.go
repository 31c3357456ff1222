package config

import (
	"os"
	"strconv"
	"time"
)

// ScraperConfig holds settings for the headless browser and job processing.
type ScraperConfig struct {
	Headless    bool          // Run the browser headless
	MaxPages    int           // Browser page pool size (caps concurrent fetches)
	PageTimeout time.Duration // Timeout for a single page navigation
	JobTimeout  time.Duration // Hard wall-clock limit for one scraping job
	BatchSize   int           // Max recurring jobs picked up per batch run
	Workers     int           // Bounded pool size for the batch processor
}

// SchedulerConfig holds the cron expressions for the periodic triggers.
type SchedulerConfig struct {
	Enabled       bool
	DailyCheck    string // price change detection + alert fan-out
	WeeklyDigest  string
	WeeklyRefresh string // enqueue recurring pricing jobs per tool
	BatchInterval time.Duration
}

// EmailConfig holds transactional email API settings.
type EmailConfig struct {
	APIURL  string
	APIKey  string
	From    string
	Enabled bool
}

type Config struct {
	// Server
	Env string // "development", "production"

	// Database
	DatabaseURL string

	Scraper   ScraperConfig
	Scheduler SchedulerConfig
	Email     EmailConfig
}

func Load() *Config {
	env := getEnv("ENV", "development")

	return &Config{
		Env: env,

		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/pricescope?sslmode=disable"),

		Scraper: ScraperConfig{
			Headless:    getBoolEnv("SCRAPER_HEADLESS", true),
			MaxPages:    getIntEnv("SCRAPER_MAX_PAGES", 3),
			PageTimeout: getDurationEnv("SCRAPER_PAGE_TIMEOUT", 60*time.Second),
			JobTimeout:  getDurationEnv("SCRAPER_JOB_TIMEOUT", 3*time.Minute),
			BatchSize:   getIntEnv("SCRAPER_BATCH_SIZE", 10),
			Workers:     getIntEnv("SCRAPER_WORKERS", 3),
		},

		Scheduler: SchedulerConfig{
			Enabled:       getBoolEnv("SCHEDULER_ENABLED", true),
			DailyCheck:    getEnv("SCHEDULE_DAILY_CHECK", "0 6 * * *"),    // 06:00 daily
			WeeklyDigest:  getEnv("SCHEDULE_WEEKLY_DIGEST", "0 8 * * 1"),  // Monday 08:00
			WeeklyRefresh: getEnv("SCHEDULE_WEEKLY_REFRESH", "0 2 * * 0"), // Sunday 02:00
			BatchInterval: getDurationEnv("SCHEDULE_BATCH_INTERVAL", time.Minute),
		},

		Email: EmailConfig{
			APIURL:  getEnv("EMAIL_API_URL", "https://api.resend.com/emails"),
			APIKey:  os.Getenv("EMAIL_API_KEY"),
			From:    getEnv("EMAIL_FROM", "alerts@pricescope.app"),
			Enabled: getBoolEnv("EMAIL_ENABLED", false),
		},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
