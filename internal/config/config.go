package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultMenuAPIURL       = "https://raw.githubusercontent.com/Meta-Mobile-Developer-PC/Working-With-Data-API/main/capstone.json"
	DefaultMenuImageBaseURL = "https://raw.githubusercontent.com/Meta-Mobile-Developer-PC/Working-With-Data-API/main/images"
	DefaultDatabasePath     = "data/little-lemon.db"
	DefaultSearchDebounce   = 500 * time.Millisecond
	DefaultFetchTimeout     = 15 * time.Second
	DefaultPort             = "8080"
)

// Config holds the configuration for the application.
type Config struct {
	MenuAPIURL       string
	MenuAPIKey       string // optional "id:hexsecret" used to sign requests
	MenuImageBaseURL string
	DatabasePath     string
	SearchDebounce   time.Duration
	FetchTimeout     time.Duration

	LogLevel  string
	LogFormat string

	Port               string
	CORSAllowedOrigins []string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
}

// NewFromEnv creates a new Config object from environment variables.
// A .env file in the working directory is loaded first when present.
func NewFromEnv() (*Config, error) {
	_ = godotenv.Load()

	searchDebounce, err := getDuration("SEARCH_DEBOUNCE", DefaultSearchDebounce)
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := getDuration("FETCH_TIMEOUT", DefaultFetchTimeout)
	if err != nil {
		return nil, err
	}

	var allowedIDs []int64
	for _, raw := range splitList(os.Getenv("TELEGRAM_ALLOWED_USER_IDS")) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS entry %q: %w", raw, err)
		}
		allowedIDs = append(allowedIDs, id)
	}

	origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Config{
		MenuAPIURL:             getEnv("MENU_API_URL", DefaultMenuAPIURL),
		MenuAPIKey:             os.Getenv("MENU_API_KEY"),
		MenuImageBaseURL:       strings.TrimRight(getEnv("MENU_IMAGE_BASE_URL", DefaultMenuImageBaseURL), "/"),
		DatabasePath:           getEnv("DATABASE_PATH", DefaultDatabasePath),
		SearchDebounce:         searchDebounce,
		FetchTimeout:           fetchTimeout,
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "text"),
		Port:                   getEnv("PORT", DefaultPort),
		CORSAllowedOrigins:     origins,
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowedIDs,
	}, nil
}

// RequireTelegram reports the Telegram settings the bot cannot start without.
func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if c.TelegramWebhookURL == "" {
		return fmt.Errorf("TELEGRAM_WEBHOOK_URL environment variable not set")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
