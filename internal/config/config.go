package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath      string
	OutputDir   string
	PresetsFile string

	NormalizeStrict    bool
	PrimaryDelimiter   string
	SecondaryDelimiter string
	CacheSize          int

	WatchInput       string
	WatchInputType   string
	WatchPreset      string
	WatchIntervalSec int
	WatchDebounceMs  int
	WatchAutoExport  bool

	LogLevel    string
	MetricsAddr string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:      getEnv("DB_PATH", filepath.Join(cwd, "data", "dashnorm.db")),
		OutputDir:   getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		PresetsFile: getEnv("PRESETS_FILE", ""),

		NormalizeStrict:    getEnvBool("NORMALIZE_STRICT", false),
		PrimaryDelimiter:   getEnv("PRIMARY_DELIMITER", "||"),
		SecondaryDelimiter: getEnv("SECONDARY_DELIMITER", "::"),
		CacheSize:          getEnvInt("CACHE_SIZE", 16),

		WatchInput:       getEnv("WATCH_INPUT", ""),
		WatchInputType:   getEnv("WATCH_INPUT_TYPE", ""),
		WatchPreset:      getEnv("WATCH_PRESET", "participants"),
		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 60),
		WatchDebounceMs:  getEnvInt("WATCH_DEBOUNCE_MS", 500),
		WatchAutoExport:  getEnvBool("WATCH_AUTO_EXPORT", false),

		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MetricsAddr: getEnv("METRICS_ADDR", ""),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
