// Package config collects runtime settings: defaults first, environment
// variables on top.
package config

import "os"

type Config struct {
	Addr         string // HTTP bind address
	DBDriver     string // sqlite3 or postgres
	DBConn       string // driver connection string
	UploadDir    string // directory for stored image files
	GeminiAPIKey string // enables the assistant endpoint when set
}

func defaults() Config {
	return Config{
		Addr:      ":8080",
		DBDriver:  "sqlite3",
		DBConn:    "./capturebox.db",
		UploadDir: "uploads",
	}
}

// Load returns the defaults overlaid with any environment overrides.
func Load() Config {
	cfg := defaults()
	overlayEnv(&cfg.Addr, "ADDR")
	overlayEnv(&cfg.DBDriver, "DB_DRIVER")
	overlayEnv(&cfg.DBConn, "DB_CONN")
	overlayEnv(&cfg.UploadDir, "UPLOAD_DIR")
	overlayEnv(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	return cfg
}

func overlayEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
