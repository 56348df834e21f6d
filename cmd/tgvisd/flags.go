package main

import (
	"flag"
	"fmt"
	"os"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	ShowVersion bool
	Validate    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("TGVISD_CONFIG_FILE", ""),
		"Path to optional JSON config file (env: TGVISD_CONFIG_FILE)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("TGVISD_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: TGVISD_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("TGVISD_LOG_FORMAT", "text"),
		"Log format: json, text (env: TGVISD_LOG_FORMAT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", appName)
		fmt.Fprintf(os.Stderr, "Telegram history ingestion daemon.\n\n")
		fmt.Fprintf(os.Stderr, "Required environment: TGVISD_API_ID, TGVISD_API_HASH,\n")
		fmt.Fprintf(os.Stderr, "TGVISD_DATA_PATH, TGVISD_MYSQL_HOST, TGVISD_MYSQL_USER,\n")
		fmt.Fprintf(os.Stderr, "TGVISD_MYSQL_DBNAME. A .env file in the working directory\n")
		fmt.Fprintf(os.Stderr, "is loaded when present.\n\nFlags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
