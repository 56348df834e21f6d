package config

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/ammarfaizi2/green-tea-bot/errors"
)

// Environment variables read by Load. The JSON config file named by
// TGVISD_CONFIG_FILE may set any section, including the telegram and
// mysql ones; an environment variable that is set takes precedence
// over the file value for the same field.
const (
	EnvAPIID      = "TGVISD_API_ID"
	EnvAPIHash    = "TGVISD_API_HASH"
	EnvDataPath   = "TGVISD_DATA_PATH"
	EnvMySQLHost  = "TGVISD_MYSQL_HOST"
	EnvMySQLPort  = "TGVISD_MYSQL_PORT"
	EnvMySQLUser  = "TGVISD_MYSQL_USER"
	EnvMySQLPass  = "TGVISD_MYSQL_PASS"
	EnvMySQLDB    = "TGVISD_MYSQL_DBNAME"
	EnvConfigFile = "TGVISD_CONFIG_FILE"
	EnvLogLevel   = "TGVISD_LOG_LEVEL"
)

// Load assembles the configuration from a best-effort .env file, the
// TGVISD_* environment and an optional JSON override file, then
// validates it. Missing required values produce a fatal config error.
func Load() (*Config, error) {
	// A missing .env file is normal in containerized deployments.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := cfg.applyFile(os.Getenv(EnvConfigFile)); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile overlays the JSON config file at path, if any.
func (c *Config) applyFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "applyFile",
			"read "+path+": "+err.Error())
	}
	if err := json.Unmarshal(data, c); err != nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "applyFile",
			"parse "+path+": "+err.Error())
	}
	return nil
}

// applyEnv reads the TGVISD_* variables. Set variables win over file
// values; unset ones leave the file values in place.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAPIID); v != "" {
		id, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "applyEnv",
				EnvAPIID+" is not an integer")
		}
		c.Telegram.APIID = int32(id)
	}
	if v := os.Getenv(EnvAPIHash); v != "" {
		c.Telegram.APIHash = v
	}
	if v := os.Getenv(EnvDataPath); v != "" {
		c.Telegram.DataPath = v
	}
	if v := os.Getenv(EnvMySQLHost); v != "" {
		c.MySQL.Host = v
	}
	if v := os.Getenv(EnvMySQLPort); v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "applyEnv",
				EnvMySQLPort+" is not a port number")
		}
		c.MySQL.Port = uint16(port)
	}
	if v := os.Getenv(EnvMySQLUser); v != "" {
		c.MySQL.User = v
	}
	if v := os.Getenv(EnvMySQLPass); v != "" {
		c.MySQL.Password = v
	}
	if v := os.Getenv(EnvMySQLDB); v != "" {
		c.MySQL.Database = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}
