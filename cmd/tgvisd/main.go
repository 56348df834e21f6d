// Package main implements the entry point for the tgvisd daemon.
// tgvisd visits Telegram chats through a session bridge socket and
// persists their messages to MySQL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ammarfaizi2/green-tea-bot/config"
	"github.com/ammarfaizi2/green-tea-bot/daemon"
	"github.com/ammarfaizi2/green-tea-bot/tdclient"
)

// Build information constants
const (
	Version = "1.0.0"
	appName = "tgvisd"
)

const dialTimeout = 5 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	if cliCfg.ConfigPath != "" {
		if err := os.Setenv(config.EnvConfigFile, cliCfg.ConfigPath); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := cliCfg.LogLevel
	if level == "" {
		level = cfg.LogLevel
	}
	logger := setupLogger(level, cliCfg.LogFormat)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("configuration is valid")
		return nil
	}

	slog.Info("starting tgvisd",
		"version", Version,
		"data_path", cfg.Telegram.DataPath)

	transport, err := tdclient.DialSocket(
		filepath.Join(cfg.Telegram.DataPath, "td.sock"), dialTimeout)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, transport, daemon.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}
