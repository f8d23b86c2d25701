package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flatbridge/flatbridge/internal/cli/flatbridgectl"
)

func main() {
	timeout := parseDurationWithDefault("FLATBRIDGE_CLI_TIMEOUT", 30*time.Second)
	options := flatbridgectl.Options{
		BaseURL:      envOr("FLATBRIDGE_API_URL", "http://localhost:8080"),
		Timeout:      timeout,
		PollInterval: parseDurationWithDefault("FLATBRIDGE_CLI_POLL_INTERVAL", time.Second),
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := flatbridgectl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid %s %q; using %s\n", key, raw, fallback)
		return fallback
	}
	return parsed
}
