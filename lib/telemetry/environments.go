package telemetry

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"yorumi-backend/lib/configuration"
)

var setupTestEnvironments = map[string]bool{}

// sets up slog + telemetry in a testing environment, ensuring that it
// isn't set up more than once per service name
func SetupForTesting(t testing.TB, serviceName string) func() {
	_, setupAlready := setupTestEnvironments[serviceName]
	if setupAlready {
		return func() {}
	}
	setupTestEnvironments[serviceName] = true

	InitSlog(true)
	err := SetupFromEnv(context.Background(), serviceName)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}

	return func() {
		err := Shutdown(context.Background())
		if err != nil {
			t.Fatal(err)
		}
	}
}

// searches up the filesystem from the cwd to find a file
// called telemetry.json5, once found it will then use it
// as a config to setup telemetry. a missing config file is
// not fatal, telemetry just stays no-op.
func SetupFromEnv(ctx context.Context, serviceName string) error {
	c, err := configuration.ReadRecursively[config]("telemetry.json5")
	if os.IsNotExist(err) {
		slog.Info("no telemetry.json5 found, telemetry disabled")
		return err
	}
	if err != nil {
		return err
	}
	return setup(ctx, serviceName, c)
}
