package main

import (
	"context"

	"yorumi-backend/cmd/yorumi-cli/commands"
	"yorumi-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "yorumi-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
