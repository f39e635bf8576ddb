package fetch

import (
	"yorumi-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("yorumi.lib.fetch")
