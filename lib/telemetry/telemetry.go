package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer bound to whatever provider setup installed,
// or the default no-op one if telemetry was never initialized.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

func InitSlog(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))
}

type shutdownFunc func(ctx context.Context) error

var shutdownFuncs []shutdownFunc

func Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	var errlist []error
	for _, fn := range shutdownFuncs {
		err := fn(ctx)
		if err != nil {
			errlist = append(errlist, err)
		}
	}
	shutdownFuncs = nil
	return errors.Join(errlist...)
}
