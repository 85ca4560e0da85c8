// Command recorder is the oceanographic telemetry recorder's entrypoint: it
// resolves configuration, wires up the App, and runs it until a signal or a
// fatal startup error tells it to stop.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"adcprecorder/internal/app"
	"adcprecorder/pkg/config"
	"adcprecorder/pkg/logger"
	"adcprecorder/pkg/shutdown"
)

var version = "dev"

func main() {
	_ = godotenv.Load(".env") // load .env if present (no error if missing)

	flags := config.ParseFlags()
	eff, err := config.LoadEffective(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recorder: loading config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(eff.Config.LogLevel)

	a, err := app.New(eff)
	if err != nil {
		logger.Error("startup_failed", "err", err)
		diag := &shutdown.RecorderDiagnostics{SerialPort: eff.Config.Serial.Port, Mode: "unstarted"}
		shutdown.Abort("startup", err, eff.Config.OutputDir, diag)
		os.Exit(1)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	runErr := a.Run(ctx)
	if runErr != nil && ctx.Err() == nil {
		logger.Error("run_failed", "err", runErr)
	}

	if err := a.Shutdown(); err != nil {
		logger.Error("shutdown_failed", "err", err)
	}

	logger.Sync()

	if runErr != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
