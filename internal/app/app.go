// Package app wires the recorder's components together: configuration,
// serial settings, the frame assembler, the embedded store, the daily text
// files, and the supervised producer/consumer pair, the same top-level
// assembly job the teacher's internal/app played for its HTTP server.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adcprecorder/pkg/banner"
	"adcprecorder/pkg/config"
	"adcprecorder/pkg/consumer"
	"adcprecorder/pkg/dailyfile"
	"adcprecorder/pkg/frame"
	"adcprecorder/pkg/health"
	"adcprecorder/pkg/logger"
	"adcprecorder/pkg/metrics"
	"adcprecorder/pkg/nortek"
	"adcprecorder/pkg/producer"
	"adcprecorder/pkg/serial"
	"adcprecorder/pkg/state"
	"adcprecorder/pkg/store"
	"adcprecorder/pkg/supervisor"
)

// App owns every long-lived resource the recorder needs: the open store,
// the daily file writer, the resource sensor, and the supervisor that runs
// the producer/consumer pair. It is the recorder's implementation of the
// control surface spec.md §6 names (start/stop/restart/status/set_port/
// set_output_dir), consumed by the external CLI this repository excludes.
type App struct {
	eff    config.EffectiveConfigResult
	health *health.State

	daily    *dailyfile.Writer
	resource *health.ResourceSensor
	sup      *supervisor.Supervisor

	mu        sync.Mutex
	runCancel context.CancelFunc
	runDone   chan struct{}
	runErr    error
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// New resolves runtime paths, opens the store, and assembles the
// supervisor's worker factories. It does not start any goroutines; call Run
// to do that and block until shutdown.
func New(eff config.EffectiveConfigResult) (*App, error) {
	a := &App{}
	if err := a.build(eff); err != nil {
		return nil, err
	}
	return a, nil
}

// build (re)initializes every resource an App holds from eff: runtime
// directories, the store, the daily writer, and the supervisor's worker
// factories. Called from New and from Reconfigure, which calls it again
// after closing the previous generation's resources.
func (a *App) build(eff config.EffectiveConfigResult) error {
	cfg := eff.Config

	if err := state.EnsureStateDirs(cfg.OutputDir); err != nil {
		return fmt.Errorf("preparing output directory: %w", err)
	}
	state.Init(cfg.OutputDir)
	paths := state.PathsVar

	if err := store.Open(cfg.DBPath); err != nil {
		return fmt.Errorf("opening store at %s: %w", cfg.DBPath, err)
	}

	h := health.New()
	daily := dailyfile.New(paths.Daily)

	settings, err := serialSettings(cfg.Serial)
	if err != nil {
		_ = store.Close()
		return err
	}

	frameCfg := frame.Config{
		BinaryThresholdBytes: cfg.Frame.BinaryThresholdBytes,
		BinaryQuietInterval:  ms(cfg.Frame.BinaryQuietMs),
	}
	reconnCfg := cfg.Reconnect
	nortekCfg := nortek.Config{HeadIDMaxLen: cfg.Parser.HeadIDMaxLen}

	queue := producer.NewQueue(cfg.QueueCapacity)

	producerFactory := func() supervisor.Runner {
		return producer.New(settings, frameCfg, reconnCfg, h, queue)
	}
	consumerFactory := func() supervisor.Runner {
		return consumer.New(queue, nortekCfg, h, daily, paths)
	}

	supCfg := supervisor.Config{
		HeartbeatInterval: ms(cfg.Supervisor.HeartbeatIntervalMs),
		HeartbeatTimeout:  ms(cfg.Supervisor.HeartbeatTimeoutMs),
		RespawnWindow:     ms(cfg.Supervisor.RespawnWindowMs),
		RespawnLimit:      cfg.Supervisor.RespawnLimit,
		RespawnCooldown:   ms(cfg.Supervisor.RespawnCooldownMs),
		ShutdownGrace:     ms(cfg.Supervisor.ShutdownGracePeriodMs),
		OutputDir:         cfg.OutputDir,
		SerialPort:        cfg.Serial.Port,
	}

	resource := health.NewResourceSensor(paths.OutputDir, ms(cfg.Supervisor.HeartbeatIntervalMs))

	a.eff = eff
	a.health = h
	a.daily = daily
	a.resource = resource
	a.sup = supervisor.New(supCfg, h, producerFactory, consumerFactory)
	return nil
}

// Run prints the startup banner, starts the metrics server (if configured)
// and the resource sensor, and blocks running the supervised pipeline until
// ctx is canceled or Stop is called.
func (a *App) Run(ctx context.Context) error {
	banner.Print(a.eff, "dev")
	logger.Info("recorder_starting", "output_dir", a.eff.Config.OutputDir, "db_path", a.eff.Config.DBPath)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.mu.Lock()
	a.runCancel = cancel
	a.runDone = done
	a.mu.Unlock()

	a.resource.Start()
	go metrics.Serve(runCtx, a.eff.Config.MetricsAddr)

	err := a.sup.Run(runCtx)

	a.mu.Lock()
	a.runErr = err
	close(done)
	a.mu.Unlock()

	return err
}

// Stop requests cooperative shutdown of the currently running pipeline
// (spec.md §6 stop()) without tearing down the store or daily writer; Run
// returns once the supervisor's grace period elapses or both workers exit.
// It is a no-op if Run is not currently active.
func (a *App) Stop() {
	a.mu.Lock()
	cancel := a.runCancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Restart stops the current pipeline run, waits for Run to return, and
// starts a fresh one under ctx (spec.md §6 restart(): "stop then start").
// Callers invoke this from their own goroutine since Run blocks.
func (a *App) Restart(ctx context.Context) error {
	a.mu.Lock()
	done := a.runDone
	a.mu.Unlock()

	a.Stop()
	if done != nil {
		<-done
	}
	a.resource.Stop()
	return a.Run(ctx)
}

// Reconfigure implements spec.md §6's set_port()/set_output_dir(): stop the
// running pipeline, close the store and daily writer that were scoped to
// the old configuration, rebuild every resource against the updated
// port/output directory, and start again under ctx. An empty argument
// leaves that setting unchanged.
func (a *App) Reconfigure(ctx context.Context, port, outputDir string) error {
	a.mu.Lock()
	done := a.runDone
	cancel := a.runCancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	a.resource.Stop()

	if err := a.daily.Close(); err != nil {
		logger.Error("daily_close_failed", "err", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "err", err)
	}

	newEff := a.eff
	newCfg := *a.eff.Config
	if port != "" {
		newCfg.Serial.Port = port
	}
	if outputDir != "" {
		newCfg.OutputDir = outputDir
		newCfg.DBPath = outputDir + "/store"
	}
	newEff.Config = &newCfg

	if err := config.Validate(newEff.Config); err != nil {
		return fmt.Errorf("reconfigure: %w", err)
	}
	if err := a.build(newEff); err != nil {
		return fmt.Errorf("reconfigure: %w", err)
	}

	logger.Info("recorder_reconfigured", "port", newCfg.Serial.Port, "output_dir", newCfg.OutputDir)
	return a.Run(ctx)
}

// Health returns the process-wide liveness snapshot (spec.md §6 status()).
func (a *App) Health() health.Snapshot {
	return a.health.Snapshot()
}

// Status is the control-surface name for Health: what the external CLI's
// status() call would report, plus the most recent resource sample.
func (a *App) Status() (health.Snapshot, health.ResourceSnapshot) {
	return a.health.Snapshot(), a.resource.Snapshot()
}

// ListPorts exposes the serial port enumeration primitive the external CLI
// would call; enumerating ports is in scope for the core even though the
// CLI surface itself is not.
func (a *App) ListPorts() []string {
	return serial.ListPorts()
}

// Shutdown flushes and closes every resource the App owns. Run must have
// already returned (its ctx canceled) before calling this.
func (a *App) Shutdown() error {
	a.resource.Stop()
	var firstErr error
	if err := a.daily.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func serialSettings(sc config.SerialConfig) (serial.Settings, error) {
	parity, err := config.ParseParity(sc.Parity)
	if err != nil {
		return serial.Settings{}, err
	}
	var sp serial.Parity
	switch parity {
	case config.ParityEven:
		sp = serial.ParityEven
	case config.ParityOdd:
		sp = serial.ParityOdd
	default:
		sp = serial.ParityNone
	}
	return serial.Settings{
		Port:           sc.Port,
		BaudRate:       sc.BaudRate,
		ByteSize:       sc.ByteSize,
		Parity:         sp,
		StopBits:       sc.StopBits,
		ReadTimeoutMs:  sc.ReadTimeoutMs,
		WriteTimeoutMs: sc.WriteTimeoutMs,
		RTSCTS:         sc.RTSCTS,
		DSRDTR:         sc.DSRDTR,
		XonXoff:        sc.XonXoff,
	}, nil
}
