package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"audiopages/pkg/audio"
	"audiopages/pkg/config"
	"audiopages/pkg/db"
	"audiopages/pkg/db/maintenance"
	"audiopages/pkg/logging"
	"audiopages/pkg/player"
	"audiopages/pkg/probe"
	"audiopages/pkg/request"
	"audiopages/pkg/speech"
	"audiopages/pkg/store"
	"audiopages/pkg/tracker"
	"audiopages/pkg/tts"
	"audiopages/pkg/tts/elevenlabs"
	"audiopages/pkg/version"
)

var (
	configPath = flag.String("config", "configs/audiopages.yaml", "Path to config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// .env is optional; the environment wins either way
	_ = godotenv.Load()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log, &appCfg.History)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	// Configure History Logging
	tts.SetLogPath(appCfg.History.TTS.Path)
	tts.SetEnabled(appCfg.History.TTS.Enabled)

	slog.Info("AudioPages started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, time.Duration(appCfg.TTS.ElevenLabs.VoiceCacheTTL)); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	tr := tracker.New()
	reqClient := request.New(st, tr, request.ClientConfig{
		Retries:   appCfg.Request.Retries,
		Timeout:   time.Duration(appCfg.Request.Timeout),
		BaseDelay: time.Duration(appCfg.Request.Backoff.BaseDelay),
		MaxDelay:  time.Duration(appCfg.Request.Backoff.MaxDelay),
	})

	reader := bufio.NewReader(in)

	// The key comes from .env or the environment; ask interactively as a
	// last resort. Whatever the answer, it stays in memory.
	if appCfg.TTS.ElevenLabs.Key == "" {
		promptKey(appCfg, reader, out)
	}

	// Startup Probes
	probes := []probe.Probe{
		{
			Name:     "Output Directory",
			Check:    outputDirCheck(appCfg.Output.Dir),
			Critical: true,
		},
		{
			Name:     "Database",
			Check:    databaseCheck(st),
			Critical: true,
		},
		{
			Name:     "Audio Players",
			Check:    playersCheck(),
			Critical: false,
		},
	}
	results := probe.Run(ctx, probes)
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	// Interrupt ends the menu loop and aborts any running conversion
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			slog.Info("Interrupt received, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	elClient := elevenlabs.New(appCfg.TTS.ElevenLabs, reqClient)
	orchestrator := speech.New(appCfg, elClient, st, tr)

	audioMgr := audio.New(appCfg.Player.Volume)
	defer audioMgr.Shutdown()
	selector := player.New(audioMgr)

	app := newApp(appCfg, configPath, orchestrator, selector, elClient, st, tr, reader, out)
	return app.Run(ctx)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func promptKey(cfg *config.Config, reader *bufio.Reader, out io.Writer) {
	fmt.Fprintln(out, "No ELEVENLABS_API_KEY found in the environment.")
	fmt.Fprint(out, "Enter your ElevenLabs API key (kept in memory only, never saved): ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	cfg.TTS.ElevenLabs.Key = strings.TrimSpace(line)
	if cfg.TTS.ElevenLabs.Key == "" {
		fmt.Fprintln(out, "No key entered. Conversions will fail until one is provided.")
	}
}

func outputDirCheck(dir string) probe.CheckFunc {
	return func(context.Context) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create output directory: %w", err)
		}
		probeFile := filepath.Join(dir, ".audiopages_probe")
		if err := os.WriteFile(probeFile, []byte("ok"), 0o644); err != nil {
			return fmt.Errorf("output directory not writable: %w", err)
		}
		return os.Remove(probeFile)
	}
}

func databaseCheck(st store.Store) probe.CheckFunc {
	return func(ctx context.Context) error {
		if err := st.SetState(ctx, "probe", "ok"); err != nil {
			return fmt.Errorf("database not writable: %w", err)
		}
		return st.DeleteState(ctx, "probe")
	}
}

func playersCheck() probe.CheckFunc {
	return func(context.Context) error {
		if found := player.Detect(); len(found) > 0 {
			return nil
		}
		return fmt.Errorf("%w: no CLI audio player on PATH (install mpg123 or mpv); in-process playback will still be tried", tts.ErrMissingDependency)
	}
}
