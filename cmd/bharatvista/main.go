package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bharatvista/internal/api"
	"bharatvista/pkg/audio"
	"bharatvista/pkg/cache"
	"bharatvista/pkg/catalogue"
	"bharatvista/pkg/config"
	"bharatvista/pkg/db"
	"bharatvista/pkg/db/maintenance"
	"bharatvista/pkg/logging"
	"bharatvista/pkg/narration"
	"bharatvista/pkg/passport"
	"bharatvista/pkg/probe"
	"bharatvista/pkg/request"
	"bharatvista/pkg/speech"
	"bharatvista/pkg/store"
	"bharatvista/pkg/tracker"
	"bharatvista/pkg/tts/edgetts"
	"bharatvista/pkg/version"
)

var (
	configPath = flag.String("config", "configs/bharatvista.yaml", "Path to the config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := config.LoadEnv(".env", ".env.local"); err != nil {
		return err
	}
	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Bharat Vista Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	m := appCfg.Maintenance
	if err := maintenance.Run(ctx, dbConn, maintenance.Options{
		CacheMaxAge:   time.Duration(m.CacheMaxAge),
		HistoryMaxAge: time.Duration(m.HistoryMaxAge),
		ClipDir:       appCfg.Assets.ClipCacheDir,
		ClipMaxAge:    time.Duration(m.ClipMaxAge),
	}); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	cat, err := loadCatalogue(appCfg.Catalogue.Path)
	if err != nil {
		return err
	}
	slog.Info("Catalogue loaded", "monuments", cat.Len(), "states", len(cat.States()))

	tr := tracker.New()
	reqClient := request.New(cache.NewTiered(st, time.Duration(appCfg.Speech.MemoryTTL)), tr, request.Options{
		Timeout:     time.Duration(appCfg.Request.Timeout),
		MaxAttempts: appCfg.Request.Retries,
		BaseDelay:   time.Duration(appCfg.Request.Backoff.BaseDelay),
		MaxBackoff:  time.Duration(appCfg.Request.Backoff.MaxDelay),
	})

	clips := initClips(appCfg, reqClient)
	speechEngine := initSpeech(appCfg, clips, st, tr)

	probes := []probe.Probe{
		probe.CatalogueCheck(cat),
		probe.NarrationCoverageCheck(cat),
		probe.StoreCheck(st),
		probe.SpeechCheck(speechEngine),
		probe.AssetsDirCheck(appCfg.Assets.LocalDir),
	}
	results := probe.Run(ctx, probes)
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	passportTracker := passport.New(st, appCfg.Passport.StorageKey)
	passportTracker.Load(ctx)
	slog.Info("Passport loaded", "checkins", passportTracker.Count())

	prov := config.NewProvider(appCfg, st)
	registry := narration.NewRegistry(cat, func() narration.Options {
		c := context.Background()
		return narration.Options{
			Audio:         clips,
			Speech:        speechEngine,
			Volume:        prov.Volume(c),
			Muted:         prov.Muted(c),
			Rate:          prov.SpeechRate(c),
			ResumeCeiling: prov.ResumeCeiling(c),
			Language:      prov.PreferredLanguage(c),
		}
	}, prov.SessionTTL(ctx))
	defer audio.DefaultSpeaker.Close()
	defer registry.CloseAll()

	return runServer(ctx, appCfg, api.Handlers{
		Monuments: api.NewMonumentHandler(cat, appCfg.Catalogue.NearbyRadius.Km()),
		Narration: api.NewNarrationHandler(registry, prov, st, speechEngine),
		Passport:  api.NewPassportHandler(passportTracker, cat),
		Config:    api.NewConfigHandler(prov),
		Stats:     api.NewStatsHandler(tr, registry.Len),
		StaticDir: appCfg.Assets.LocalDir,
	})
}

func initDB(appCfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func loadCatalogue(path string) (*catalogue.Catalogue, error) {
	if path == "" {
		cat, err := catalogue.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load bundled catalogue: %w", err)
		}
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}
	cat, err := catalogue.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalogue %s: %w", path, err)
	}
	return cat, nil
}

func initClips(cfg *config.Config, client *request.Client) narration.AudioFactory {
	h := cfg.Audio.Handset
	return audio.Factory(audio.ClipOptions{
		Fetcher: audio.NewResolver(client, cfg.Assets.LocalDir, cfg.Assets.ClipCacheDir, cfg.Assets.RemoteBase),
		Handset: audio.Handset{
			Enabled:    h.Enabled,
			LowCutoff:  h.LowCutoff,
			HighCutoff: h.HighCutoff,
		},
	})
}

// initSpeech returns nil when speech is disabled so sessions fall back to
// "not available" for text-only monuments.
func initSpeech(cfg *config.Config, clips narration.AudioFactory, st store.CacheStore, tr *tracker.Tracker) narration.SpeechEngine {
	if cfg.Speech.Engine == "none" {
		slog.Info("Speech synthesis disabled")
		return nil
	}
	provider := edgetts.NewProvider(edgetts.ConfigFromEnv(), tr)
	if !provider.Configured() {
		slog.Warn("Edge TTS is not configured; text narration will be unavailable")
	}
	return speech.New(provider, clips, speech.Options{
		Voices:       cfg.Speech.Voices,
		DefaultVoice: cfg.Speech.DefaultVoice,
		VoiceFor:     edgetts.DefaultVoice,
		CacheDir:     cfg.Speech.CacheDir,
		Cache:        cache.NewTiered(st, time.Duration(cfg.Speech.MemoryTTL)),
	})
}

func runServer(ctx context.Context, cfg *config.Config, h api.Handlers) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address, h, shutdownFunc)
	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
