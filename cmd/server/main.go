// Package main provides the server entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/goofenthol/chscore/internal/api/httpapi"
	"github.com/goofenthol/chscore/internal/app/announce"
	"github.com/goofenthol/chscore/internal/domain/score"
	"github.com/goofenthol/chscore/internal/infra/botconfig"
	"github.com/goofenthol/chscore/internal/infra/logger"
	"github.com/goofenthol/chscore/internal/infra/store"
)

var (
	app        = kingpin.New("chscore-server", "Clone Hero score telemetry server")
	configPath = app.Flag("config", "Path to bot config file").Default("bot_config.json").String()
	dbPath     = app.Flag("db", "Path to score database").Default("scores.db").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// backfill-fcs command
	backfillCmd = app.Command("backfill-fcs", "Scan historical scores for missed full combos and exit")

	// backup command
	backupCmd = app.Command("backup", "Back up the database and exit")
	backupDir = backupCmd.Flag("dir", "Backup directory").Default("backups").String()
	backupN   = backupCmd.Flag("keep", "Backups to keep").Default("7").Int()
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := botconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := initLogger(cfg); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to open database: %v", err)
	}
	defer st.Close()

	switch command {
	case backfillCmd.FullCommand():
		if err := runBackfill(st, cfg); err != nil {
			zlog.Error().Msgf("Backfill error: %v", err)
			os.Exit(1)
		}
		return
	case backupCmd.FullCommand():
		if err := st.Backup(*backupDir, *backupN); err != nil {
			zlog.Error().Msgf("Backup error: %v", err)
			os.Exit(1)
		}
		zlog.Info().Str("dir", *backupDir).Msg("Backup complete")
		return
	}

	if err := run(st, cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// initLogger applies the config's logging section, with command-line
// overrides.
func initLogger(cfg *botconfig.Manager) error {
	logging := cfg.Logging()
	loggerConfig := logger.Config{
		Output:        "stdout",
		Level:         logging.Level,
		RotateEnabled: logging.Rotation.Enabled,
		MaxSizeMB:     logging.Rotation.MaxSizeMB,
		KeepBackups:   logging.Rotation.KeepBackups,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	return logger.Init(loggerConfig)
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(st *store.Store, cfg *botconfig.Manager) error {
	api := httpapi.New(st, cfg, &logPublisher{})

	apiCfg := cfg.API()
	addr := fmt.Sprintf("%s:%d", apiCfg.Host, apiCfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(api.Handler(), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// runBackfill executes the historical full-combo scan and renders the
// retroactive announcements when the config enables them.
func runBackfill(st *store.Store, cfg *botconfig.Manager) error {
	ctx := context.Background()
	announcements := cfg.Announcements()
	collect := announcements.FullCombos.AnnounceRetroactiveFCs

	result, err := st.ScanHistoricalFCs(ctx, collect)
	if err != nil {
		return err
	}
	zlog.Info().Int("scanned", result.Scanned).Int("found", result.FCsFound).Msg("Backfill finished")

	pub := &logPublisher{}
	for _, fc := range result.Events {
		in := announce.Input{
			Category:       botconfig.CategoryFullCombo,
			UserName:       fc.User.DisplayName,
			UserExternalID: fc.User.ExternalID,
			Score: announce.Score{
				ChartID:    fc.ChartID,
				Instrument: score.Instrument(fc.Instrument),
				Difficulty: score.Difficulty(fc.Difficulty),
				Value:      fc.Score,
			},
			PreviousScore:  fc.PreviousScore,
			PreviousHolder: fc.PreviousHolder,
			IsFirstFC:      fc.IsFirstFC,
			Retroactive:    true,
			Now:            time.Now().UTC(),
		}
		in.Meta.ChartID = fc.ChartID
		in.Meta.Title = fc.SongTitle
		in.Meta.Artist = fc.SongArtist
		in.Meta.Charter = fc.SongCharter

		if a, ok := announce.Format(in, announcements); ok {
			if err := pub.Publish(a); err != nil {
				zlog.Error().Err(err).Msg("Announcement delivery failed")
			}
		}
	}
	return nil
}

// logPublisher is the announcement sink used until a chat transport is
// attached: the structured document is logged in full, never dropped.
type logPublisher struct{}

func (p *logPublisher) Publish(a *announce.Announcement) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return err
	}
	zlog.Info().RawJSON("announcement", doc).Str("category", string(a.Category)).Msg("Announcement ready")
	return nil
}
