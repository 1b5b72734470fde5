// Package main provides the watcher client entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/goofenthol/chscore/internal/app/nowplaying"
	"github.com/goofenthol/chscore/internal/app/resolver"
	"github.com/goofenthol/chscore/internal/app/state"
	"github.com/goofenthol/chscore/internal/app/submit"
	"github.com/goofenthol/chscore/internal/app/watcher"
	"github.com/goofenthol/chscore/internal/domain/score"
	"github.com/goofenthol/chscore/internal/domain/song"
	"github.com/goofenthol/chscore/internal/infra/chartfile"
	"github.com/goofenthol/chscore/internal/infra/clientconfig"
	"github.com/goofenthol/chscore/internal/infra/logger"
	"github.com/goofenthol/chscore/internal/infra/songcache"
)

var (
	app        = kingpin.New("chscore-client", "Clone Hero score watcher client")
	configPath = app.Flag("config", "Path to client config file").Default("client.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// pair command
	pairCmd = app.Command("pair", "Pair this client with the server")

	// resync command
	resyncCmd = app.Command("resync", "Re-run the catch-up scan once and exit")

	// resolve command
	resolveCmd = app.Command("resolve-hashes", "Resolve the server's unknown chart ids and exit")
)

func init() {
	app.Command("start", "Watch for new scores (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	cfg, err := clientconfig.LoadOrDefault(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	var runErr error
	switch command {
	case pairCmd.FullCommand():
		runErr = runPair(cfg)
	case resyncCmd.FullCommand():
		runErr = runOnce(cfg, true)
	case resolveCmd.FullCommand():
		runErr = runResolveHashes(cfg)
	default:
		runErr = runWatch(cfg)
	}
	if runErr != nil {
		zlog.Error().Msgf("Client error: %v", runErr)
		os.Exit(1)
	}
}

// runPair walks the pairing flow: request a code, show it, poll until
// the chat side redeems it, persist the issued token.
func runPair(cfg *clientconfig.Config) error {
	if cfg.Server.ClientID == "" {
		cfg.Server.ClientID = uuid.NewString()
	}
	client := submit.New(cfg.Server.URL, "", time.Duration(cfg.Server.TimeoutSec)*time.Second)

	code, err := client.RequestPairing(context.Background(), cfg.Server.ClientID)
	if err != nil {
		return errors.Wrap(err, "request pairing")
	}
	fmt.Printf("Pairing code: %s\n", code)
	fmt.Println("Run the pair command in your chat channel with this code, then wait...")

	token, err := client.PollPairing(context.Background(), cfg.Server.ClientID)
	if err != nil {
		return errors.Wrap(err, "pairing did not complete")
	}

	cfg.Server.AuthToken = token
	if err := cfg.Save(*configPath); err != nil {
		return errors.Wrap(err, "save config")
	}
	fmt.Println("Paired! Auth token saved.")
	return nil
}

// pipeline bundles the client's long-lived components.
type pipeline struct {
	cfg      *clientconfig.Config
	tracker  *nowplaying.Tracker
	resolver *resolver.Resolver
	cache    cacheLookup
	locator  *chartfile.Locator
	client   *submit.Client
	store    *state.Store
	watcher  *watcher.Watcher
}

// cacheLookup adapts the decoded song cache to the resolver.
type cacheLookup map[score.ChartID]song.Metadata

func (c cacheLookup) Lookup(id score.ChartID) (song.Metadata, bool) {
	m, ok := c[id]
	return m, ok
}

func buildPipeline(cfg *clientconfig.Config) (*pipeline, error) {
	if cfg.Server.AuthToken == "" {
		return nil, errors.New("no auth token configured; run the pair command first")
	}
	if _, err := os.Stat(cfg.ScoreFile()); err != nil {
		return nil, errors.Wrap(err, "score file not found; check game.data_dir")
	}

	cache, err := songcache.DecodeFile(cfg.SongCacheFile())
	if err != nil {
		zlog.Warn().Err(err).Msg("Could not parse song cache, continuing without it")
		cache = nil
	} else {
		zlog.Info().Int("songs", len(cache)).Msg("Loaded song cache")
	}

	locator := chartfile.NewLocator(cfg.Game.SongsDirs, cfg.SettingsFile())
	tracker := nowplaying.NewTracker(cfg.NowPlayingFile())
	res := resolver.New(tracker, cacheLookup(cache), locator)
	client := submit.New(cfg.Server.URL, cfg.Server.AuthToken, time.Duration(cfg.Server.TimeoutSec)*time.Second)

	st, err := state.Load(cfg.StatePath())
	if err != nil {
		return nil, errors.Wrap(err, "load state")
	}

	p := &pipeline{
		cfg:      cfg,
		tracker:  tracker,
		resolver: res,
		cache:    cacheLookup(cache),
		locator:  locator,
		client:   client,
		store:    st,
	}
	p.watcher = watcher.New(cfg.ScoreFile(), st, p.handleEvent)
	return p, nil
}

// handleEvent is the single-consumer sink for watcher events.
func (p *pipeline) handleEvent(ev watcher.Event) watcher.Disposition {
	switch ev.Kind {
	case watcher.NoopWrite:
		zlog.Info().Msg("Score file written but no score changed")
		return watcher.Processed
	case watcher.NotImproved:
		zlog.Info().
			Str("chart", ev.Entry.Fingerprint.String()).
			Int("score", ev.Entry.Score).
			Int("personal_best", ev.PreviousBest).
			Int("delta", ev.Delta).
			Msg("Score did not improve personal best")
		return watcher.Processed
	}

	enriched := p.resolver.Resolve(ev.Entry)
	retry := false
	defer func() {
		if !retry {
			p.resolver.Done()
		}
	}()

	req := submit.ScoreRequest{
		ChartHash:         string(ev.Entry.Fingerprint.ChartID),
		InstrumentID:      int(ev.Entry.Fingerprint.Instrument),
		DifficultyID:      int(ev.Entry.Fingerprint.Difficulty),
		Score:             ev.Entry.Score,
		CompletionPercent: ev.Entry.CompletionPercent(),
		Stars:             ev.Entry.Stars,
		SongTitle:         enriched.Meta.Title,
		SongArtist:        enriched.Meta.Artist,
		SongCharter:       enriched.Meta.Charter,
		ScoreType:         "raw",
	}
	if pc := ev.Entry.PlayCount; pc > 0 {
		req.PlayCount = &pc
	}
	if enriched.Rich {
		req.ScoreType = "rich"
	}
	if enriched.Stats != nil {
		total := enriched.Stats.TotalNotes
		nps := enriched.Stats.NPS
		req.TotalNotesInChart = &total
		req.NotesTotal = &total
		req.NPS = &nps
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(p.cfg.Server.TimeoutSec)*time.Second)
	defer cancel()

	resp, err := p.client.SubmitScore(ctx, req)
	switch {
	case errors.Is(err, submit.ErrUnauthorized):
		// Retrying the same token cannot succeed; mark seen and ask the
		// user to pair again.
		zlog.Error().Msg("Auth token rejected; run the pair command to re-pair")
		return watcher.Processed
	case errors.Is(err, submit.ErrTransient):
		zlog.Warn().Err(err).Msg("Submission failed, will retry on next change or resync")
		retry = true
		return watcher.Retry
	case err != nil:
		zlog.Error().Err(err).Msg("Submission rejected")
		return watcher.Processed
	}

	zlog.Info().
		Str("song", enriched.Meta.DisplayTitle()).
		Str("chart", ev.Entry.Fingerprint.String()).
		Int("score", ev.Entry.Score).
		Msgf("Score submitted: %s", resp.Summary())
	return watcher.Processed
}

// runOnce performs the catch-up scan without starting the watch loop.
func runOnce(cfg *clientconfig.Config, logResult bool) error {
	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	if err := p.watcher.CatchUp(); err != nil {
		return err
	}
	if logResult {
		zlog.Info().Msg("Resync complete")
	}
	return nil
}

// runWatch is the long-running client: catch-up scan, then the watch
// loop, the now-playing poller and a background hash resolution pass.
func runWatch(cfg *clientconfig.Config) error {
	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.tracker.Start(ctx)
	defer p.tracker.Stop()

	if err := p.watcher.CatchUp(); err != nil {
		zlog.Warn().Err(err).Msg("Catch-up scan failed")
	}

	go func() {
		if err := resolveHashes(ctx, p); err != nil {
			zlog.Debug().Err(err).Msg("Hash resolution pass failed")
		}
	}()

	watchErrCh := make(chan error, 1)
	go func() { watchErrCh <- p.watcher.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
		cancel()
		<-watchErrCh
	case err := <-watchErrCh:
		if err != nil {
			return errors.Wrap(err, "watcher stopped")
		}
	}
	zlog.Info().Msg("Client stopped")
	return nil
}

// runResolveHashes runs one hash resolution pass and exits.
func runResolveHashes(cfg *clientconfig.Config) error {
	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	return resolveHashes(context.Background(), p)
}

// resolveHashes answers the server's unresolved chart ids from the
// local song cache and chart files.
func resolveHashes(ctx context.Context, p *pipeline) error {
	hashes, err := p.client.UnresolvedHashes(ctx)
	if err != nil {
		return err
	}
	if len(hashes) == 0 {
		return nil
	}

	// The live now-playing file is unrelated to these charts; only the
	// song cache and chart files are consulted.
	var resolved []submit.ResolvedChart
	for _, hash := range hashes {
		meta := song.Metadata{ChartID: score.ChartID(hash)}
		if path := p.locator.Find(meta.ChartID); path != "" {
			if data := chartfile.Parse(path); data != nil {
				meta.Merge(song.Metadata{Title: data.Name, Artist: data.Artist, Charter: data.Charter})
			}
		}
		if cached, ok := p.cache.Lookup(meta.ChartID); ok {
			meta.Merge(cached)
		}
		if meta.Title == "" && meta.Artist == "" {
			continue
		}
		resolved = append(resolved, submit.ResolvedChart{
			ChartHash: hash,
			Title:     meta.Title,
			Artist:    meta.Artist,
			Charter:   meta.Charter,
		})
	}
	if len(resolved) == 0 {
		zlog.Info().Int("unresolved", len(hashes)).Msg("No local metadata for the server's unknown charts")
		return nil
	}

	n, err := p.client.ResolveHashes(ctx, resolved)
	if err != nil {
		return err
	}
	zlog.Info().Int("updated", n).Msg("Resolved chart metadata for the server")
	return nil
}
