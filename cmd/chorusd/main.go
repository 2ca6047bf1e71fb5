package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/peterbourgon/ff"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"go.senan.xyz/chorus"
	"go.senan.xyz/chorus/browse"
	"go.senan.xyz/chorus/clock"
	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/library"
	"go.senan.xyz/chorus/mediastore"
	"go.senan.xyz/chorus/permission"
	"go.senan.xyz/chorus/playlisticon"
	"go.senan.xyz/chorus/queue"
	"go.senan.xyz/chorus/scanner"
	"go.senan.xyz/chorus/server"
	"go.senan.xyz/chorus/tags"
	"go.senan.xyz/chorus/usage"
)

func main() {
	set := flag.NewFlagSet(chorus.Name, flag.ExitOnError)
	confListenAddr := set.String("listen-addr", "0.0.0.0:4848", "listen address (optional)")

	var confMusicPaths multiPath
	set.Var(&confMusicPaths, "music-path", "path to music (repeatable)")

	confDBPath := set.String("db-path", "chorus.db", "path to database (optional)")
	confIconPath := set.String("playlist-icon-path", "", "path to store playlist icons (optional)")

	confScanIntervalMins := set.Int("scan-interval", 0, "interval (in minutes) to automatically scan music (optional)")
	confScanAtStart := set.Bool("scan-at-start-enabled", true, "whether to perform an initial scan at startup (optional)")
	confScanWatcher := set.Bool("scan-watcher-enabled", false, "whether to watch file system for new music and rescan (optional)")
	confScanDebounceSecs := set.Int("scan-watcher-debounce", 10, "seconds of quiet before a watcher triggered scan (optional)")

	confGraceSecs := set.Int("collection-grace", 30, "seconds to keep collections warm with no subscribers (optional)")
	confDeleteConsent := set.Bool("delete-consent-enabled", false, "whether deletes need explicit confirmation (optional)")

	confLogLevel := set.String("log-level", "info", "log level (optional)")
	confShowVersion := set.Bool("version", false, "show chorus version")
	_ = set.String("config-path", "", "path to config (optional)")

	if err := ff.Parse(set, os.Args[1:],
		ff.WithConfigFileFlag("config-path"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix(chorus.NameUpper),
	); err != nil {
		log.Fatal().Err(err).Msg("parsing args")
	}

	if *confShowVersion {
		fmt.Printf("v%s\n", chorus.Version)
		os.Exit(0)
	}

	level, err := zerolog.ParseLevel(*confLogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("parsing log level")
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(confMusicPaths) == 0 {
		log.Fatal().Msg("please provide a music directory")
	}
	musicPaths := make([]string, 0, len(confMusicPaths))
	for _, confMusicPath := range confMusicPaths {
		musicPath, err := validatePath(confMusicPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", confMusicPath).Msg("checking music dir")
		}
		musicPaths = append(musicPaths, musicPath)
	}

	if *confIconPath == "" {
		*confIconPath = filepath.Join(filepath.Dir(*confDBPath), "playlist-icons")
	}

	dbc, err := db.New(*confDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}
	defer dbc.Close()
	if err := dbc.Migrate(db.MigrationContext{}); err != nil {
		log.Fatal().Err(err).Msg("migrating database")
	}

	grace := time.Duration(*confGraceSecs) * time.Second
	clk := clock.System{}

	scan := scanner.New(dbc, musicPaths, tags.TagLib{}, clk)
	perms := permission.NewRepository(musicPaths)
	storage := mediastore.New(dbc, scan.Events(), perms, mediastore.Options{
		Grace:                grace,
		RequireDeleteConsent: *confDeleteConsent,
	})

	exclusions := db.NewExclusionStore(dbc, grace)
	tracks := library.NewTrackRepository(storage, exclusions, clk, grace)
	albums := library.NewAlbumRepository(storage, tracks, grace)
	artists := library.NewArtistRepository(storage, tracks, grace)
	icons, err := playlisticon.NewWriter(*confIconPath)
	if err != nil {
		log.Fatal().Err(err).Msg("creating icon writer")
	}
	playlists := library.NewPlaylistRepository(db.NewPlaylistStore(dbc), tracks, icons)
	manager := usage.NewManager(tracks, db.NewUsageStore(dbc), clk)

	ctrl := &server.Controller{
		Tracks:    tracks,
		Albums:    albums,
		Artists:   artists,
		Playlists: playlists,
		Usage:     manager,
		Browser:   browse.NewBrowser(albums, artists, playlists),
		Queue:     queue.New(),
		Scanner:   scan,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.New(ctrl, *confListenAddr).Serve(ctx)
	})
	if *confScanAtStart {
		group.Go(func() error {
			if _, err := scan.ScanAndClean(ctx); err != nil {
				log.Error().Err(err).Msg("initial scan")
			}
			return nil
		})
	}
	if *confScanIntervalMins > 0 {
		group.Go(func() error {
			return scanTicker(ctx, scan, time.Duration(*confScanIntervalMins)*time.Minute)
		})
	}
	if *confScanWatcher {
		group.Go(func() error {
			return scan.Watch(ctx, time.Duration(*confScanDebounceSecs)*time.Second)
		})
	}
	group.Go(func() error {
		return permissionTicker(ctx, perms)
	})

	if err := group.Wait(); err != nil {
		log.Fatal().Err(err).Msg("running")
	}
}

func scanTicker(ctx context.Context, scan *scanner.Scanner, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := scan.ScanAndClean(ctx); err != nil {
				log.Error().Err(err).Msg("periodic scan")
			}
		}
	}
}

// permissionTicker reprobes access to the music paths so revoked mounts are
// noticed without a request having to fail first.
func permissionTicker(ctx context.Context, perms *permission.Repository) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			last := perms.Current()
			if now := perms.Refresh(); now != last {
				log.Info().
					Bool("read", now.CanReadAudioFiles).
					Bool("write", now.CanWriteAudioFiles).
					Msg("permissions changed")
			}
		}
	}
}

func validatePath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return "", err
	}
	p, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("make absolute: %w", err)
	}
	return p, nil
}

type multiPath []string

func (m multiPath) String() string {
	return strings.Join(m, ", ")
}

func (m *multiPath) Set(value string) error {
	*m = append(*m, value)
	return nil
}
