package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aminofox/hlsplay/pkg/config"
	"github.com/aminofox/hlsplay/pkg/dispatcher"
	"github.com/aminofox/hlsplay/pkg/host"
	"github.com/aminofox/hlsplay/pkg/hostbridge"
	"github.com/aminofox/hlsplay/pkg/logger"
	"github.com/aminofox/hlsplay/pkg/mediaelement"
	"github.com/aminofox/hlsplay/pkg/requester"
	"github.com/aminofox/hlsplay/pkg/urlutil"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to config file")
	sourceURL := flag.String("url", "", "Multivariant Playlist URL to load")
	bridgeAddr := flag.String("bridge-addr", "", "Address to serve the observability WebSocket on (empty disables it)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hlsplay %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	if *sourceURL == "" {
		fmt.Fprintln(os.Stderr, "missing required -url flag")
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	log := logger.NewDefaultLogger(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	ctx := context.Background()

	fetcher, err := buildFetcher(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize origin fetcher", logger.Err(err))
		return
	}

	timer := host.NewWallTimer()
	req := requester.New(fetcher, timer, log)
	req.SetPolicy(requester.PolicyPlaylist, requester.Policy{
		MaxRetry:    cfg.Requester.PlaylistMaxRetry,
		Timeout:     cfg.Requester.PlaylistTimeout,
		BackoffBase: cfg.Requester.BackoffBase,
		BackoffMax:  cfg.Requester.BackoffMax,
	})
	req.SetPolicy(requester.PolicySegment, requester.Policy{
		MaxRetry:    cfg.Requester.SegmentMaxRetry,
		Timeout:     cfg.Requester.SegmentTimeout,
		BackoffBase: cfg.Requester.BackoffBase,
		BackoffMax:  cfg.Requester.BackoffMax,
	})

	media := mediaelement.NewConsoleMediaElement(log, 0)

	d := dispatcher.New(req, media, timer, log)
	d.SetPlayerID(uuid.NewString())
	d.SetBufferGoal(cfg.Playback.BufferGoal)
	d.SetWantedSpeed(cfg.Playback.InitialPlaybackRate)

	if *bridgeAddr != "" {
		hub := hostbridge.NewHub(log)
		d.OnStateChange(func(s dispatcher.ReadyState) {
			hub.Broadcast(hostbridge.Event{Type: hostbridge.EventStateChanged, State: s.String()})
		})
		d.OnTickObserved(func(reason dispatcher.TickReason, position float64) {
			hub.Broadcast(hostbridge.Event{Type: hostbridge.EventTick, Reason: reason.String(), Position: position})
		})
		go func() {
			log.Info("starting observability bridge", logger.String("addr", *bridgeAddr))
			if err := http.ListenAndServe(*bridgeAddr, hub); err != nil {
				log.Error("observability bridge stopped", logger.Err(err))
			}
		}()
	}

	d.LoadContent(urlutil.New(*sourceURL))
	log.Info("loading content", logger.String("url", *sourceURL))

	// A browser host delivers playback observations on its own cadence;
	// this CLI host synthesizes a RegularInterval tick each second from the
	// console media element's state.
	tickDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		d.OnPlaybackTick(dispatcher.TickInit, 0)
		for {
			select {
			case <-tickDone:
				return
			case <-ticker.C:
				obs := media.Observe()
				d.OnPlaybackTick(dispatcher.TickRegularInterval, obs.Position)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info("hlsplay started, press Ctrl+C to stop")
	<-sigChan

	log.Info("shutdown signal received")
	close(tickDone)
	d.Stop()
	log.Info("hlsplay stopped")
}

// buildFetcher selects and wraps the origin Fetcher from cfg.Origin: an
// HTTP or S3 backend, optionally decorated with a Redis resource cache.
func buildFetcher(ctx context.Context, cfg *config.Config, log logger.Logger) (requester.Fetcher, error) {
	var fetcher requester.Fetcher

	switch cfg.Origin.Type {
	case "s3":
		s3Fetcher, err := host.NewS3Fetcher(ctx, host.S3Config{
			Endpoint:        cfg.Origin.S3.Endpoint,
			Region:          cfg.Origin.S3.Region,
			Bucket:          cfg.Origin.S3.Bucket,
			AccessKeyID:     cfg.Origin.S3.AccessKeyID,
			SecretAccessKey: cfg.Origin.S3.SecretAccessKey,
			UsePathStyle:    cfg.Origin.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 origin: %w", err)
		}
		fetcher = s3Fetcher
	default:
		fetcher = host.NewHTTPFetcher(cfg.Requester.PlaylistTimeout)
	}

	if cfg.Origin.CacheEnabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		ttl := cfg.Origin.CacheTTL
		if ttl <= 0 {
			ttl = cfg.Redis.DefaultTTL
		}
		fetcher = host.NewRedisResourceCache(client, fetcher, cfg.Redis.KeyPrefix, ttl)
		log.Info("resource cache enabled", logger.String("redis_address", cfg.Redis.Address))
	}

	return fetcher, nil
}
