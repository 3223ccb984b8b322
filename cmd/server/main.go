// Package main provides the mietcheck HTTP server entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mietcheck/mietcheck/internal/analysis"
	"github.com/mietcheck/mietcheck/internal/config"
	"github.com/mietcheck/mietcheck/internal/mailer"
	"github.com/mietcheck/mietcheck/internal/messages"
	"github.com/mietcheck/mietcheck/internal/orchestrator"
	"github.com/mietcheck/mietcheck/internal/payment"
	"github.com/mietcheck/mietcheck/internal/server"
	"github.com/mietcheck/mietcheck/internal/store"
	"github.com/mietcheck/mietcheck/internal/store/archive"
)

// Version is set at build time via ldflags.
var Version = "dev"

const sweepInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading configuration failed")
	}
	config.Set(cfg)

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Initializing session store failed")
	}
	defer st.Close()

	analyzer, err := analysis.NewClient(cfg.Azure.Endpoint, cfg.Azure.APIKey, cfg.Azure.Deployment, int32(cfg.Azure.MaxTokens))
	if err != nil {
		log.Fatal().Err(err).Msg("Initializing analysis client failed")
	}

	gateway := buildGateway(cfg)

	msgs := messages.NewCatalog()
	watchMessages := false
	if cfg.MessagesPath != "" {
		if err := msgs.Load(cfg.MessagesPath); err != nil {
			log.Warn().Err(err).Str("path", cfg.MessagesPath).Msg("Loading message overrides failed, using defaults")
		} else {
			watchMessages = true
		}
	}

	opts := []orchestrator.Option{}
	if cfg.SMTP.Host != "" {
		smtp := mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			Sender:   cfg.SMTP.Sender,
		}
		opts = append(opts, orchestrator.WithMailer(mailer.New(smtp.Sender, mailer.NewSMTP(smtp))))
	}
	if cfg.ArchivePath != "" {
		arch, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.ArchivePath).Msg("Opening archive failed")
		}
		defer arch.Close()
		opts = append(opts, orchestrator.WithArchive(arch))
	}

	orch := orchestrator.New(st, gateway, analyzer, msgs, orchestrator.Config{
		BaseURL: cfg.BaseURL,
		Prices:  cfg.Prices,
	}, opts...)

	svc := server.New(Version, orch)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Watch blocks until ctx is done, so it gets its own goroutine next
	// to the listener.
	if watchMessages {
		g.Go(func() error {
			if err := msgs.Watch(ctx); err != nil {
				log.Warn().Err(err).Msg("Watching message overrides failed")
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Str("version", Version).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				if n, err := st.Sweep(ctx, now); err != nil {
					log.Warn().Err(err).Msg("Session sweep failed")
				} else if n > 0 {
					log.Debug().Int("evicted", n).Msg("Session sweep done")
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown failed")
		}

		// In-flight analysis jobs settle before the stores close.
		orch.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store != "redis" {
		log.Info().Msg("Using in-memory session store")
		return store.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis session store")
	return store.NewRedisStore(client), nil
}

func buildGateway(cfg *config.Config) payment.Gateway {
	if cfg.StripeAPIKey == "" {
		log.Warn().Msg("No Stripe API key configured, using fake payment gateway")
		return payment.NewFakeGateway()
	}
	return payment.NewStripeGateway(cfg.StripeAPIKey)
}
