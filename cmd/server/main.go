package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inficreator0/hello-mom/internal/cache"
	"github.com/inficreator0/hello-mom/internal/config"
	"github.com/inficreator0/hello-mom/internal/domain"
	"github.com/inficreator0/hello-mom/internal/events"
	"github.com/inficreator0/hello-mom/internal/hellomom"
	"github.com/inficreator0/hello-mom/internal/httpserver"
	"github.com/inficreator0/hello-mom/internal/store"
	"golang.org/x/sync/errgroup"
)

const (
	pageMaxAge      = 7 * 24 * time.Hour
	cleanupInterval = time.Hour
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	repo, err := cache.Open(cfg.CacheDSN)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer repo.Close()
	logger.Info("opened cache")

	creds := hellomom.NewCredentials()
	token, err := repo.GetToken(ctx, cache.DefaultAccount)
	if err != nil {
		logger.Warn("failed to restore token, continuing signed out", "error", err)
	}
	creds.Set(token)
	if creds.Token() == "" {
		logger.Info("no valid saved token, requests are sent without authorization")
	} else {
		logger.Info("restored session", "subject", creds.Subject())
	}

	client := hellomom.NewClient(cfg.APIURL, creds, logger, hellomom.WithTimeout(cfg.HTTPTimeout))
	posts := store.New(client, logger, cfg.PageSize)

	// GET /posts serves the last saved first page, marked stale, until the
	// first refresh lands.
	view := domain.Query{Category: domain.CategoryAll, Sort: domain.SortNewest}
	if page, err := repo.LoadPage(ctx, view.Key()); err != nil {
		logger.Warn("failed to load saved page", "view", view.Key(), "error", err)
	} else if posts.Seed(view, page) {
		logger.Info("seeded posts from cache", "view", view.Key(), "posts", len(page.Posts))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		posts.Refresh(gctx, view)
		return nil
	})

	g.Go(func() error {
		startCleanupJob(gctx, repo, logger)
		return nil
	})

	if cfg.EventsURL != "" {
		subscriber := events.NewSubscriber(cfg.EventsURL, posts, creds.Token, logger)
		g.Go(func() error {
			if err := subscriber.Start(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("event subscriber: %w", err)
			}
			return nil
		})
	}

	server := httpserver.NewServer(cfg, posts, logger)
	g.Go(func() error {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
		case <-gctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down http server", "error", err)
		}
		return nil
	})

	logger.Info("server started", "port", cfg.Port, "api", cfg.APIURL)

	err = g.Wait()

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer saveCancel()
	savePage(saveCtx, repo, posts, logger)

	return err
}

// savePage stores the loaded list so the next start can show it immediately.
func savePage(ctx context.Context, repo *cache.Repository, posts *store.Store, logger *slog.Logger) {
	snap := posts.Snapshot()
	if !snap.HasLoaded {
		return
	}
	q, page := posts.Export()
	if err := repo.SavePage(ctx, q.Key(), page); err != nil {
		logger.Error("failed to save page", "view", q.Key(), "error", err)
		return
	}
	logger.Info("saved page", "view", q.Key(), "posts", len(page.Posts))
}

func startCleanupJob(ctx context.Context, repo *cache.Repository, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		deleted, err := repo.DeleteOldPages(ctx, pageMaxAge)
		if err != nil {
			logger.Error("failed to delete old pages", "error", err)
		} else if deleted > 0 {
			logger.Info("deleted old pages", "count", deleted)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
