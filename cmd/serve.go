// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snabbsalud/agendabot/internal/api"
	"github.com/snabbsalud/agendabot/internal/booking"
	"github.com/snabbsalud/agendabot/internal/browser"
	"github.com/snabbsalud/agendabot/internal/chat"
	"github.com/snabbsalud/agendabot/internal/intent"
	"github.com/snabbsalud/agendabot/internal/observability"
	"github.com/snabbsalud/agendabot/internal/orchestrator"
	"github.com/snabbsalud/agendabot/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the booking assistant HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	logger := observability.GetLogger()
	defer observability.Sync()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required for serve (set AGENDABOT_DATABASE_URL)")
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}
	defer pool.Close()

	repo, err := store.New(ctx, pool, logger)
	if err != nil {
		return err
	}

	manager := browser.NewManager(ctx, cfg, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		manager.Shutdown(shutdownCtx)
	}()

	factory := func(ctx context.Context) (booking.Page, error) {
		return manager.NewPage(ctx)
	}
	driver := booking.NewDriver(factory, cfg, logger)

	orch := orchestrator.New(driver, cfg.Sessions, logger)
	defer orch.Close()

	extractor, err := buildExtractor(ctx, repo, logger)
	if err != nil {
		return err
	}

	conversation := chat.New(extractor, orch, repo, logger)
	server := api.NewServer(cfg.Server, repo, conversation, logger)
	httpServer := server.HTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP API listening.", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP API.")
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Server stopped.")
	return nil
}

// buildExtractor prefers the Gemini extractor and degrades to keyword matching
// when no API key is configured. The keyword catalogs come from the database
// when reachable.
func buildExtractor(ctx context.Context, repo *store.Store, logger *zap.Logger) (intent.Extractor, error) {
	var specialtyNames []string
	if specialties, err := repo.ListSpecialties(ctx); err == nil {
		for _, sp := range specialties {
			specialtyNames = append(specialtyNames, sp.Name)
		}
	} else {
		logger.Warn("Could not load specialty catalog; keyword extraction will be weaker.", zap.Error(err))
	}
	fallback := intent.NewKeywordExtractor(specialtyNames, nil)

	if cfg.Intent.APIKey == "" {
		logger.Info("No Gemini API key configured; using keyword intent extraction.")
		return fallback, nil
	}
	extractor, err := intent.NewGeminiExtractor(ctx, cfg.Intent, fallback, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build intent extractor: %w", err)
	}
	return extractor, nil
}
