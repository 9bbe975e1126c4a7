package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "gamelobby/backend/docs" // registers the swagger spec
	"gamelobby/backend/internal/config"
	"gamelobby/backend/internal/database"
	"gamelobby/backend/internal/hub"
	"gamelobby/backend/internal/lock"
	"gamelobby/backend/internal/metrics"
	"gamelobby/backend/internal/routes"
	"gamelobby/backend/internal/service"
	"gamelobby/backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var skipMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not migrate the schema on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if !skipMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	events := hub.NewHub()
	defer events.Close()

	svc := service.New(store.NewGormStore(db), locker, service.Config{
		MinPlayersToStart:   cfg.MinPlayersToStart,
		MaxLobbySize:        cfg.MaxLobbySize,
		RequireOnlineToJoin: cfg.RequireOnlineToJoin,
	},
		service.WithPublisher(events),
		service.WithRecorder(metrics.New(prometheus.DefaultRegisterer)),
	)

	go svc.RunSweeper(ctx, cfg.PresenceSweepInterval, cfg.PresenceTTL)

	gin.SetMode(cfg.GinMode)
	router := gin.Default()
	routes.Setup(router, svc, events, cfg)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server is running on :%s", cfg.Port)
		log.Printf("Swagger UI is available at http://localhost:%s/swagger/index.html", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	// Open SSE streams end when the hub closes their clients.
	events.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// newLocker returns Redis-backed locks when REDIS_URL is set, otherwise
// in-process locks that only serialize a single instance.
func newLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		log.Println("Using in-process lobby locks")
		return lock.NewLocalLocker(), func() {}, nil
	}

	client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	log.Println("Using Redis lobby locks")
	return lock.NewRedisLocker(client, cfg.LockTTL), func() { _ = client.Close() }, nil
}
