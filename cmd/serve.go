package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/camden-git/faceattend/handlers"
	"github.com/camden-git/faceattend/realtime"
	"github.com/camden-git/faceattend/services"
	"github.com/camden-git/faceattend/workers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP ingestion and dashboard server",
	Long: `Start the attendance server.

The capture device posts photos to /upload; the dashboard reads
/api/dashboard-data and follows live events on /api/ws. Gallery curation
lives under /api/people and is protected by basic auth when
ADMIN_PASSWORD_HASH is set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	employees, err := a.openEmployees()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	g, err := a.openGallery()
	if err != nil {
		return err
	}
	artifacts, err := a.openMediaProcessor()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(cfg.AllowedOrigins)
	go hub.Run(ctx)

	recorder := services.NewAttendanceRecorder(employees, hub, cfg.StoreTimeout, cfg.StoreRetries)

	log.Printf("Initializing recognition worker pool (Workers: %d, Queue Size: %d)...", cfg.NumRecognitionWorkers, cfg.RecognitionQueueSize)
	pool, err := workers.NewRecognitionPool(a.pipelineFactory(g, recorder), cfg.RecognitionQueueSize, cfg.NumRecognitionWorkers)
	if err != nil {
		return err
	}
	defer pool.Stop()
	if cfg.SaveDebugImages {
		pool.Artifacts = artifacts
	}

	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Gallery backend: %s", cfg.GalleryBackend)
	log.Printf("Storing uploads in: %s", cfg.UploadsPath)
	log.Printf("Match threshold %.2f, top-%d, margin %dpx, rotation %s", cfg.MatchThreshold, cfg.MatchTopK, cfg.FaceMargin, cfg.Rotation)

	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Captured-At"},
		ExposedHeaders:   []string{handlers.AttendanceStatusHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	handlers.Routes{
		Upload: &handlers.UploadHandler{
			Pool:          pool,
			Artifacts:     artifacts,
			Events:        hub,
			SaveAnnotated: cfg.SaveDebugImages,
		},
		Dashboard: &handlers.DashboardHandler{Directory: employees},
		Employees: &handlers.EmployeeHandler{Repo: employees},
		People:    &handlers.PeopleHandler{Gallery: g},
		Hub:       hub,
		Assets:    artifacts.Store(),
		Cfg:       cfg,
	}.Mount(r)

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("Warning: sd_notify READY failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Println("Shutdown signal received")
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}
	log.Println("Server stopped")
	return nil
}
