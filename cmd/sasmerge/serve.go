package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/sasmerge/internal/api"
	"github.com/banshee-data/sasmerge/internal/db"
)

// runServe serves the run-history store until SIGINT or SIGTERM.
func runServe(args []string, errOut io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", ":8080", "listen address")
	dbPath := fs.String("db", "", "SQLite run-history database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return errors.New("listen address is required")
	}
	if *dbPath == "" {
		return errors.New("serve needs -db")
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	mux := api.NewServer(database).ServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		return fmt.Errorf("failed to attach admin routes: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("serving run history from %s on %s", *dbPath, *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
	return nil
}

// runMigrate applies schema migrations to a run-history database.
func runMigrate(args []string, in io.Reader, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(errOut)
	dbPath := fs.String("db", "", "SQLite run-history database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return errors.New("migrate needs -db")
	}
	return db.MigrateCommand(fs.Args(), *dbPath, in, out)
}
