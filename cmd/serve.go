package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/lcgrsa/internal/server"
	"github.com/user/lcgrsa/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("port", "8080", "Web server port")
	serveCmd.Flags().Int("workers", 1, "Job worker count")
	serveCmd.Flags().String("storage", "memory", "Key store driver (memory, sqlite)")
	serveCmd.Flags().String("dsn", "./lcgrsa.db", "SQLite database path")

	bindFlags(serveCmd.Flags(), map[string]string{
		"server.port":    "port",
		"server.workers": "workers",
		"storage.driver": "storage",
		"storage.dsn":    "dsn",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	fileStorage, err := storage.NewFileStorage(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, store, fileStorage)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	log.Printf("Using %s key store, PEM files under %s", cfg.Storage.Driver, cfg.KeyDir())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	log.Println("Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
