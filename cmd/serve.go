package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-match/internal/config"
	"github.com/kozaktomas/face-match/internal/gallery"
	"github.com/kozaktomas/face-match/internal/model"
	"github.com/kozaktomas/face-match/internal/recognize"
	"github.com/kozaktomas/face-match/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition HTTP API",
	Long: `Start the Face Match HTTP API.
The server exposes detection, embedding, identification, verification, and
gallery management endpoints under /api/v1.

Examples:
  # Serve on the default port with the file gallery
  face-match serve

  # Custom bind address
  face-match serve --host 127.0.0.1 --port 9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// initSearchIndex builds or loads the HNSW index over the gallery.
func initSearchIndex(ctx context.Context, g *gallery.Gallery, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading HNSW index from %s...\n", indexPath)
	} else {
		fmt.Println("Building in-memory HNSW index for face matching...")
	}
	if err := g.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build HNSW index: %v\n", err)
		fmt.Println("Face matching will fall back to the gallery backend (slower)")
		return
	}
	if indexPath != "" {
		fmt.Printf("HNSW index ready with %d faces (persisted to %s)\n", g.IndexCount(), indexPath)
	} else {
		fmt.Printf("HNSW index built with %d faces (in-memory only)\n", g.IndexCount())
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	gal, closeGallery, err := openGallery(cfg)
	if err != nil {
		return err
	}
	defer closeGallery()

	initSearchIndex(ctx, gal, cfg.Gallery.HNSWIndexPath)

	detector, err := buildDetector(cfg)
	if err != nil {
		return err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	defer embedder.Close()
	defer model.DestroyRuntime()
	fmt.Printf("Embedding model loaded: %s (%d dimensions)\n", embedder.Name(), embedder.Dim())

	classifier, err := buildClassifier(cfg)
	if err != nil {
		return err
	}
	if classifier != nil {
		defer classifier.Close()
		fmt.Printf("Classifier loaded with %d classes\n", len(classifier.Names()))
	}

	opts := append(recognizerOptions(cfg), recognize.WithGallery(gal))
	if classifier != nil {
		opts = append(opts, recognize.WithClassifier(classifier))
	}
	recognizer := recognize.New(detector, embedder, opts...)

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, host, port, recognizer, detector, gal, classifier != nil)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Match API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
