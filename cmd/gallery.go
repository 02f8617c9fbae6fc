package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-match/internal/config"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the gallery of enrolled faces",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled persons",
	RunE:  runGalleryList,
}

var galleryRemoveCmd = &cobra.Command{
	Use:   "remove <person-uid>",
	Short: "Remove a person and all their faces",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryRemove,
}

var galleryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show gallery statistics",
	RunE:  runGalleryStats,
}

var galleryExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the gallery as reference JSON",
	Long: `Export all enrolled faces to a reference embeddings JSON file. The file
can be imported into another gallery or used directly as the file backend
(GALLERY_FILE).`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryExport,
}

var galleryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import faces from a reference JSON file",
	Long: `Import a reference embeddings JSON file into the gallery. Both the full
enrollment schema and the minimal id+vector schema produced by the offline
converter are accepted; vectors are L2-normalized on import when needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryImport,
}

var galleryReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the persisted HNSW search index",
	RunE:  runGalleryReindex,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryRemoveCmd)
	galleryCmd.AddCommand(galleryStatsCmd)
	galleryCmd.AddCommand(galleryExportCmd)
	galleryCmd.AddCommand(galleryImportCmd)
	galleryCmd.AddCommand(galleryReindexCmd)
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	gal, closeGallery, err := openGallery(cfg)
	if err != nil {
		return err
	}
	defer closeGallery()

	persons, err := gal.Persons(context.Background())
	if err != nil {
		return err
	}
	if len(persons) == 0 {
		fmt.Println("Gallery is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UID\tNAME\tFACES")
	for _, p := range persons {
		fmt.Fprintf(w, "%s\t%s\t%d\n", p.UID, p.Name, p.FaceCount)
	}
	return w.Flush()
}

func runGalleryRemove(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	gal, closeGallery, err := openGallery(cfg)
	if err != nil {
		return err
	}
	defer closeGallery()

	removed, err := gal.RemovePerson(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d faces\n", removed)
	return nil
}

func runGalleryStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	gal, closeGallery, err := openGallery(cfg)
	if err != nil {
		return err
	}
	defer closeGallery()

	stats, err := gal.Stats(context.Background())
	if err != nil {
		return err
	}

	backend := "file"
	if cfg.Database.URL != "" {
		backend = "postgres"
	}
	fmt.Printf("Backend:   %s\n", backend)
	fmt.Printf("Persons:   %d\n", stats.Persons)
	fmt.Printf("Faces:     %d\n", stats.Faces)
	fmt.Printf("Dimension: %d\n", stats.Dimension)
	return nil
}

func runGalleryExport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	gal, closeGallery, err := openGallery(cfg)
	if err != nil {
		return err
	}
	defer closeGallery()

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	if err := gal.Export(context.Background(), f); err != nil {
		return err
	}

	stats, err := gal.Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d faces to %s\n", stats.Faces, args[0])
	return nil
}

func runGalleryImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	gal, closeGallery, err := openGallery(cfg)
	if err != nil {
		return err
	}
	defer closeGallery()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	imported, err := gal.Import(context.Background(), f)
	if err != nil {
		return fmt.Errorf("after importing %d faces: %w", imported, err)
	}
	fmt.Printf("Imported %d faces from %s\n", imported, args[0])
	return nil
}

func runGalleryReindex(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Gallery.HNSWIndexPath == "" {
		return fmt.Errorf("HNSW_INDEX_PATH environment variable is required")
	}

	gal, closeGallery, err := openGallery(cfg)
	if err != nil {
		return err
	}
	defer closeGallery()

	fmt.Println("Rebuilding HNSW index from the gallery...")
	// An empty index path forces a rebuild from the store.
	if err := gal.EnableHNSW(context.Background(), ""); err != nil {
		return err
	}
	if err := gal.SaveIndexTo(cfg.Gallery.HNSWIndexPath); err != nil {
		return err
	}
	fmt.Printf("Index rebuilt with %d faces and saved to %s\n",
		gal.IndexCount(), cfg.Gallery.HNSWIndexPath)
	return nil
}
