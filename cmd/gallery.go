package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/gallery"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the gallery of known faces",
	Long: `Manage the gallery of labeled face signatures stored in the configured
backend (STORE_BACKEND). New faces are enrolled through the capture endpoint of
"face-recognizer serve"; these commands list, remove, export and import them.

Do not run them against a store a running server writes to: the server keeps
its own copy of the gallery and overwrites the store on its next change.`,
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List gallery labels",
	Long: `List gallery labels in enrollment order.

Examples:
  # All labels
  face-recognizer gallery list

  # Labels containing "novak", ignoring case and diacritics
  face-recognizer gallery list --filter novak`,
	Args: cobra.NoArgs,
	RunE: runGalleryList,
}

var galleryRemoveCmd = &cobra.Command{
	Use:   "remove <label>",
	Short: "Remove a label from the gallery",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryRemove,
}

var galleryExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the gallery as JSON",
	Long: `Export the gallery as a JSON array of {"label", "descriptors"} records.
Writes to stdout when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGalleryExport,
}

var galleryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the gallery with an exported JSON file",
	Long: `Replace the stored gallery with the contents of a file written by
"gallery export". The file is validated before anything is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryImport,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd, galleryRemoveCmd, galleryExportCmd, galleryImportCmd)

	galleryListCmd.Flags().String("filter", "", "Only list labels containing this text")
}

// withStoredGallery loads the stored gallery into memory and calls fn with it.
// Changes are not persisted unless fn saves them through the store.
func withStoredGallery(fn func(ctx context.Context, cfg *config.Config, g *gallery.Gallery, store *gallery.SignatureStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	kv, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	defer kv.Close()

	ctx := context.Background()
	store := gallery.NewSignatureStore(kv, cfg.Gallery.Key)
	entries, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading gallery: %w", err)
	}
	g := gallery.New(nil, galleryOptions(cfg))
	if err := g.Hydrate(entries); err != nil {
		return fmt.Errorf("loading gallery: %w", err)
	}
	return fn(ctx, cfg, g, store)
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	filter := mustGetString(cmd, "filter")

	return withStoredGallery(func(ctx context.Context, cfg *config.Config, g *gallery.Gallery, store *gallery.SignatureStore) error {
		labels := g.Search(filter)
		if len(labels) == 0 {
			fmt.Println("No labels found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LABEL\tSIGNATURES\tDIM")
		for _, label := range labels {
			entry, _ := g.Get(label)
			fmt.Fprintf(w, "%s\t%d\t%d\n", entry.Label, len(entry.Signatures), len(entry.Signatures[0]))
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		fmt.Printf("\n%d of %d labels\n", len(labels), g.Len())
		return nil
	})
}

func runGalleryRemove(cmd *cobra.Command, args []string) error {
	label := args[0]

	return withStoredGallery(func(ctx context.Context, cfg *config.Config, g *gallery.Gallery, store *gallery.SignatureStore) error {
		if !g.Remove(ctx, label) {
			fmt.Printf("Label %q is not in the gallery\n", label)
			return nil
		}
		if err := store.Save(ctx, g.Entries()); err != nil {
			return err
		}
		fmt.Printf("Removed %q (%d labels left)\n", label, g.Len())
		return nil
	})
}

func runGalleryExport(cmd *cobra.Command, args []string) error {
	return withStoredGallery(func(ctx context.Context, cfg *config.Config, g *gallery.Gallery, store *gallery.SignatureStore) error {
		data, err := gallery.Encode(g.Entries())
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return writeAll(os.Stdout, data)
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", args[0], err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d labels to %s\n", g.Len(), args[0])
		return nil
	})
}

func runGalleryImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	entries, err := gallery.Decode(data)
	if err != nil {
		return fmt.Errorf("invalid gallery file: %w", err)
	}

	return withStoredGallery(func(ctx context.Context, cfg *config.Config, g *gallery.Gallery, store *gallery.SignatureStore) error {
		previous := g.Len()
		if err := g.Hydrate(entries); err != nil {
			if errors.Is(err, gallery.ErrInvalidSignature) {
				return fmt.Errorf("%s does not match SIGNATURE_DIM=%d: %w", args[0], cfg.Gallery.SignatureDim, err)
			}
			return err
		}
		if err := store.Save(ctx, g.Entries()); err != nil {
			return err
		}
		fmt.Printf("Imported %d labels (replaced %d)\n", g.Len(), previous)
		return nil
	})
}

func writeAll(w io.Writer, data []byte) error {
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
