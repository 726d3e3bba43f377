package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/billmal071/archivedl/internal/archive"
	"github.com/billmal071/archivedl/internal/config"
	"github.com/billmal071/archivedl/internal/db"
	"github.com/billmal071/archivedl/internal/downloader"
	"github.com/billmal071/archivedl/internal/notify"
)

var ripCmd = &cobra.Command{
	Use:   "rip <book-id|url>",
	Short: "Borrow a book and save its pages",
	Long: `Borrow a book, keep the loan renewed, and save each page as <n>.jpg.

The book can be given as an identifier or as its details URL. Pages already
saved by an earlier rip of the same book are skipped.

Examples:
  archivedl rip goodnightmoon00brow
  archivedl rip https://archive.org/details/goodnightmoon00brow
  archivedl rip goodnightmoon00brow --pages 1-15 --scale 2
  archivedl rip goodnightmoon00brow --pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runRip,
}

func init() {
	ripCmd.Flags().StringP("pages", "p", "", "page range, e.g. 1-15, 7 or 30- (default all)")
	ripCmd.Flags().IntP("scale", "s", -1, "image scale, 0 for full resolution (default from config)")
	ripCmd.Flags().StringP("output", "o", "", "output directory (default downloads.path)")
	ripCmd.Flags().StringP("email", "e", "", "archive.org account email")
	ripCmd.Flags().Bool("pdf", false, "stitch the pages into a PDF when done")
}

func runRip(cmd *cobra.Command, args []string) error {
	pagesFlag, _ := cmd.Flags().GetString("pages")
	scale, _ := cmd.Flags().GetInt("scale")
	output, _ := cmd.Flags().GetString("output")
	email, _ := cmd.Flags().GetString("email")
	makePDF, _ := cmd.Flags().GetBool("pdf")

	cfg := config.Get()
	if scale < 0 {
		scale = cfg.Downloads.Scale
	}
	if output == "" {
		output = cfg.Downloads.Path
	}

	bookID, err := archive.ParseBookID(args[0])
	if err != nil {
		return err
	}

	rip, err := db.GetRipByBookID(bookID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to look up rip: %w", err)
	}
	if rip != nil && rip.Status == db.StatusCompleted && pagesFlag == "" {
		fmt.Printf("%s was already ripped to %s (rip #%d).\n", bookID, rip.OutputDir, rip.ID)
		fmt.Printf("Use 'archivedl restart %d' to rip it again.\n", rip.ID)
		return nil
	}

	ctx := cmd.Context()
	client, meta, err := openBook(ctx, bookID, email)
	if err != nil {
		return err
	}
	defer client.Close()

	r, err := downloader.ParseRange(pagesFlag, len(meta.Pages))
	if err != nil {
		return err
	}

	if rip == nil {
		rip = &db.Rip{
			BookID:    bookID,
			Title:     meta.Title,
			PageCount: len(meta.Pages),
			FirstPage: r.First,
			LastPage:  r.Last,
			Scale:     scale,
			OutputDir: filepath.Join(config.ExpandPath(output), bookID),
		}
		if err := db.CreateRip(rip); err != nil {
			return fmt.Errorf("failed to record rip: %w", err)
		}
	} else {
		if err := db.UpdateBookInfo(rip.ID, meta.Title, len(meta.Pages)); err != nil {
			return fmt.Errorf("failed to update rip: %w", err)
		}
		if err := db.UpdateRange(rip.ID, r.First, r.Last, scale); err != nil {
			return fmt.Errorf("failed to update rip: %w", err)
		}
		rip.Title, rip.PageCount = meta.Title, len(meta.Pages)
		rip.FirstPage, rip.LastPage, rip.Scale = r.First, r.Last, scale
	}

	return ripPages(ctx, client, meta, rip, r, makePDF)
}

// ripPages saves the pages in r and reports the outcome. A canceled context
// leaves the rip paused.
func ripPages(ctx context.Context, client *archive.Client, meta *archive.BookMetadata, rip *db.Rip, r downloader.Range, makePDF bool) error {
	cfg := config.Get()

	fmt.Printf("Ripping: %s\n", meta.Title)
	fmt.Printf("Pages:   %s of %d\n", r, len(meta.Pages))
	fmt.Printf("Output:  %s\n", rip.OutputDir)

	mgr := downloader.NewManager(client, downloader.Options{
		Scale:    rip.Scale,
		Delay:    cfg.Downloads.Delay,
		Retry:    downloader.DefaultRetryConfig(),
		Progress: os.Stderr,
	}, Log().Named("rip"))

	res, err := mgr.Rip(ctx, rip, r)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Printf("\nPaused. Run 'archivedl resume %d' to continue.\n", rip.ID)
			return nil
		}
		notify.RipFailed(meta.Title, err.Error())
		if res != nil && len(res.Failed) > 0 {
			fmt.Printf("Saved %d page(s); %d failed. Run 'archivedl resume %d' to retry them.\n",
				res.Written+res.Skipped, len(res.Failed), rip.ID)
		}
		return fmt.Errorf("rip failed: %w", describe(err))
	}

	Successf("Saved %d page(s) to %s", res.Written+res.Skipped, rip.OutputDir)
	if res.Skipped > 0 {
		Printf("%d page(s) were already on disk\n", res.Skipped)
	}
	notify.RipComplete(meta.Title, res.Written+res.Skipped)

	if makePDF || cfg.PDF.Enabled {
		return stitchRip(rip, "")
	}
	return nil
}
