package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/billmal071/archivedl/internal/db"
	"github.com/billmal071/archivedl/internal/downloader"
	"github.com/billmal071/archivedl/internal/tui"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [rip-id|all]",
	Short: "Resume a paused or failed rip",
	Long: `Resume a paused or failed rip. The book is borrowed again and only the
pages that are not yet saved are fetched.

Without an argument an interactive picker is shown. Use 'all' to resume every
paused and failed rip in turn.

Examples:
  archivedl resume         Pick a rip to resume
  archivedl resume 1       Resume rip #1
  archivedl resume all     Resume all paused and failed rips`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringP("email", "e", "", "archive.org account email")
	resumeCmd.Flags().Bool("pdf", false, "stitch the pages into a PDF when done")
}

func runResume(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	makePDF, _ := cmd.Flags().GetBool("pdf")
	ctx := cmd.Context()

	if len(args) == 0 {
		rips, err := resumable()
		if err != nil {
			return err
		}
		if len(rips) == 0 {
			fmt.Println("No paused or failed rips to resume.")
			return nil
		}
		picked, err := tui.RunRipSelector(rips, "Resume which rip?")
		if err != nil {
			return err
		}
		if picked == nil {
			return nil
		}
		return resumeOne(ctx, picked.ID, email, makePDF)
	}

	arg := strings.ToLower(args[0])
	if arg == "all" {
		return resumeAll(ctx, email, makePDF)
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid rip ID: %s", arg)
	}

	return resumeOne(ctx, id, email, makePDF)
}

func resumable() ([]*db.Rip, error) {
	rips, err := db.ListRips(db.StatusPaused, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list rips: %w", err)
	}
	for _, s := range []db.RipStatus{db.StatusFailed, db.StatusPending} {
		more, err := db.ListRips(s, false)
		if err != nil {
			return nil, fmt.Errorf("failed to list rips: %w", err)
		}
		rips = append(rips, more...)
	}
	return rips, nil
}

func resumeOne(ctx context.Context, id int64, email string, makePDF bool) error {
	rip, err := db.GetRip(id)
	if err != nil {
		return fmt.Errorf("rip not found: %w", err)
	}

	if rip.Status == db.StatusCompleted {
		fmt.Printf("Rip #%d is already completed.\n", id)
		return nil
	}

	fmt.Printf("Resuming: %s\n", ripTitle(rip))

	client, meta, err := openBook(ctx, rip.BookID, email)
	if err != nil {
		db.UpdateStatus(rip.ID, db.StatusFailed, err.Error())
		return err
	}
	defer client.Close()

	if meta.Title != rip.Title || len(meta.Pages) != rip.PageCount {
		if err := db.UpdateBookInfo(rip.ID, meta.Title, len(meta.Pages)); err != nil {
			return fmt.Errorf("failed to update rip: %w", err)
		}
		rip.Title, rip.PageCount = meta.Title, len(meta.Pages)
	}

	r, err := resumeRange(rip, len(meta.Pages))
	if err != nil {
		return err
	}
	return ripPages(ctx, client, meta, rip, r, makePDF)
}

// resumeRange rebuilds the stored page range against the book's current page
// count. A range the book no longer covers fails the rip.
func resumeRange(rip *db.Rip, total int) (downloader.Range, error) {
	r, err := downloader.StoredRange(rip.FirstPage, rip.LastPage, total)
	if err != nil {
		msg := fmt.Sprintf("stored range no longer fits the book: %v; use 'archivedl rip %s --pages' to pick a new range", err, rip.BookID)
		if uerr := db.UpdateStatus(rip.ID, db.StatusFailed, msg); uerr != nil {
			return downloader.Range{}, fmt.Errorf("failed to update rip: %w", uerr)
		}
		rip.Status, rip.ErrorMessage = db.StatusFailed, msg
		return downloader.Range{}, fmt.Errorf("rip #%d: %s", rip.ID, msg)
	}
	return r, nil
}

func resumeAll(ctx context.Context, email string, makePDF bool) error {
	rips, err := resumable()
	if err != nil {
		return err
	}

	if len(rips) == 0 {
		fmt.Println("No paused or failed rips to resume.")
		return nil
	}

	fmt.Printf("Resuming %d rip(s)...\n\n", len(rips))

	var errs []error
	for _, r := range rips {
		if ctx.Err() != nil {
			break
		}
		if err := resumeOne(ctx, r.ID, email, makePDF); err != nil {
			errs = append(errs, fmt.Errorf("rip #%d: %w", r.ID, err))
		}
	}

	if len(errs) > 0 {
		fmt.Printf("\n%d rip(s) failed:\n", len(errs))
		for _, err := range errs {
			fmt.Printf("  - %s\n", err)
		}
		return errors.Join(errs...)
	}

	return nil
}
