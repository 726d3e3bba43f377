package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/billmal071/archivedl/internal/db"
	"github.com/billmal071/archivedl/internal/downloader"
	"github.com/billmal071/archivedl/internal/tui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List rips",
	Long: `List rips and their status.

By default, completed rips are hidden. Use -a/--all to show them.

Examples:
  archivedl list                  List unfinished rips
  archivedl list -a               List all rips
  archivedl list -s paused        List paused rips
  archivedl list -s failed        List failed rips`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringP("status", "s", "", "filter by status (pending, downloading, paused, completed, failed)")
	listCmd.Flags().BoolP("all", "a", false, "show all rips including completed")
}

func runList(cmd *cobra.Command, args []string) error {
	statusFilter, _ := cmd.Flags().GetString("status")
	showAll, _ := cmd.Flags().GetBool("all")

	var status db.RipStatus
	if statusFilter != "" {
		status = db.RipStatus(strings.ToLower(statusFilter))
	}

	rips, err := db.ListRips(status, showAll)
	if err != nil {
		return fmt.Errorf("failed to list rips: %w", err)
	}

	if len(rips) == 0 {
		if statusFilter != "" {
			fmt.Printf("No rips with status '%s'.\n", statusFilter)
		} else {
			fmt.Println("No unfinished rips.")
		}
		return nil
	}

	fmt.Printf("Rips (%d):\n\n", len(rips))

	for _, r := range rips {
		printRip(r)
	}

	return nil
}

func printRip(r *db.Rip) {
	fmt.Printf("%s [%d] %s\n", statusIcon(r.Status), r.ID, tui.Truncate(ripTitle(r), 50))

	if r.PageCount > 0 {
		done, _ := db.CountPages(r.ID, db.PageCompleted)
		if want, err := downloader.StoredRange(r.FirstPage, r.LastPage, r.PageCount); err == nil {
			fmt.Printf("   Pages: %d / %d (range %s of %d)\n", done, want.Len(), want, r.PageCount)
		} else {
			fmt.Printf("   Pages: %d saved (%v)\n", done, err)
		}
	}

	fmt.Printf("   Status: %s", r.Status)
	if r.ErrorMessage != "" {
		fmt.Printf(" - %s", r.ErrorMessage)
	}
	fmt.Println()

	fmt.Printf("   Dir: %s\n", r.OutputDir)
	if r.PDFPath != "" {
		fmt.Printf("   PDF: %s\n", r.PDFPath)
	}
	fmt.Printf("   Book: %s\n", r.BookID)

	fmt.Println()
}

func statusIcon(s db.RipStatus) string {
	switch s {
	case db.StatusPending:
		return "⏳"
	case db.StatusDownloading:
		return "⬇️ "
	case db.StatusPaused:
		return "⏸️ "
	case db.StatusCompleted:
		return "✅"
	case db.StatusFailed:
		return "❌"
	default:
		return "  "
	}
}

func ripTitle(r *db.Rip) string {
	if r.Title != "" {
		return r.Title
	}
	return r.BookID
}
