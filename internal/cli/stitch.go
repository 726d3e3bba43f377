package cli

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/billmal071/archivedl/internal/db"
	"github.com/billmal071/archivedl/internal/notify"
	"github.com/billmal071/archivedl/internal/stitch"
)

var stitchCmd = &cobra.Command{
	Use:   "stitch [rip-id]",
	Short: "Combine a rip's pages into a PDF",
	Long: `Combine the saved pages of a rip into a single PDF, one page per image,
in page order.

Examples:
  archivedl stitch 1
  archivedl stitch 1 -o ~/Books/moon.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runStitch,
}

func init() {
	stitchCmd.Flags().StringP("output", "o", "", "PDF path (default <book-id>.pdf next to the page directory)")
}

func runStitch(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid rip ID: %s", args[0])
	}

	rip, err := db.GetRip(id)
	if err != nil {
		return fmt.Errorf("rip not found: %w", err)
	}
	if rip.Status != db.StatusCompleted {
		fmt.Printf("Rip #%d is %s; the PDF will only hold the pages saved so far.\n", rip.ID, rip.Status)
	}

	return stitchRip(rip, output)
}

// stitchRip writes the PDF for a rip's completed pages and records its path
func stitchRip(rip *db.Rip, output string) error {
	pages, err := db.GetCompletedPages(rip.ID)
	if err != nil {
		return fmt.Errorf("failed to list pages: %w", err)
	}

	files := make([]string, 0, len(pages))
	for _, p := range pages {
		files = append(files, p.FilePath)
	}

	if output == "" {
		output = defaultPDFPath(rip)
	}

	fmt.Printf("Stitching %d page(s)...\n", len(files))
	if err := stitch.Stitch(stitch.OrderPages(files), output); err != nil {
		return fmt.Errorf("failed to build PDF: %w", err)
	}
	if err := db.SetPDFPath(rip.ID, output); err != nil {
		return fmt.Errorf("failed to record PDF: %w", err)
	}
	rip.PDFPath = output

	Successf("PDF written: %s", output)
	notify.StitchComplete(output)
	return nil
}

func defaultPDFPath(rip *db.Rip) string {
	return filepath.Join(filepath.Dir(rip.OutputDir), rip.BookID+".pdf")
}
