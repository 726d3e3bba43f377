package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/billmal071/archivedl/internal/db"
)

var restartCmd = &cobra.Command{
	Use:   "restart [rip-id]",
	Short: "Restart a rip from scratch",
	Long: `Restart a rip from the first page, forgetting which pages were saved.

This is useful when saved pages are corrupted or were fetched at the wrong
scale. Existing files are overwritten as pages are fetched again.

Examples:
  archivedl restart 1    Restart rip #1 from scratch`,
	Args: cobra.ExactArgs(1),
	RunE: runRestart,
}

func init() {
	restartCmd.Flags().StringP("email", "e", "", "archive.org account email")
	restartCmd.Flags().Bool("pdf", false, "stitch the pages into a PDF when done")
}

func runRestart(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	makePDF, _ := cmd.Flags().GetBool("pdf")

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid rip ID: %s", args[0])
	}

	rip, err := db.GetRip(id)
	if err != nil {
		return fmt.Errorf("rip not found: %w", err)
	}

	fmt.Printf("Restarting: %s\n", ripTitle(rip))

	if err := db.ResetRip(id); err != nil {
		return fmt.Errorf("failed to reset rip: %w", err)
	}

	return resumeOne(cmd.Context(), id, email, makePDF)
}
