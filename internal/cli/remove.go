package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/billmal071/archivedl/internal/db"
)

var removeCmd = &cobra.Command{
	Use:     "remove [rip-id]",
	Aliases: []string{"rm"},
	Short:   "Forget a rip",
	Long: `Remove a rip from the local database. Saved pages stay on disk unless
--files is given.

Examples:
  archivedl remove 1
  archivedl rm 1 --files`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().Bool("files", false, "also delete the page directory and PDF")
}

func runRemove(cmd *cobra.Command, args []string) error {
	withFiles, _ := cmd.Flags().GetBool("files")

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid rip ID: %s", args[0])
	}

	rip, err := db.GetRip(id)
	if err != nil {
		return fmt.Errorf("rip not found: %w", err)
	}

	if withFiles {
		if err := os.RemoveAll(rip.OutputDir); err != nil {
			return fmt.Errorf("failed to delete pages: %w", err)
		}
		if rip.PDFPath != "" {
			if err := os.Remove(rip.PDFPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to delete PDF: %w", err)
			}
		}
	}

	if err := db.DeleteRip(id); err != nil {
		return fmt.Errorf("failed to remove rip: %w", err)
	}

	Successf("Removed rip #%d (%s)", id, ripTitle(rip))
	return nil
}
