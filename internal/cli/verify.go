package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/billmal071/archivedl/internal/db"
	"github.com/billmal071/archivedl/internal/downloader"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [rip-id]",
	Short: "Check that saved pages are readable images",
	Long: `Decode every saved page of a rip. Pages that are missing or are not
valid images are marked for another fetch.

Examples:
  archivedl verify 1          # Verify one rip
  archivedl verify --all      # Verify all completed rips
  archivedl verify --failed   # Re-verify rips that failed verification
  archivedl verify 1 --fix    # Fetch bad pages again`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().Bool("all", false, "verify all completed rips")
	verifyCmd.Flags().Bool("failed", false, "re-verify rips that failed verification")
	verifyCmd.Flags().Bool("fix", false, "fetch bad pages again")
	verifyCmd.Flags().StringP("email", "e", "", "archive.org account email (with --fix)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	verifyAll, _ := cmd.Flags().GetBool("all")
	verifyFailed, _ := cmd.Flags().GetBool("failed")
	autoFix, _ := cmd.Flags().GetBool("fix")
	email, _ := cmd.Flags().GetString("email")

	var rips []*db.Rip

	switch {
	case verifyAll || verifyFailed:
		completed, err := db.ListRips(db.StatusCompleted, false)
		if err != nil {
			return fmt.Errorf("failed to list rips: %w", err)
		}
		for _, r := range completed {
			if verifyAll || !r.Verified {
				rips = append(rips, r)
			}
		}
	case len(args) == 0:
		return fmt.Errorf("provide a rip ID or use --all flag")
	default:
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid rip ID: %s", args[0])
		}
		rip, err := db.GetRip(id)
		if err != nil {
			return fmt.Errorf("rip not found: %w", err)
		}
		rips = []*db.Rip{rip}
	}

	if len(rips) == 0 {
		fmt.Println("No rips to verify")
		return nil
	}

	fmt.Printf("Verifying %d rip(s)...\n\n", len(rips))

	verified, failed := 0, 0
	for _, rip := range rips {
		fmt.Printf("🔍 [%d] %s\n", rip.ID, ripTitle(rip))
		fmt.Printf("    Dir: %s\n", rip.OutputDir)

		bad, err := downloader.VerifyAndMark(rip)
		if err == nil {
			fmt.Printf("    ✓ All pages readable\n\n")
			verified++
			continue
		}

		failed++
		fmt.Printf("    ❌ %v\n", err)
		if len(bad) > 0 {
			fmt.Printf("    Bad pages: %s\n", pageList(bad))
		}

		if autoFix {
			fmt.Printf("    🔄 Fetching bad pages again...\n")
			if err := resumeOne(cmd.Context(), rip.ID, email, false); err != nil {
				fmt.Printf("    ⚠️  Re-fetch failed: %v\n", err)
			} else {
				fmt.Printf("    ✓ Re-fetch completed\n")
			}
		}
		fmt.Println()
	}

	// Summary
	fmt.Println("─────────────────────────────────")
	fmt.Printf("Verified: %d\n", verified)
	if failed > 0 {
		fmt.Printf("Failed: %d\n", failed)
	}

	if failed > 0 && !autoFix {
		fmt.Println("\nTip: Use --fix flag to fetch bad pages again")
	}

	return nil
}

// pageList renders 0-based indexes as 1-based page numbers
func pageList(indexes []int) string {
	const limit = 10
	s := ""
	for i, idx := range indexes {
		if i == limit {
			return s + fmt.Sprintf(" and %d more", len(indexes)-limit)
		}
		if i > 0 {
			s += ", "
		}
		s += strconv.Itoa(idx + 1)
	}
	return s
}
