package downloader

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/billmal071/archivedl/internal/db"
)

// VerifyPage checks that a page file exists and decodes as an image
func VerifyPage(path string) error {
	if path == "" {
		return fmt.Errorf("file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return fmt.Errorf("%s is not a valid image: %w", path, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("%s has empty dimensions", path)
	}
	return nil
}

// VerifyAndMark verifies every completed page of a rip, flags the broken ones
// as failed and updates the rip's verified status. It returns the 0-based
// indexes of the pages that failed.
func VerifyAndMark(rip *db.Rip) ([]int, error) {
	pages, err := db.GetCompletedPages(rip.ID)
	if err != nil {
		return nil, err
	}

	var bad []int
	for _, p := range pages {
		if err := VerifyPage(p.FilePath); err != nil {
			bad = append(bad, p.PageIndex)
			if markErr := db.MarkPageFailed(rip.ID, p.PageIndex); markErr != nil {
				return bad, fmt.Errorf("verification failed (%v) and failed to update page: %w", err, markErr)
			}
		}
	}

	ok := len(bad) == 0 && len(pages) > 0
	if err := db.MarkVerified(rip.ID, ok); err != nil {
		return bad, fmt.Errorf("failed to update verified status: %w", err)
	}
	if len(bad) > 0 {
		return bad, fmt.Errorf("%d of %d page(s) failed verification", len(bad), len(pages))
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("rip has no completed pages")
	}
	return nil, nil
}
