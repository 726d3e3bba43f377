// Package stitch assembles ripped page images into a single PDF.
package stitch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// ErrNoPages is returned when there is nothing to stitch
var ErrNoPages = errors.New("no page images to stitch")

// Stitch writes files, in natural page order, as one PDF at outPath.
// An existing file at outPath is replaced.
func Stitch(files []string, outPath string) error {
	files = OrderPages(files)
	if len(files) == 0 {
		return ErrNoPages
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}
	// ImportImagesFile appends to an existing PDF, so start fresh.
	tmp := outPath + ".part"
	os.Remove(tmp)

	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImagesFile(files, tmp, imp, nil); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to build pdf: %w", err)
	}
	return os.Rename(tmp, outPath)
}

// StitchDir stitches every .jpg in dir
func StitchDir(dir, outPath string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return err
	}
	return Stitch(files, outPath)
}

// OrderPages returns the .jpg files sorted by page number, so 2.jpg comes
// before 10.jpg. Other files are dropped.
func OrderPages(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".jpg") {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ni, iok := pageNumber(out[i])
		nj, jok := pageNumber(out[j])
		switch {
		case iok && jok:
			return ni < nj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

func pageNumber(path string) (int, bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	n, err := strconv.Atoi(base)
	return n, err == nil
}
