package downloader

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Range is an inclusive, 1-based span of page numbers
type Range struct {
	First int
	Last  int
}

// ParseRange parses "", "N", "A-B" or "A-" against a book of total pages.
// An empty expression selects the whole book; a Last beyond the book is clamped.
func ParseRange(expr string, total int) (Range, error) {
	if total <= 0 {
		return Range{}, fmt.Errorf("book has no pages")
	}

	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Range{First: 1, Last: total}, nil
	}

	var r Range
	var err error
	first, last, hasDash := strings.Cut(expr, "-")
	if r.First, err = strconv.Atoi(strings.TrimSpace(first)); err != nil {
		return Range{}, fmt.Errorf("invalid page range %q", expr)
	}

	switch {
	case !hasDash:
		r.Last = r.First
	case strings.TrimSpace(last) == "":
		r.Last = total
	default:
		if r.Last, err = strconv.Atoi(strings.TrimSpace(last)); err != nil {
			return Range{}, fmt.Errorf("invalid page range %q", expr)
		}
	}

	if r.First < 1 || r.Last < r.First {
		return Range{}, fmt.Errorf("invalid page range %q", expr)
	}
	if r.First > total {
		return Range{}, fmt.Errorf("page %d is past the end of the book (%d pages)", r.First, total)
	}
	if r.Last > total {
		r.Last = total
	}
	return r, nil
}

// String formats the range the way ParseRange reads it
func (r Range) String() string {
	if r.First == r.Last {
		return strconv.Itoa(r.First)
	}
	return fmt.Sprintf("%d-%d", r.First, r.Last)
}

// Len returns the number of pages in the range
func (r Range) Len() int {
	if r.Last < r.First {
		return 0
	}
	return r.Last - r.First + 1
}

// Indexes returns the 0-based page indexes covered by the range
func (r Range) Indexes() []int {
	out := make([]int, 0, r.Len())
	for n := r.First; n <= r.Last; n++ {
		out = append(out, n-1)
	}
	return out
}

// StoredRange rebuilds a range from a rip's stored bounds, where last 0 means
// through the end of the book. The book may have shrunk since the rip was
// recorded, so a first page past total is an error.
func StoredRange(first, last, total int) (Range, error) {
	if total <= 0 {
		return Range{}, fmt.Errorf("book has no pages")
	}
	if first < 1 {
		first = 1
	}
	if first > total {
		return Range{}, fmt.Errorf("page %d is past the end of the book (%d pages)", first, total)
	}
	if last <= 0 || last > total {
		last = total
	}
	if last < first {
		return Range{}, fmt.Errorf("invalid page range %d-%d", first, last)
	}
	return Range{First: first, Last: last}, nil
}

// PagePath returns where page index is written: <dir>/<n>.jpg with n 1-based
func PagePath(dir string, index int) string {
	return filepath.Join(dir, strconv.Itoa(index+1)+".jpg")
}
