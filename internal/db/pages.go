package db

import "time"

// PageStatus represents the state of one page of a rip
type PageStatus string

const (
	PageCompleted PageStatus = "completed"
	PageFailed    PageStatus = "failed"
)

// Page is one page file written for a rip
type Page struct {
	ID        int64
	RipID     int64
	PageIndex int // 0-based position in the book
	FilePath  string
	Size      int64
	Status    PageStatus
	UpdatedAt time.Time
}

// SavePage records the outcome for a page, replacing any earlier attempt
func SavePage(p *Page) error {
	_, err := database.Exec(`
		INSERT INTO pages (rip_id, page_index, file_path, size, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(rip_id, page_index) DO UPDATE SET
			file_path = excluded.file_path,
			size = excluded.size,
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP`,
		p.RipID, p.PageIndex, p.FilePath, p.Size, p.Status,
	)
	if err != nil {
		return err
	}

	// Touch the rip so listings order by recent activity.
	_, err = database.Exec(`UPDATE rips SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, p.RipID)
	return err
}

// GetPages retrieves all recorded pages for a rip in book order
func GetPages(ripID int64) ([]*Page, error) {
	return queryPages(`
		SELECT id, rip_id, page_index, file_path, size, status, updated_at
		FROM pages WHERE rip_id = ?
		ORDER BY page_index`, ripID)
}

// GetCompletedPages retrieves completed pages for a rip in book order
func GetCompletedPages(ripID int64) ([]*Page, error) {
	return queryPages(`
		SELECT id, rip_id, page_index, file_path, size, status, updated_at
		FROM pages WHERE rip_id = ? AND status = 'completed'
		ORDER BY page_index`, ripID)
}

// CompletedIndexes returns the set of page indexes already written for a rip
func CompletedIndexes(ripID int64) (map[int]bool, error) {
	pages, err := GetCompletedPages(ripID)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(pages))
	for _, p := range pages {
		done[p.PageIndex] = true
	}
	return done, nil
}

// CountPages returns how many pages of a rip have the given status
func CountPages(ripID int64, status PageStatus) (int, error) {
	var n int
	err := database.QueryRow(`SELECT COUNT(*) FROM pages WHERE rip_id = ? AND status = ?`, ripID, status).Scan(&n)
	return n, err
}

// MarkPageFailed flags a recorded page as failed, e.g. after verification
func MarkPageFailed(ripID int64, index int) error {
	_, err := database.Exec(`
		UPDATE pages SET status = 'failed', updated_at = CURRENT_TIMESTAMP
		WHERE rip_id = ? AND page_index = ?`, ripID, index)
	return err
}

func queryPages(query string, args ...any) ([]*Page, error) {
	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		p := &Page{}
		err := rows.Scan(&p.ID, &p.RipID, &p.PageIndex, &p.FilePath, &p.Size, &p.Status, &p.UpdatedAt)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}
