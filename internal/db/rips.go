package db

import (
	"database/sql"
	"time"
)

// RipStatus represents the state of a rip
type RipStatus string

const (
	StatusPending     RipStatus = "pending"
	StatusDownloading RipStatus = "downloading"
	StatusPaused      RipStatus = "paused"
	StatusCompleted   RipStatus = "completed"
	StatusFailed      RipStatus = "failed"
)

// Rip is one book being copied page by page
type Rip struct {
	ID           int64
	BookID       string
	Title        string
	PageCount    int
	FirstPage    int // 1-based, inclusive
	LastPage     int // 1-based, inclusive; 0 means through the end
	Scale        int
	OutputDir    string
	PDFPath      string
	Status       RipStatus
	ErrorMessage string
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

const ripColumns = `id, book_id, title, page_count, first_page, last_page, scale,
	output_dir, pdf_path, status, error_message, verified, created_at, updated_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRip(row scanner) (*Rip, error) {
	r := &Rip{}
	var pdfPath, errMsg sql.NullString
	err := row.Scan(
		&r.ID, &r.BookID, &r.Title, &r.PageCount, &r.FirstPage, &r.LastPage, &r.Scale,
		&r.OutputDir, &pdfPath, &r.Status, &errMsg, &r.Verified, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	r.PDFPath = pdfPath.String
	r.ErrorMessage = errMsg.String
	return r, nil
}

// CreateRip creates a new rip record
func CreateRip(r *Rip) error {
	if r.Status == "" {
		r.Status = StatusPending
	}
	result, err := database.Exec(`
		INSERT INTO rips (
			book_id, title, page_count, first_page, last_page, scale, output_dir, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BookID, r.Title, r.PageCount, r.FirstPage, r.LastPage, r.Scale, r.OutputDir, r.Status,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

// GetRip retrieves a rip by ID
func GetRip(id int64) (*Rip, error) {
	return scanRip(database.QueryRow(`SELECT `+ripColumns+` FROM rips WHERE id = ?`, id))
}

// GetRipByBookID retrieves a rip by book identifier
func GetRipByBookID(bookID string) (*Rip, error) {
	return scanRip(database.QueryRow(`SELECT `+ripColumns+` FROM rips WHERE book_id = ?`, bookID))
}

// ListRips retrieves rips filtered by status. Without a status, completed
// rips are hidden unless showAll is set.
func ListRips(status RipStatus, showAll bool) ([]*Rip, error) {
	var rows *sql.Rows
	var err error

	switch {
	case status != "":
		rows, err = database.Query(`SELECT `+ripColumns+` FROM rips WHERE status = ? ORDER BY updated_at DESC, id DESC`, status)
	case showAll:
		rows, err = database.Query(`SELECT ` + ripColumns + ` FROM rips ORDER BY updated_at DESC, id DESC`)
	default:
		rows, err = database.Query(`SELECT ` + ripColumns + ` FROM rips WHERE status != 'completed' ORDER BY updated_at DESC, id DESC`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rips []*Rip
	for rows.Next() {
		r, err := scanRip(rows)
		if err != nil {
			return nil, err
		}
		rips = append(rips, r)
	}
	return rips, rows.Err()
}

// UpdateStatus updates the rip status
func UpdateStatus(id int64, status RipStatus, errMsg string) error {
	_, err := database.Exec(`
		UPDATE rips SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, status, errMsg, id)
	return err
}

// UpdateBookInfo records the resolved title and page count
func UpdateBookInfo(id int64, title string, pageCount int) error {
	_, err := database.Exec(`
		UPDATE rips SET title = ?, page_count = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, title, pageCount, id)
	return err
}

// UpdateRange changes the requested page range and scale
func UpdateRange(id int64, first, last, scale int) error {
	_, err := database.Exec(`
		UPDATE rips SET first_page = ?, last_page = ?, scale = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, first, last, scale, id)
	return err
}

// MarkCompleted marks a rip as completed
func MarkCompleted(id int64) error {
	_, err := database.Exec(`
		UPDATE rips SET
			status = 'completed',
			error_message = NULL,
			completed_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	return err
}

// MarkVerified marks a rip as verified
func MarkVerified(id int64, verified bool) error {
	_, err := database.Exec(`
		UPDATE rips SET verified = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, verified, id)
	return err
}

// SetPDFPath records where the stitched PDF was written
func SetPDFPath(id int64, path string) error {
	_, err := database.Exec(`
		UPDATE rips SET pdf_path = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, path, id)
	return err
}

// ResetRip resets a rip for restart and forgets its pages
func ResetRip(id int64) error {
	tx, err := database.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE rips SET
			status = 'pending',
			error_message = NULL,
			verified = 0,
			pdf_path = NULL,
			completed_at = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM pages WHERE rip_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteRip deletes a rip record and its pages
func DeleteRip(id int64) error {
	_, err := database.Exec(`DELETE FROM rips WHERE id = ?`, id)
	return err
}
