package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"capturebox/internal/models"
	"capturebox/internal/shortid"
	"capturebox/internal/store"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DBType represents the type of database
type DBType string

const (
	SQLite   DBType = "sqlite3"
	Postgres DBType = "postgres"
)

// SQLStore implements the Store interface for SQL databases
type SQLStore struct {
	db     *sql.DB
	dbType DBType
}

// New creates a new SQLStore with the given driver and connection string
func New(driver, connStr string) (*SQLStore, error) {
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, err
	}

	s := &SQLStore{
		db:     db,
		dbType: DBType(driver),
	}

	// SQLite has one writer anyway, and PRAGMAs only apply per connection.
	// A single pooled connection keeps the pragma in force and makes
	// :memory: databases behave.
	if s.dbType == SQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	// SQLite ignores ON DELETE CASCADE unless foreign keys are switched on.
	if s.dbType == SQLite {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, err
		}
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.dbType == SQLite {
		return query
	}
	var result strings.Builder
	argNum := 1
	for _, c := range query {
		if c == '?' {
			result.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
		} else {
			result.WriteRune(c)
		}
	}
	return result.String()
}

func (s *SQLStore) initSchema() error {
	var createUsersTable, createCapturesTable, createCaptureImagesTable string

	if s.dbType == Postgres {
		createUsersTable = `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL
		);`

		createCapturesTable = `
		CREATE TABLE IF NOT EXISTS captures (
			id SERIAL PRIMARY KEY,
			uuid TEXT NOT NULL,
			short_uuid TEXT NOT NULL UNIQUE,
			owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			voice_transcript TEXT NOT NULL DEFAULT '',
			is_complete BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`

		createCaptureImagesTable = `
		CREATE TABLE IF NOT EXISTS capture_images (
			id SERIAL PRIMARY KEY,
			uuid TEXT NOT NULL,
			short_uuid TEXT NOT NULL UNIQUE,
			owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			capture_id INTEGER NOT NULL REFERENCES captures(id) ON DELETE CASCADE,
			filename TEXT NOT NULL,
			display_order INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		);`
	} else {
		createUsersTable = `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL
		);`

		createCapturesTable = `
		CREATE TABLE IF NOT EXISTS captures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL,
			short_uuid TEXT NOT NULL UNIQUE,
			owner_id INTEGER NOT NULL,
			voice_transcript TEXT NOT NULL DEFAULT '',
			is_complete BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY(owner_id) REFERENCES users(id) ON DELETE CASCADE
		);`

		createCaptureImagesTable = `
		CREATE TABLE IF NOT EXISTS capture_images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL,
			short_uuid TEXT NOT NULL UNIQUE,
			owner_id INTEGER NOT NULL,
			capture_id INTEGER NOT NULL,
			filename TEXT NOT NULL,
			display_order INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(owner_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(capture_id) REFERENCES captures(id) ON DELETE CASCADE
		);`
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_captures_owner_created ON captures(owner_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_captures_owner_complete ON captures(owner_id, is_complete)",
		"CREATE INDEX IF NOT EXISTS idx_capture_images_capture_order ON capture_images(capture_id, display_order)",
	}

	stmts := []string{createUsersTable, createCapturesTable, createCaptureImagesTable}
	stmts = append(stmts, indexes...)
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func imageURL(filename string) string {
	return "/uploads/" + filename
}

// User functions
func (s *SQLStore) CreateUser(username, passwordHash string) error {
	_, err := s.db.Exec(s.rebind("INSERT INTO users (username, password_hash) VALUES (?, ?)"), username, passwordHash)
	return err
}

func (s *SQLStore) GetUserByUsername(username string) (int, string, error) {
	var id int
	var hash string
	err := s.db.QueryRow(s.rebind("SELECT id, password_hash FROM users WHERE username = ?"), username).Scan(&id, &hash)
	return id, hash, err
}

func (s *SQLStore) GetUserID(username string) (int, error) {
	var id int
	err := s.db.QueryRow(s.rebind("SELECT id FROM users WHERE username = ?"), username).Scan(&id)
	return id, err
}

// Capture functions
func (s *SQLStore) CreateCapture(ownerID int) (models.Capture, error) {
	c := models.Capture{
		ShortUUID: shortid.New(),
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
		Images:    []models.CaptureImage{},
	}
	c.UpdatedAt = c.CreatedAt
	captureUUID := uuid.NewString()

	if s.dbType == Postgres {
		err := s.db.QueryRow(
			s.rebind("INSERT INTO captures (uuid, short_uuid, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id"),
			captureUUID, c.ShortUUID, ownerID, c.CreatedAt, c.UpdatedAt,
		).Scan(&c.ID)
		return c, err
	}

	result, err := s.db.Exec(
		s.rebind("INSERT INTO captures (uuid, short_uuid, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"),
		captureUUID, c.ShortUUID, ownerID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return models.Capture{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return models.Capture{}, err
	}
	c.ID = int(id)
	return c, nil
}

func (s *SQLStore) GetCapture(ownerID int, shortUUID string) (models.Capture, error) {
	var c models.Capture
	c.OwnerID = ownerID
	err := s.db.QueryRow(
		s.rebind("SELECT id, short_uuid, voice_transcript, is_complete, created_at, updated_at FROM captures WHERE short_uuid = ? AND owner_id = ?"),
		shortUUID, ownerID,
	).Scan(&c.ID, &c.ShortUUID, &c.VoiceTranscript, &c.IsComplete, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return models.Capture{}, err
	}

	images, err := s.GetCaptureImages(c.ID)
	if err != nil {
		return models.Capture{}, err
	}
	c.Images = images
	return c, nil
}

func (s *SQLStore) ListCaptures(ownerID int) ([]models.Capture, error) {
	rows, err := s.db.Query(
		s.rebind("SELECT id, short_uuid, voice_transcript, is_complete, created_at, updated_at FROM captures WHERE owner_id = ? ORDER BY created_at DESC"),
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	captures := []models.Capture{}
	for rows.Next() {
		var c models.Capture
		c.OwnerID = ownerID
		if err := rows.Scan(&c.ID, &c.ShortUUID, &c.VoiceTranscript, &c.IsComplete, &c.CreatedAt, &c.UpdatedAt); err != nil {
			continue
		}
		captures = append(captures, c)
	}

	for i := range captures {
		images, err := s.GetCaptureImages(captures[i].ID)
		if err != nil {
			return nil, err
		}
		captures[i].Images = images
	}
	return captures, nil
}

func (s *SQLStore) UpdateTranscript(ownerID int, shortUUID, transcript string) error {
	result, err := s.db.Exec(
		s.rebind("UPDATE captures SET voice_transcript = ?, updated_at = ? WHERE short_uuid = ? AND owner_id = ?"),
		transcript, time.Now(), shortUUID, ownerID,
	)
	if err != nil {
		return err
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLStore) CompleteCapture(ownerID int, shortUUID string) (int, error) {
	var captureID int
	err := s.db.QueryRow(
		s.rebind("SELECT id FROM captures WHERE short_uuid = ? AND owner_id = ?"),
		shortUUID, ownerID,
	).Scan(&captureID)
	if err != nil {
		return 0, err
	}

	// Setting the flag again on an already-complete capture is a no-op.
	if _, err := s.db.Exec(
		s.rebind("UPDATE captures SET is_complete = ?, updated_at = ? WHERE id = ?"),
		true, time.Now(), captureID,
	); err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRow(
		s.rebind("SELECT COUNT(*) FROM capture_images WHERE capture_id = ?"),
		captureID,
	).Scan(&count)
	return count, err
}

func (s *SQLStore) DeleteCapture(ownerID int, shortUUID string) ([]string, error) {
	var captureID int
	err := s.db.QueryRow(
		s.rebind("SELECT id FROM captures WHERE short_uuid = ? AND owner_id = ?"),
		shortUUID, ownerID,
	).Scan(&captureID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(s.rebind("SELECT filename FROM capture_images WHERE capture_id = ?"), captureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var filenames []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			continue
		}
		filenames = append(filenames, f)
	}

	// Image rows go with the capture via ON DELETE CASCADE.
	if _, err := s.db.Exec(s.rebind("DELETE FROM captures WHERE id = ?"), captureID); err != nil {
		return nil, err
	}
	return filenames, nil
}

func (s *SQLStore) GetCapturesByTimeRange(ownerID int, start, end time.Time) ([]models.Capture, error) {
	rows, err := s.db.Query(
		s.rebind("SELECT short_uuid, voice_transcript, is_complete, created_at FROM captures WHERE owner_id = ? AND created_at >= ? AND created_at <= ? ORDER BY created_at DESC"),
		ownerID, start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []models.Capture
	for rows.Next() {
		var c models.Capture
		if err := rows.Scan(&c.ShortUUID, &c.VoiceTranscript, &c.IsComplete, &c.CreatedAt); err != nil {
			continue
		}
		captures = append(captures, c)
	}
	return captures, nil
}

// Capture image functions

// CaptureImageStats returns the current image count and highest order value
// for a capture. maxOrder is -1 when the capture has no images, so the next
// appended image gets order 0.
func (s *SQLStore) CaptureImageStats(captureID int) (int, int, error) {
	var count, maxOrder int
	err := s.db.QueryRow(
		s.rebind("SELECT COUNT(*), COALESCE(MAX(display_order), -1) FROM capture_images WHERE capture_id = ?"),
		captureID,
	).Scan(&count, &maxOrder)
	return count, maxOrder, err
}

func (s *SQLStore) AddCaptureImage(img models.CaptureImage) (models.CaptureImage, error) {
	img.CreatedAt = time.Now()
	img.ImageURL = imageURL(img.Filename)

	if s.dbType == Postgres {
		err := s.db.QueryRow(
			s.rebind("INSERT INTO capture_images (uuid, short_uuid, owner_id, capture_id, filename, display_order, created_at) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id"),
			img.UUID, img.ShortUUID, img.OwnerID, img.CaptureID, img.Filename, img.Order, img.CreatedAt,
		).Scan(&img.ID)
		return img, err
	}

	result, err := s.db.Exec(
		s.rebind("INSERT INTO capture_images (uuid, short_uuid, owner_id, capture_id, filename, display_order, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"),
		img.UUID, img.ShortUUID, img.OwnerID, img.CaptureID, img.Filename, img.Order, img.CreatedAt,
	)
	if err != nil {
		return models.CaptureImage{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return models.CaptureImage{}, err
	}
	img.ID = int(id)
	return img, nil
}

func (s *SQLStore) GetCaptureImages(captureID int) ([]models.CaptureImage, error) {
	rows, err := s.db.Query(
		s.rebind("SELECT id, uuid, short_uuid, owner_id, filename, display_order, created_at FROM capture_images WHERE capture_id = ? ORDER BY display_order ASC, created_at ASC, id ASC"),
		captureID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []models.CaptureImage{}
	for rows.Next() {
		var img models.CaptureImage
		img.CaptureID = captureID
		if err := rows.Scan(&img.ID, &img.UUID, &img.ShortUUID, &img.OwnerID, &img.Filename, &img.Order, &img.CreatedAt); err != nil {
			continue
		}
		img.ImageURL = imageURL(img.Filename)
		images = append(images, img)
	}
	return images, nil
}

// ReorderCaptureImages rewrites the order of the listed images to their
// 0-based position in uuids, inside one transaction. Any key that does not
// identify an image of the capture aborts the whole operation; images omitted
// from the list keep their current order.
func (s *SQLStore) ReorderCaptureImages(captureID int, uuids []string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(s.rebind("SELECT uuid FROM capture_images WHERE capture_id = ?"), captureID)
	if err != nil {
		return 0, err
	}
	owned := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return 0, err
		}
		owned[u] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, u := range uuids {
		if !owned[u] {
			return 0, &store.UnknownImageError{UUID: u}
		}
	}

	for position, u := range uuids {
		if _, err := tx.Exec(
			s.rebind("UPDATE capture_images SET display_order = ? WHERE capture_id = ? AND uuid = ?"),
			position, captureID, u,
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(uuids), nil
}

func (s *SQLStore) DeleteCaptureImage(ownerID int, captureShort, imageShort string) (string, error) {
	var imageID int
	var filename string
	query := `SELECT ci.id, ci.filename FROM capture_images ci
	          JOIN captures c ON ci.capture_id = c.id
	          WHERE ci.short_uuid = ? AND c.short_uuid = ? AND ci.owner_id = ?`
	err := s.db.QueryRow(s.rebind(query), imageShort, captureShort, ownerID).Scan(&imageID, &filename)
	if err != nil {
		return "", err
	}

	if _, err := s.db.Exec(s.rebind("DELETE FROM capture_images WHERE id = ?"), imageID); err != nil {
		return "", err
	}
	return filename, nil
}

func (s *SQLStore) UserOwnsImageFile(ownerID int, filename string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		s.rebind("SELECT 1 FROM capture_images WHERE filename = ? AND owner_id = ?"),
		filename, ownerID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
