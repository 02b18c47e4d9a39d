package models

import "time"

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Capture is one capture session: a voice transcript plus ordered images.
// ShortUUID is the external-facing address; the numeric ID never appears in URLs.
type Capture struct {
	ID              int            `json:"id"`
	ShortUUID       string         `json:"short_uuid"`
	OwnerID         int            `json:"-"`
	VoiceTranscript string         `json:"voice_transcript"`
	IsComplete      bool           `json:"is_complete"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Images          []CaptureImage `json:"images"`
}

// CaptureImage carries two external identifiers on purpose: ShortUUID
// addresses the image in URLs, UUID is the key the reorder endpoint matches
// against. The canonical read ordering is (order ASC, created_at ASC).
type CaptureImage struct {
	ID        int       `json:"id"`
	UUID      string    `json:"uuid"`
	ShortUUID string    `json:"short_uuid"`
	OwnerID   int       `json:"-"`
	CaptureID int       `json:"-"`
	Filename  string    `json:"-"`
	ImageURL  string    `json:"image_url"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
