package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"capturebox/internal/auth"
	"capturebox/internal/models"
	"capturebox/internal/shortid"
	"capturebox/internal/store"
	"capturebox/internal/upload"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Handlers serves the capture REST API.
type Handlers struct {
	store        store.Store
	uploadDir    string
	limits       upload.Limits
	geminiAPIKey string
}

func NewHandlers(s store.Store, uploadDir, geminiAPIKey string) *Handlers {
	return &Handlers{
		store:        s,
		uploadDir:    uploadDir,
		limits:       upload.DefaultLimits(),
		geminiAPIKey: geminiAPIKey,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) (int, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

// lookupCapture resolves the {capture} path segment scoped to the caller.
// Nonexistent and non-owned captures are indistinguishable: both 404.
func (h *Handlers) lookupCapture(w http.ResponseWriter, r *http.Request) (models.Capture, bool) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return models.Capture{}, false
	}
	capture, err := h.store.GetCapture(userID, r.PathValue("capture"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Capture not found")
		return models.Capture{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return models.Capture{}, false
	}
	return capture, true
}

// Account handlers

func (h *Handlers) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var u models.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if u.Username == "" || u.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := h.store.CreateUser(u.Username, string(hashedPassword)); err != nil {
		writeError(w, http.StatusConflict, "Username already taken")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var u models.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, hash, err := h.store.GetUserByUsername(u.Username)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(u.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	auth.SetAuthCookie(w, id)
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	auth.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

// Capture handlers

func (h *Handlers) CreateCaptureHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	capture, err := h.store.CreateCapture(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusCreated, capture)
}

func (h *Handlers) ListCapturesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	captures, err := h.store.ListCaptures(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, captures)
}

func (h *Handlers) GetCaptureHandler(w http.ResponseWriter, r *http.Request) {
	capture, ok := h.lookupCapture(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, capture)
}

func (h *Handlers) UpdateCaptureHandler(w http.ResponseWriter, r *http.Request) {
	capture, ok := h.lookupCapture(w, r)
	if !ok {
		return
	}

	var body struct {
		VoiceTranscript *string `json:"voice_transcript"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if body.VoiceTranscript != nil {
		if err := h.store.UpdateTranscript(capture.OwnerID, capture.ShortUUID, *body.VoiceTranscript); err != nil {
			writeError(w, http.StatusInternalServerError, "Database error")
			return
		}
		capture.VoiceTranscript = *body.VoiceTranscript
	}
	writeJSON(w, http.StatusOK, capture)
}

func (h *Handlers) DeleteCaptureHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	filenames, err := h.store.DeleteCapture(userID, r.PathValue("capture"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Capture not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	for _, f := range filenames {
		os.Remove(filepath.Join(h.uploadDir, f))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Image handlers

func (h *Handlers) UploadImagesHandler(w http.ResponseWriter, r *http.Request) {
	capture, ok := h.lookupCapture(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	var fileHeaders []*multipart.FileHeader
	if r.MultipartForm != nil {
		fileHeaders = r.MultipartForm.File["images"]
	}
	if len(fileHeaders) == 0 {
		writeError(w, http.StatusBadRequest, "No images provided")
		return
	}

	// Every file must pass validation before anything is persisted, so a
	// rejected batch leaves the capture untouched.
	files := make([]*upload.File, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := upload.FromFileHeader(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Could not read file %q", fh.Filename))
			return
		}
		if err := upload.ValidateWithLimits(h.limits, f); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", f.Name, err))
			return
		}
		files = append(files, f)
	}

	// Count and max order are read once here; a concurrent upload to the
	// same capture could race this (see the policy package).
	count, maxOrder, err := h.store.CaptureImageStats(capture.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	orders, err := upload.PlanOrders(count, maxOrder, len(files))
	if err != nil {
		var capErr *upload.CapacityError
		if errors.As(err, &capErr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":         capErr.Error(),
				"current_count": capErr.CurrentCount,
				"max_allowed":   capErr.MaxAllowed,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	created := make([]models.CaptureImage, 0, len(files))
	for i, f := range files {
		short := shortid.New()
		ext := strings.ToLower(filepath.Ext(f.Name))
		filename := fmt.Sprintf("%d_%d_%s%s", capture.OwnerID, capture.ID, short, ext)
		path := filepath.Join(h.uploadDir, filename)

		if err := h.saveFile(path, f); err != nil {
			writeError(w, http.StatusInternalServerError, "Server error")
			return
		}

		img, err := h.store.AddCaptureImage(models.CaptureImage{
			UUID:      uuid.NewString(),
			ShortUUID: short,
			OwnerID:   capture.OwnerID,
			CaptureID: capture.ID,
			Filename:  filename,
			Order:     orders[i],
		})
		if err != nil {
			os.Remove(path)
			writeError(w, http.StatusInternalServerError, "Database error")
			return
		}
		created = append(created, img)
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) saveFile(path string, f *upload.File) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, f.Reader()); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func (h *Handlers) ReorderImagesHandler(w http.ResponseWriter, r *http.Request) {
	capture, ok := h.lookupCapture(w, r)
	if !ok {
		return
	}

	var body struct {
		Order []string `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	count, err := h.store.ReorderCaptureImages(capture.ID, body.Order)
	if err != nil {
		var unknownErr *store.UnknownImageError
		if errors.As(err, &unknownErr) {
			writeError(w, http.StatusBadRequest, unknownErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reordered": true, "count": count})
}

func (h *Handlers) DeleteImageHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	filename, err := h.store.DeleteCaptureImage(userID, r.PathValue("capture"), r.PathValue("image"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	os.Remove(filepath.Join(h.uploadDir, filename))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) CompleteCaptureHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	imageCount, err := h.store.CompleteCapture(userID, r.PathValue("capture"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Capture not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"completed": true, "image_count": imageCount})
}

// ServeImageHandler streams a stored image, but only to its owner.
func (h *Handlers) ServeImageHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	filename := r.PathValue("file")
	if filename == "" || filename != filepath.Base(filename) {
		http.NotFound(w, r)
		return
	}

	owns, err := h.store.UserOwnsImageFile(userID, filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if !owns {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filepath.Join(h.uploadDir, filename))
}
