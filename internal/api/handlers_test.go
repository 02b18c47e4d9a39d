package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"capturebox/internal/middleware"
	"capturebox/internal/models"
	"capturebox/internal/shortid"
	"capturebox/internal/store/sqlstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	handler http.Handler
	store   *sqlstore.SQLStore
	dir     string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	s, err := sqlstore.New("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	dir := t.TempDir()
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandlers(s, dir, ""))
	return &testAPI{handler: middleware.Auth(mux), store: s, dir: dir}
}

func (a *testAPI) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *testAPI) doJSON(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, method, path, bytes.NewBufferString(body), "application/json", cookie)
}

func (a *testAPI) signupAndLogin(t *testing.T, username string) *http.Cookie {
	t.Helper()
	body := fmt.Sprintf(`{"username": %q, "password": "password123"}`, username)

	w := a.doJSON(t, "POST", "/api/signup", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.doJSON(t, "POST", "/api/login", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func (a *testAPI) createCapture(t *testing.T, cookie *http.Cookie) models.Capture {
	t.Helper()
	w := a.do(t, "POST", "/api/captures", nil, "", cookie)
	require.Equal(t, http.StatusCreated, w.Code)

	var c models.Capture
	require.NoError(t, json.NewDecoder(w.Body).Decode(&c))
	return c
}

func (a *testAPI) getCapture(t *testing.T, cookie *http.Cookie, shortUUID string) models.Capture {
	t.Helper()
	w := a.do(t, "GET", "/api/captures/"+shortUUID, nil, "", cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var c models.Capture
	require.NoError(t, json.NewDecoder(w.Body).Decode(&c))
	return c
}

type testFile struct {
	name string
	data []byte
}

func testJPEG(t *testing.T, name string, c color.Color) testFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return testFile{name: name, data: buf.Bytes()}
}

func multipartBody(t *testing.T, files []testFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("images", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (a *testAPI) uploadImages(t *testing.T, cookie *http.Cookie, captureShort string, files []testFile) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, files)
	return a.do(t, "POST", "/api/captures/"+captureShort+"/images", body, contentType, cookie)
}

// seedImages inserts image rows directly, bypassing the upload endpoint.
func (a *testAPI) seedImages(t *testing.T, username string, captureID, n int) {
	t.Helper()
	ownerID, err := a.store.GetUserID(username)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := a.store.AddCaptureImage(models.CaptureImage{
			UUID:      uuid.NewString(),
			ShortUUID: shortid.New(),
			OwnerID:   ownerID,
			CaptureID: captureID,
			Filename:  fmt.Sprintf("seed_%d_%s.jpg", captureID, shortid.New()),
			Order:     i,
		})
		require.NoError(t, err)
	}
}

func TestSignupAndLogin(t *testing.T) {
	a := newTestAPI(t)

	w := a.doJSON(t, "POST", "/api/signup", `{"username": "testuser", "password": "password123"}`, nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	// Duplicate username
	w = a.doJSON(t, "POST", "/api/signup", `{"username": "testuser", "password": "password123"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.doJSON(t, "POST", "/api/login", `{"username": "testuser", "password": "password123"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Result().Cookies())

	w = a.doJSON(t, "POST", "/api/login", `{"username": "testuser", "password": "wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	a := newTestAPI(t)

	for _, route := range []struct{ method, path string }{
		{"GET", "/api/captures"},
		{"POST", "/api/captures"},
		{"POST", "/api/captures/abc/images"},
		{"PATCH", "/api/captures/abc/reorder"},
		{"POST", "/api/captures/abc/complete"},
		{"GET", "/uploads/some.jpg"},
	} {
		w := a.do(t, route.method, route.path, nil, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
}

func TestCaptureLifecycle(t *testing.T) {
	a := newTestAPI(t)
	cookie := a.signupAndLogin(t, "alice")

	created := a.createCapture(t, cookie)
	assert.NotEmpty(t, created.ShortUUID)
	assert.Equal(t, "", created.VoiceTranscript)
	assert.False(t, created.IsComplete)
	assert.Empty(t, created.Images)

	w := a.doJSON(t, "PATCH", "/api/captures/"+created.ShortUUID, `{"voice_transcript": "Buy milk, walk dog"}`, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	got := a.getCapture(t, cookie, created.ShortUUID)
	assert.Equal(t, "Buy milk, walk dog", got.VoiceTranscript)

	w = a.do(t, "GET", "/api/captures", nil, "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var captures []models.Capture
	require.NoError(t, json.NewDecoder(w.Body).Decode(&captures))
	assert.Len(t, captures, 1)

	w = a.do(t, "DELETE", "/api/captures/"+created.ShortUUID, nil, "", cookie)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, "GET", "/api/captures/"+created.ShortUUID, nil, "", cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadImagesAppendOrder(t *testing.T) {
	a := newTestAPI(t)
	cookie := a.signupAndLogin(t, "alice")
	capture := a.createCapture(t, cookie)

	w := a.uploadImages(t, cookie, capture.ShortUUID, []testFile{
		testJPEG(t, "a.jpg", color.RGBA{R: 255, A: 255}),
		testJPEG(t, "b.jpg", color.RGBA{G: 255, A: 255}),
		testJPEG(t, "c.jpg", color.RGBA{B: 255, A: 255}),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created []models.CaptureImage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	require.Len(t, created, 3)
	for i, img := range created {
		assert.Equal(t, i, img.Order)
		assert.NotZero(t, img.ID)
		assert.NotEmpty(t, img.UUID)
		assert.NotEmpty(t, img.ShortUUID)
		assert.True(t, strings.HasPrefix(img.ImageURL, "/uploads/"), img.ImageURL)
		assert.False(t, img.CreatedAt.IsZero())
	}

	// Second batch appends after the first.
	w = a.uploadImages(t, cookie, capture.ShortUUID, []testFile{
		testJPEG(t, "d.jpg", color.White),
		testJPEG(t, "e.jpg", color.Black),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var appended []models.CaptureImage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&appended))
	require.Len(t, appended, 2)
	assert.Equal(t, 3, appended[0].Order)
	assert.Equal(t, 4, appended[1].Order)

	got := a.getCapture(t, cookie, capture.ShortUUID)
	assert.Len(t, got.Images, 5)
}

func TestUploadRejectsInvalidFileWithoutPartialInsert(t *testing.T) {
	a := newTestAPI(t)
	cookie := a.signupAndLogin(t, "alice")
	capture := a.createCapture(t, cookie)

	w := a.uploadImages(t, cookie, capture.ShortUUID, []testFile{
		testJPEG(t, "good.jpg", color.White),
		{name: "evil.jpg", data: []byte("plain text pretending to be an image, with some padding")},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "evil.jpg")
	assert.Contains(t, w.Body.String(), "text/plain")

	got := a.getCapture(t, cookie, capture.ShortUUID)
	assert.Empty(t, got.Images, "a rejected batch must not insert any image")
}

func TestUploadCapacityLimit(t *testing.T) {
	a := newTestAPI(t)
	cookie := a.signupAndLogin(t, "alice")
	capture := a.createCapture(t, cookie)
	a.seedImages(t, "alice", capture.ID, 18)

	// 18 + 3 would exceed the limit.
	w := a.uploadImages(t, cookie, capture.ShortUUID, []testFile{
		testJPEG(t, "p19.jpg", color.White),
		testJPEG(t, "p20.jpg", color.White),
		testJPEG(t, "p21.jpg", color.White),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var payload struct {
		Error        string `json:"error"`
		CurrentCount int    `json:"current_count"`
		MaxAllowed   int    `json:"max_allowed"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payload))
	assert.NotEmpty(t, payload.Error)
	assert.Equal(t, 18, payload.CurrentCount)
	assert.Equal(t, 20, payload.MaxAllowed)

	got := a.getCapture(t, cookie, capture.ShortUUID)
	assert.Len(t, got.Images, 18, "rejected batch must not change the collection")

	// 18 + 2 lands exactly on the limit.
	w = a.uploadImages(t, cookie, capture.ShortUUID, []testFile{
		testJPEG(t, "p19.jpg", color.White),
		testJPEG(t, "p20.jpg", color.White),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Full capture takes nothing more.
	w = a.uploadImages(t, cookie, capture.ShortUUID, []testFile{testJPEG(t, "p21.jpg", color.White)})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payload))
	assert.Equal(t, 20, payload.CurrentCount)
}

func TestUploadExactlyTwentyInOneBatch(t *testing.T) {
	a := newTestAPI(t)
	cookie := a.signupAndLogin(t, "alice")
	capture := a.createCapture(t, cookie)

	files := make([]testFile, 20)
	for i := range files {
		files[i] = testJPEG(t, fmt.Sprintf("photo%d.jpg", i), color.White)
	}

	w := a.uploadImages(t, cookie, capture.ShortUUID, files)
	require.Equal(t, http.StatusCreated, w.Code)

	var created []models.CaptureImage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Len(t, created, 20)
	assert.Equal(t, 19, created[19].Order)
}

func TestReorderImages(t *testing.T) {
	a := newTestAPI(t)
	cookie := a.signupAndLogin(t, "alice")
	capture := a.createCapture(t, cookie)

	w := a.uploadImages(t, cookie, capture.ShortUUID, []testFile{
		testJPEG(t, "x.jpg", color.RGBA{R: 255, A: 255}),
		testJPEG(t, "y.jpg", color.RGBA{G: 255, A: 255}),
		testJPEG(t, "z.jpg", color.RGBA{B: 255, A: 255}),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var imgs []models.CaptureImage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&imgs))
	x, y, z := imgs[0], imgs[1], imgs[2]

	body, _ := json.Marshal(map[string][]string{"order": {z.UUID, x.UUID, y.UUID}})
	w = a.doJSON(t, "PATCH", "/api/captures/"+capture.ShortUUID+"/reorder", string(body), cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Reordered bool `json:"reordered"`
		Count     int  `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.True(t, result.Reordered)
	assert.Equal(t, 3, result.Count)

	got := a.getCapture(t, cookie, capture.ShortUUID)
	require.Len(t, got.Images, 3)
	assert.Equal(t, []string{z.UUID, x.UUID, y.UUID},
		[]string{got.Images[0].UUID, got.Images[1].UUID, got.Images[2].UUID})
	assert.Equal(t, 0, got.Images[0].Order)
	assert.Equal(t, 1, got.Images[1].Order)
	assert.Equal(t, 2, got.Images[2].Order)
}

func TestReorderRejectsUnknownKey(t *testing.T) {
	a := newTestAPI(t)
	cookie := a.signupAndLogin(t, "alice")
	capture := a.createCapture(t, cookie)

	w := a.uploadImages(t, cookie, capture.ShortUUID, []testFile{testJPEG(t, "x.jpg", color.White)})
	require.Equal(t, http.StatusCreated, w.Code)
	var imgs []models.CaptureImage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&imgs))

	fake := "12345678-1234-1234-1234-123456789012"
	body, _ := json.Marshal(map[string][]string{"order": {fake, imgs[0].UUID}})
	w = a.doJSON(t, "PATCH", "/api/captures/"+capture.ShortUUID+"/reorder", string(body), cookie)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), fake)
	assert.Contains(t, w.Body.String(), "does not belong to this capture")

	got := a.getCapture(t, cookie, capture.ShortUUID)
	assert.Equal(t, 0, got.Images[0].Order)
}

func TestDeleteImage(t *testing.T) {
	a := newTestAPI(t)
	cookie := a.signupAndLogin(t, "alice")
	capture := a.createCapture(t, cookie)

	w := a.uploadImages(t, cookie, capture.ShortUUID, []testFile{testJPEG(t, "x.jpg", color.White)})
	require.Equal(t, http.StatusCreated, w.Code)
	var imgs []models.CaptureImage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&imgs))

	filename := strings.TrimPrefix(imgs[0].ImageURL, "/uploads/")
	_, err := os.Stat(filepath.Join(a.dir, filename))
	require.NoError(t, err, "uploaded file must exist on disk")

	w = a.do(t, "DELETE", "/api/captures/"+capture.ShortUUID+"/images/"+imgs[0].ShortUUID, nil, "", cookie)
	assert.Equal(t, http.StatusNoContent, w.Code)

	got := a.getCapture(t, cookie, capture.ShortUUID)
	assert.Empty(t, got.Images)

	_, err = os.Stat(filepath.Join(a.dir, filename))
	assert.True(t, os.IsNotExist(err), "file must be removed with the image")

	w = a.do(t, "DELETE", "/api/captures/"+capture.ShortUUID+"/images/nonexistent", nil, "", cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompleteCapture(t *testing.T) {
	a := newTestAPI(t)
	cookie := a.signupAndLogin(t, "alice")
	capture := a.createCapture(t, cookie)

	var result struct {
		Completed  bool `json:"completed"`
		ImageCount int  `json:"image_count"`
	}

	w := a.do(t, "POST", "/api/captures/"+capture.ShortUUID+"/complete", nil, "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.True(t, result.Completed)
	assert.Equal(t, 0, result.ImageCount)

	// Completing again is a no-op.
	w = a.do(t, "POST", "/api/captures/"+capture.ShortUUID+"/complete", nil, "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.True(t, result.Completed)

	got := a.getCapture(t, cookie, capture.ShortUUID)
	assert.True(t, got.IsComplete)
}

func TestOwnershipIsolation(t *testing.T) {
	a := newTestAPI(t)
	aliceCookie := a.signupAndLogin(t, "alice")
	bobCookie := a.signupAndLogin(t, "bob")

	capture := a.createCapture(t, aliceCookie)
	w := a.uploadImages(t, aliceCookie, capture.ShortUUID, []testFile{testJPEG(t, "x.jpg", color.White)})
	require.Equal(t, http.StatusCreated, w.Code)
	var imgs []models.CaptureImage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&imgs))

	// Every action against someone else's capture reads as "not found",
	// never "forbidden".
	base := "/api/captures/" + capture.ShortUUID
	upload, contentType := multipartBody(t, []testFile{testJPEG(t, "y.jpg", color.White)})
	reorder, _ := json.Marshal(map[string][]string{"order": {imgs[0].UUID}})

	requests := []struct {
		method, path, body, contentType string
	}{
		{"GET", base, "", ""},
		{"PATCH", base, `{"voice_transcript": "hijack"}`, "application/json"},
		{"DELETE", base, "", ""},
		{"PATCH", base + "/reorder", string(reorder), "application/json"},
		{"POST", base + "/complete", "", ""},
		{"DELETE", base + "/images/" + imgs[0].ShortUUID, "", ""},
	}
	for _, req := range requests {
		w := a.do(t, req.method, req.path, bytes.NewBufferString(req.body), req.contentType, bobCookie)
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", req.method, req.path)
	}

	w = a.do(t, "POST", base+"/images", upload, contentType, bobCookie)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Alice's capture is untouched.
	got := a.getCapture(t, aliceCookie, capture.ShortUUID)
	assert.Equal(t, "", got.VoiceTranscript)
	assert.False(t, got.IsComplete)
	assert.Len(t, got.Images, 1)
}

func TestServeImageScopedToOwner(t *testing.T) {
	a := newTestAPI(t)
	aliceCookie := a.signupAndLogin(t, "alice")
	bobCookie := a.signupAndLogin(t, "bob")

	capture := a.createCapture(t, aliceCookie)
	file := testJPEG(t, "x.jpg", color.RGBA{R: 200, A: 255})
	w := a.uploadImages(t, aliceCookie, capture.ShortUUID, []testFile{file})
	require.Equal(t, http.StatusCreated, w.Code)
	var imgs []models.CaptureImage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&imgs))

	w = a.do(t, "GET", imgs[0].ImageURL, nil, "", aliceCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, file.data, w.Body.Bytes())

	w = a.do(t, "GET", imgs[0].ImageURL, nil, "", bobCookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
