package videos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/middleware"
	"github.com/clipstream/backend/internal/models"
	"github.com/clipstream/backend/pkg/queue"
	"github.com/clipstream/backend/pkg/storage"
)

type fakeRecordStore struct {
	mu        sync.Mutex
	videos    map[uuid.UUID]*models.Video
	createErr error
	deleted   []uuid.UUID
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{videos: make(map[uuid.UUID]*models.Video)}
}

func (f *fakeRecordStore) Create(_ context.Context, v *models.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	v.ID = uuid.New()
	snapshot := *v
	f.videos[v.ID] = &snapshot
	return nil
}

func (f *fakeRecordStore) GetByID(_ context.Context, id uuid.UUID) (*models.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.videos[id]
	if !ok {
		return nil, nil
	}
	snapshot := *v
	return &snapshot, nil
}

func (f *fakeRecordStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.videos[id]; !ok {
		return errors.New("no rows deleted")
	}
	delete(f.videos, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRecordStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.videos)
}

type fakeQueue struct {
	mu         sync.Mutex
	enqueued   []queue.ProcessVideoPayload
	enqueueErr error
}

func (f *fakeQueue) EnqueueProcessing(_ context.Context, payload queue.ProcessVideoPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, payload)
	return nil
}

func (f *fakeQueue) jobs() []queue.ProcessVideoPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]queue.ProcessVideoPayload, len(f.enqueued))
	copy(out, f.enqueued)
	return out
}

type principal struct {
	userID uuid.UUID
	tenant string
	role   string
}

func editorPrincipal() principal {
	return principal{userID: uuid.New(), tenant: "acme", role: auth.RoleEditor}
}

type handlerFixture struct {
	repo   *fakeRecordStore
	store  *storage.Local
	jobs   *fakeQueue
	router *gin.Engine
	who    principal
}

func newHandlerFixture(t *testing.T, who principal, maxBytes int64) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newFakeRecordStore()
	store, err := storage.NewLocal(t.TempDir(), nil)
	require.NoError(t, err)
	jobs := &fakeQueue{}

	h := NewHandler(repo, store, jobs, maxBytes, []string{"video/mp4", "video/webm"}, nil)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, who.userID)
		c.Set(middleware.ContextTenant, who.tenant)
		c.Set(middleware.ContextUserRole, who.role)
	})
	router.POST("/videos", h.Upload)
	router.GET("/videos/:id", h.GetByID)
	router.GET("/videos/:id/stream", h.Stream)
	router.DELETE("/videos/:id", h.Delete)

	return &handlerFixture{repo: repo, store: store, jobs: jobs, router: router, who: who}
}

// seed places a completed (unless overridden) record plus its payload.
func (f *handlerFixture) seed(t *testing.T, state string, data []byte) *models.Video {
	t.Helper()
	key := storage.NewKey("video/mp4")
	require.NoError(t, f.store.Save(context.Background(), key, "video/mp4", bytes.NewReader(data), int64(len(data))))
	v := &models.Video{
		Tenant:         f.who.tenant,
		OwnerID:        f.who.userID,
		Title:          "seeded",
		State:          state,
		Classification: models.ClassificationSafe,
		StorageKey:     key,
		SizeBytes:      int64(len(data)),
		MimeType:       "video/mp4",
	}
	if state == models.VideoStateCompleted {
		v.Progress = 100
	}
	require.NoError(t, f.repo.Create(context.Background(), v))
	return v
}

func multipartVideo(t *testing.T, filename, contentType string, data []byte, title string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)

	if title != "" {
		require.NoError(t, mw.WriteField("title", title))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeEnvelope(t *testing.T, body *bytes.Buffer) (bool, json.RawMessage, string) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body.Bytes(), &env))
	return env.Success, env.Data, env.Error
}

func TestUploadAcceptsVideoAndSchedulesProcessing(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)

	payload := bytes.Repeat([]byte("v"), 2048)
	body, contentType := multipartVideo(t, "birthday.mp4", "video/mp4", payload, "Birthday party")
	req := httptest.NewRequest(http.MethodPost, "/videos", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	success, data, _ := decodeEnvelope(t, w.Body)
	assert.True(t, success)

	var got models.Video
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Birthday party", got.Title)
	assert.Equal(t, models.VideoStateUploading, got.State)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, models.ClassificationPending, got.Classification)
	assert.Equal(t, int64(len(payload)), got.SizeBytes)
	assert.Equal(t, f.who.tenant, got.Tenant)

	jobs := f.jobs.jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, got.ID, jobs[0].VideoID)
	assert.Equal(t, f.who.tenant, jobs[0].Tenant)

	stored, err := f.repo.GetByID(context.Background(), got.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	size, err := f.store.Stat(context.Background(), stored.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)
}

func TestUploadTitleDefaultsToFilename(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)

	body, contentType := multipartVideo(t, "raw-footage.webm", "video/webm", []byte("data"), "")
	req := httptest.NewRequest(http.MethodPost, "/videos", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	_, data, _ := decodeEnvelope(t, w.Body)
	var got models.Video
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "raw-footage.webm", got.Title)
}

func TestUploadRejectsOversizedVideo(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1024)

	body, contentType := multipartVideo(t, "big.mp4", "video/mp4", bytes.Repeat([]byte("v"), 4096), "")
	req := httptest.NewRequest(http.MethodPost, "/videos", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, f.repo.count())
	assert.Empty(t, f.jobs.jobs())
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)

	body, contentType := multipartVideo(t, "notes.txt", "text/plain", []byte("hello"), "")
	req := httptest.NewRequest(http.MethodPost, "/videos", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.repo.count())
	assert.Empty(t, f.jobs.jobs())
}

func TestUploadRejectsMissingFile(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "no file here"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/videos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRollsBackWhenEnqueueFails(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)
	f.jobs.enqueueErr = errors.New("queue down")

	body, contentType := multipartVideo(t, "clip.mp4", "video/mp4", []byte("data"), "")
	req := httptest.NewRequest(http.MethodPost, "/videos", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// No stuck record is left behind when processing cannot be scheduled.
	assert.Zero(t, f.repo.count())
}

func TestGetByIDReturnsRecord(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)
	v := f.seed(t, models.VideoStateProcessing, []byte("data"))

	req := httptest.NewRequest(http.MethodGet, "/videos/"+v.ID.String(), nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	_, data, _ := decodeEnvelope(t, w.Body)
	var got models.Video
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, v.ID, got.ID)
	assert.Equal(t, models.VideoStateProcessing, got.State)
	// The storage key never leaves the service.
	assert.NotContains(t, w.Body.String(), v.StorageKey)
}

func TestGetByIDUnknownVideo(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/videos/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetByIDInvalidID(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/videos/not-a-uuid", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestViewerCannotReadAnotherUsersVideo(t *testing.T) {
	viewer := principal{userID: uuid.New(), tenant: "acme", role: auth.RoleViewer}
	f := newHandlerFixture(t, viewer, 1<<20)
	v := f.seed(t, models.VideoStateCompleted, []byte("data"))
	// Reassign ownership so the viewer is not the owner.
	f.repo.mu.Lock()
	f.repo.videos[v.ID].OwnerID = uuid.New()
	f.repo.mu.Unlock()

	req := httptest.NewRequest(http.MethodGet, "/videos/"+v.ID.String(), nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStreamFullContent(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)
	payload := []byte(strings.Repeat("0123456789", 100)) // 1000 bytes
	v := f.seed(t, models.VideoStateCompleted, payload)

	req := httptest.NewRequest(http.MethodGet, "/videos/"+v.ID.String()+"/stream", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, payload, w.Body.Bytes())
}

func TestStreamByteRange(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)
	payload := []byte(strings.Repeat("0123456789", 100)) // 1000 bytes
	v := f.seed(t, models.VideoStateCompleted, payload)

	req := httptest.NewRequest(http.MethodGet, "/videos/"+v.ID.String()+"/stream", nil)
	req.Header.Set("Range", "bytes=0-99")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 0-99/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, "100", w.Header().Get("Content-Length"))
	assert.Equal(t, payload[:100], w.Body.Bytes())
}

func TestStreamOpenEndedRange(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)
	payload := []byte(strings.Repeat("0123456789", 100))
	v := f.seed(t, models.VideoStateCompleted, payload)

	req := httptest.NewRequest(http.MethodGet, "/videos/"+v.ID.String()+"/stream", nil)
	req.Header.Set("Range", "bytes=900-")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 900-999/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, payload[900:], w.Body.Bytes())
}

func TestStreamRangeBeyondSize(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)
	payload := []byte(strings.Repeat("0123456789", 100)) // 1000 bytes
	v := f.seed(t, models.VideoStateCompleted, payload)

	req := httptest.NewRequest(http.MethodGet, "/videos/"+v.ID.String()+"/stream", nil)
	req.Header.Set("Range", "bytes=2000-3000")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, "bytes */1000", w.Header().Get("Content-Range"))
	assert.Empty(t, w.Body.Bytes())
}

func TestStreamRejectsVideoStillProcessing(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)
	v := f.seed(t, models.VideoStateProcessing, []byte("data"))

	req := httptest.NewRequest(http.MethodGet, "/videos/"+v.ID.String()+"/stream", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStreamRejectsFailedVideo(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)
	v := f.seed(t, models.VideoStateFailed, []byte("data"))

	req := httptest.NewRequest(http.MethodGet, "/videos/"+v.ID.String()+"/stream", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDeleteRemovesRecordAndPayload(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)
	v := f.seed(t, models.VideoStateCompleted, []byte("data"))

	req := httptest.NewRequest(http.MethodDelete, "/videos/"+v.ID.String(), nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, f.repo.count())
	_, err := f.store.Stat(context.Background(), v.StorageKey)
	assert.Error(t, err)
}

func TestDeleteSucceedsWhenPayloadAlreadyGone(t *testing.T) {
	f := newHandlerFixture(t, editorPrincipal(), 1<<20)
	v := f.seed(t, models.VideoStateCompleted, []byte("data"))
	require.NoError(t, f.store.Delete(context.Background(), v.StorageKey))

	req := httptest.NewRequest(http.MethodDelete, "/videos/"+v.ID.String(), nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	// The record is gone; the missing payload is only logged.
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, f.repo.count())
}
