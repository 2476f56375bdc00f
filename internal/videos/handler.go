package videos

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipstream/backend/internal/middleware"
	"github.com/clipstream/backend/internal/models"
	"github.com/clipstream/backend/pkg/queue"
	"github.com/clipstream/backend/pkg/response"
	"github.com/clipstream/backend/pkg/storage"
)

// RecordStore is the slice of the repository the HTTP layer needs. The
// pipeline owns all other mutations.
type RecordStore interface {
	Create(ctx context.Context, v *models.Video) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProcessingQueue hands accepted uploads off to the pipeline without
// blocking the request.
type ProcessingQueue interface {
	EnqueueProcessing(ctx context.Context, payload queue.ProcessVideoPayload) error
}

// Handler handles video HTTP endpoints: intake, status read, range
// streaming and delete.
type Handler struct {
	repo     RecordStore
	store    storage.Store
	jobs     ProcessingQueue
	maxBytes int64
	allowed  map[string]struct{}
	logger   *zap.Logger
}

// NewHandler creates a videos handler. allowedTypes is the MIME allow-list
// for uploads; maxBytes the upload ceiling.
func NewHandler(repo RecordStore, store storage.Store, jobs ProcessingQueue, maxBytes int64, allowedTypes []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = struct{}{}
	}
	return &Handler{repo: repo, store: store, jobs: jobs, maxBytes: maxBytes, allowed: allowed, logger: logger}
}

// Upload handles POST /videos: validates, persists the payload under a fresh
// key, creates the record and schedules processing. All rejections happen
// before any record exists.
func (h *Handler) Upload(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	tenant := c.MustGet(middleware.ContextTenant).(string)

	// Hard stop for bodies past the ceiling; the slack covers multipart
	// framing so the declared-size check below produces the clean error.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)

	file, header, err := c.Request.FormFile("video")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.PayloadTooLarge(c, "video exceeds the upload size limit")
			return
		}
		response.BadRequest(c, "no video file provided")
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		response.PayloadTooLarge(c, "video exceeds the upload size limit")
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if _, ok := h.allowed[mimeType]; !ok {
		response.BadRequest(c, "unsupported video type, only video containers are accepted")
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = header.Filename
	}

	// Server-generated key: the client-supplied filename never reaches storage.
	key := storage.NewKey(mimeType)
	if err := h.store.Save(c.Request.Context(), key, mimeType, file, header.Size); err != nil {
		h.logger.Error("store upload failed", zap.Error(err), zap.String("key", key))
		response.Internal(c, "failed to store upload")
		return
	}

	v := &models.Video{
		Tenant:         tenant,
		OwnerID:        userID,
		Title:          title,
		State:          models.VideoStateUploading,
		Progress:       0,
		Classification: models.ClassificationPending,
		StorageKey:     key,
		SizeBytes:      header.Size,
		MimeType:       mimeType,
	}
	if err := h.repo.Create(c.Request.Context(), v); err != nil {
		h.logger.Error("create video record failed", zap.Error(err))
		if delErr := h.store.Delete(c.Request.Context(), key); delErr != nil {
			h.logger.Warn("orphaned payload left in storage", zap.String("key", key), zap.Error(delErr))
		}
		response.Internal(c, "failed to create video record")
		return
	}

	if err := h.jobs.EnqueueProcessing(c.Request.Context(), queue.ProcessVideoPayload{VideoID: v.ID, Tenant: tenant}); err != nil {
		h.logger.Error("enqueue processing failed", zap.Error(err), zap.String("video_id", v.ID.String()))
		h.remove(c.Request.Context(), v)
		response.Internal(c, "failed to schedule processing")
		return
	}

	response.Created(c, v)
}

// GetByID handles GET /videos/:id: a status snapshot of the record.
func (h *Handler) GetByID(c *gin.Context) {
	v, ok := h.loadAuthorized(c)
	if !ok {
		return
	}
	response.OK(c, v)
}

// Stream handles GET /videos/:id/stream with byte-range support. Only a
// completed asset is served; everything streams straight from storage.
func (h *Handler) Stream(c *gin.Context) {
	v, ok := h.loadAuthorized(c)
	if !ok {
		return
	}
	if v.State != models.VideoStateCompleted {
		response.Conflict(c, "video is not ready for streaming")
		return
	}

	size := v.SizeBytes
	rng, err := parseRange(c.GetHeader("Range"), size)
	if err != nil {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	headers := map[string]string{
		"Accept-Ranges": "bytes",
		"Cache-Control": "no-cache",
	}

	if rng == nil {
		rc, err := h.store.Open(c.Request.Context(), v.StorageKey)
		if err != nil {
			h.logger.Error("open payload failed", zap.Error(err), zap.String("video_id", v.ID.String()))
			response.NotFound(c, "video file not found")
			return
		}
		defer rc.Close()
		c.DataFromReader(http.StatusOK, size, v.MimeType, rc, headers)
		return
	}

	rc, err := h.store.OpenRange(c.Request.Context(), v.StorageKey, rng.start, rng.end)
	if err != nil {
		h.logger.Error("open payload range failed", zap.Error(err), zap.String("video_id", v.ID.String()))
		response.NotFound(c, "video file not found")
		return
	}
	defer rc.Close()
	headers["Content-Range"] = fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, size)
	c.DataFromReader(http.StatusPartialContent, rng.length(), v.MimeType, rc, headers)
}

// Delete handles DELETE /videos/:id. The record row goes first; a payload
// that then fails to delete is logged as orphaned rather than failing the
// request.
func (h *Handler) Delete(c *gin.Context) {
	v, ok := h.loadAuthorized(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), v.ID); err != nil {
		h.logger.Error("delete video record failed", zap.Error(err), zap.String("video_id", v.ID.String()))
		response.Internal(c, "failed to delete video")
		return
	}
	if err := h.store.Delete(c.Request.Context(), v.StorageKey); err != nil {
		h.logger.Warn("orphaned payload left in storage",
			zap.String("video_id", v.ID.String()), zap.String("key", v.StorageKey), zap.Error(err))
	}
	response.OK(c, gin.H{"message": "video deleted"})
}

// remove rolls an upload back when processing could not be scheduled:
// record first, then payload.
func (h *Handler) remove(ctx context.Context, v *models.Video) {
	if err := h.repo.Delete(ctx, v.ID); err != nil {
		h.logger.Error("rollback record failed", zap.Error(err), zap.String("video_id", v.ID.String()))
		return
	}
	if err := h.store.Delete(ctx, v.StorageKey); err != nil {
		h.logger.Warn("orphaned payload left in storage", zap.String("key", v.StorageKey), zap.Error(err))
	}
}

// loadAuthorized parses :id, loads the record and applies the access rule.
// On failure the response has already been written.
func (h *Handler) loadAuthorized(c *gin.Context) (*models.Video, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return nil, false
	}
	v, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("load video failed", zap.Error(err), zap.String("video_id", id.String()))
		response.Internal(c, "failed to load video")
		return nil, false
	}
	if v == nil {
		response.NotFound(c, "video not found")
		return nil, false
	}

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	tenant := c.MustGet(middleware.ContextTenant).(string)
	role := c.MustGet(middleware.ContextUserRole).(string)
	if !canAccess(v, userID, tenant, role) {
		response.Forbidden(c, "not authorized to access this video")
		return nil, false
	}
	return v, true
}
