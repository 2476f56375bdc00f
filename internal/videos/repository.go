package videos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipstream/backend/internal/models"
)

// Repository handles video record persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a videos repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `id, tenant, owner_id, title, state, progress, classification, storage_key,
	size_bytes, mime_type, COALESCE(duration_seconds, 0), COALESCE(width, 0), COALESCE(height, 0),
	COALESCE(bitrate, 0), COALESCE(codec, ''), created_at, updated_at`

// Create inserts a new video record at intake.
func (r *Repository) Create(ctx context.Context, v *models.Video) error {
	const q = `INSERT INTO videos (id, tenant, owner_id, title, state, progress, classification, storage_key, size_bytes, mime_type)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q,
		v.Tenant, v.OwnerID, v.Title, v.State, v.Progress, v.Classification, v.StorageKey, v.SizeBytes, v.MimeType).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// GetByID returns a video by ID, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	q := `SELECT ` + selectColumns + ` FROM videos WHERE id = $1`
	v, err := scanVideo(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// SetProcessing moves the record into the processing state.
func (r *Repository) SetProcessing(ctx context.Context, id uuid.UUID, progress int) error {
	const q = `UPDATE videos SET state = $1, progress = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, models.VideoStateProcessing, progress, id)
	return err
}

// SetMediaMetadata stores the extractor's result together with the progress milestone.
func (r *Repository) SetMediaMetadata(ctx context.Context, id uuid.UUID, durationSeconds float64, md models.MediaMetadata, progress int) error {
	const q = `UPDATE videos SET duration_seconds = $1, width = $2, height = $3, bitrate = $4, codec = $5, progress = $6, updated_at = NOW()
		WHERE id = $7`
	_, err := r.pool.Exec(ctx, q, durationSeconds, md.Width, md.Height, md.Bitrate, md.Codec, progress, id)
	return err
}

// UpdateProgress sets the progress value.
func (r *Repository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	const q = `UPDATE videos SET progress = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, progress, id)
	return err
}

// SetClassification stores the classifier verdict. Set exactly once by the
// pipeline; the WHERE clause keeps a terminal record immutable.
func (r *Repository) SetClassification(ctx context.Context, id uuid.UUID, classification string, progress int) error {
	const q = `UPDATE videos SET classification = $1, progress = $2, updated_at = NOW()
		WHERE id = $3 AND classification = $4`
	_, err := r.pool.Exec(ctx, q, classification, progress, id, models.ClassificationPending)
	return err
}

// MarkCompleted moves the record to its terminal success state.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE videos SET state = $1, progress = 100, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, models.VideoStateCompleted, id)
	return err
}

// MarkFailed moves the record to its terminal failure state. Progress keeps
// its last recorded value.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE videos SET state = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, models.VideoStateFailed, id)
	return err
}

// Delete removes the record row. The payload is removed separately, after
// this succeeds.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM videos WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*models.Video, error) {
	var v models.Video
	var md models.MediaMetadata
	err := row.Scan(&v.ID, &v.Tenant, &v.OwnerID, &v.Title, &v.State, &v.Progress, &v.Classification,
		&v.StorageKey, &v.SizeBytes, &v.MimeType, &v.DurationSeconds,
		&md.Width, &md.Height, &md.Bitrate, &md.Codec, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if md.Codec != "" || md.Width > 0 {
		v.Metadata = &md
	}
	return &v, nil
}
