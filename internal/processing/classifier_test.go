package processing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstream/backend/internal/models"
)

func writeTempVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
	return path
}

func TestKeywordClassifierVerdicts(t *testing.T) {
	k := NewKeywordClassifier(0)

	tests := []struct {
		filename   string
		want       string
		confidence float64
	}{
		{"holiday.mp4", models.ClassificationSafe, 0.95},
		{"test-footage.mp4", models.ClassificationFlagged, 0.85},
		{"SAMPLE_reel.webm", models.ClassificationFlagged, 0.85},
		{"product-demo.mov", models.ClassificationFlagged, 0.85},
		{"contest.mp4", models.ClassificationFlagged, 0.85}, // substring match
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			res, err := k.Classify(context.Background(), writeTempVideo(t, tt.filename))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Classification)
			assert.Equal(t, tt.confidence, res.Confidence)
		})
	}
}

func TestKeywordClassifierMissingFile(t *testing.T) {
	k := NewKeywordClassifier(0)
	_, err := k.Classify(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"))
	assert.Error(t, err)
}

func TestKeywordClassifierHonorsContext(t *testing.T) {
	k := NewKeywordClassifier(10 * time.Second) // far past any test deadline
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := k.Classify(ctx, writeTempVideo(t, "clip.mp4"))
	assert.ErrorIs(t, err, context.Canceled)
}
