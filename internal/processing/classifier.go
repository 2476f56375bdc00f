package processing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipstream/backend/internal/models"
)

// ClassifyResult is a classifier verdict with its confidence.
type ClassifyResult struct {
	Classification string
	Confidence     float64
}

// Classifier analyzes a video file's content. A mandatory pipeline step:
// classifier failure (or timeout) fails the whole run. Implementations are
// pluggable; no accuracy contract is assumed.
type Classifier interface {
	Classify(ctx context.Context, path string) (ClassifyResult, error)
}

// KeywordClassifier is a placeholder rule-based classifier: flags files
// whose name contains a blocked keyword, after a simulated analysis delay.
// It stands in for a real content-analysis capability.
type KeywordClassifier struct {
	delay    time.Duration
	keywords []string
}

// NewKeywordClassifier creates the placeholder classifier with the given
// simulated latency.
func NewKeywordClassifier(delay time.Duration) *KeywordClassifier {
	return &KeywordClassifier{
		delay:    delay,
		keywords: []string{"test", "sample", "demo"},
	}
}

// Classify checks the file exists, waits out the simulated analysis window
// and returns a verdict based on the filename.
func (k *KeywordClassifier) Classify(ctx context.Context, path string) (ClassifyResult, error) {
	if k.delay > 0 {
		select {
		case <-ctx.Done():
			return ClassifyResult{}, ctx.Err()
		case <-time.After(k.delay):
		}
	}

	if _, err := os.Stat(path); err != nil {
		return ClassifyResult{}, fmt.Errorf("stat video file: %w", err)
	}

	name := strings.ToLower(filepath.Base(path))
	for _, kw := range k.keywords {
		if strings.Contains(name, kw) {
			return ClassifyResult{Classification: models.ClassificationFlagged, Confidence: 0.85}, nil
		}
	}
	return ClassifyResult{Classification: models.ClassificationSafe, Confidence: 0.95}, nil
}
