package analyzer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/listen4me/internal/types"
)

// DefaultBatchSize is used when a non-positive batch size is configured.
const DefaultBatchSize = 500

// Classifier assigns a bucket name to a text
type Classifier interface {
	Classify(text string) string
}

// Analyzer buckets posts in parallel batches
type Analyzer struct {
	classifier Classifier
	batchSize  int
}

// New creates a new analyzer around a compiled classifier
func New(c Classifier, batchSize int) *Analyzer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Analyzer{classifier: c, batchSize: batchSize}
}

// ClassifyPosts returns a copy of posts with Bucket set on every entry.
// The input slice is not modified and order is preserved.
func (a *Analyzer) ClassifyPosts(ctx context.Context, posts []types.Post) ([]types.Post, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	out := make([]types.Post, len(posts))
	copy(out, posts)

	g, ctx := errgroup.WithContext(ctx)

	// Each batch owns a disjoint range of out.
	for i := 0; i < len(out); i += a.batchSize {
		batchIdx := i / a.batchSize
		batch := out[i:min(i+a.batchSize, len(out))]

		g.Go(func() error {
			for j := range batch {
				if j%64 == 0 {
					if err := ctx.Err(); err != nil {
						return fmt.Errorf("classify batch %d: %w", batchIdx, err)
					}
				}
				batch[j].Bucket = a.classifier.Classify(batch[j].Text)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
