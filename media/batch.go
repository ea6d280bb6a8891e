package media

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// NormalizeAll normalizes images on a bounded worker pool. Results come back
// in input order and onDone is called once per image, also in input order,
// so progress stays monotonic. The error is non-nil only if ctx ended.
func (n *Normalizer) NormalizeAll(ctx context.Context, images []RawImage, onDone func(i int, img NormalizedImage)) ([]NormalizedImage, error) {
	results := make([]NormalizedImage, len(images))
	done := make([]chan struct{}, len(images))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var g errgroup.Group
	g.SetLimit(n.policy.Workers)
	go func() {
		for i := range images {
			i := i
			g.Go(func() error {
				defer close(done[i])
				results[i] = n.Normalize(ctx, images[i])
				return nil
			})
		}
	}()

	for i := range images {
		<-done[i]
		if onDone != nil {
			onDone(i, results[i])
		}
	}
	_ = g.Wait()
	return results, ctx.Err()
}
