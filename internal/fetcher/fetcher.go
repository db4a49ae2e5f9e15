package fetcher

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// PageFetcher retrieves raw markup. Implementations never fail: any transport
// problem yields an empty string.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) string
}

// FetchAll fetches urls with at most limit requests in flight. Results are
// indexed like urls. Only cancellation of ctx is reported as an error.
func FetchAll(ctx context.Context, f PageFetcher, urls []string, limit int) ([]string, error) {
	out := make([]string, len(urls))
	if len(urls) == 0 {
		return out, ctx.Err()
	}
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, u := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = f.Fetch(gctx, u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}
