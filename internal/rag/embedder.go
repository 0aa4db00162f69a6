package rag

import (
	"context"
	"fmt"
)

// Embedder maps text to a fixed-length vector. Implementations are
// deterministic for a given model, safe for concurrent use, and return a
// vector even for empty or whitespace-only input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

const probeText = "dimension probe"

// ProbeDimension embeds a fixed string once and checks the result against
// the declared dimension. It is meant to run at startup so a wrong model or
// provider setting fails before any request is served.
func ProbeDimension(ctx context.Context, e Embedder) (int, error) {
	if e == nil {
		return 0, fmt.Errorf("%w: embedder is not configured", ErrConfig)
	}
	vec, err := e.Embed(ctx, probeText)
	if err != nil {
		return 0, wrapEmbedErr("probe embedding", err)
	}
	if want := e.Dimension(); want > 0 && len(vec) != want {
		return 0, fmt.Errorf("%w: embedder returned %d dimensions, configured %d", ErrConfig, len(vec), want)
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("%w: embedder returned an empty vector", ErrConfig)
	}
	return len(vec), nil
}

func checkDimension(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: vector has %d dimensions, index expects %d", ErrConfig, len(vec), dim)
	}
	return nil
}
