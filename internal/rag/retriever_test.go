package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/aitutor/internal/rag"
)

func TestRetrievePhraseFromSecondChunk(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	text, chunks := threeChunkDoc()
	_, err := f.ingestor.IngestText(ctx, text, "u1_d1")
	require.NoError(t, err)

	got, err := f.retr.Retrieve(ctx, "What is the powerhouse of the cell? mitochondria", "u1_d1")
	require.NoError(t, err)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 3)
	require.Equal(t, chunks[1], lines[0])
}

func TestRetrieveRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sentence := "Photosynthesis converts light using chlorophyll."
	_, err := f.ingestor.IngestText(ctx, sentence, "u1_d1")
	require.NoError(t, err)

	got, err := f.retr.Retrieve(ctx, sentence, "u1_d1")
	require.NoError(t, err)
	require.Equal(t, sentence, got)
}

func TestRetrieveNamespaceIsolation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	text, _ := threeChunkDoc()
	_, err := f.ingestor.IngestText(ctx, text, "u1_d1")
	require.NoError(t, err)

	got, err := f.retr.Retrieve(ctx, "mitochondria powerhouse cell", "u2_d2")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestRetrieveEmptyNamespace(t *testing.T) {
	f := newFixture(t, nil)
	got, err := f.retr.Retrieve(context.Background(), "anything at all", "u9_d9")
	require.NoError(t, err)
	require.Equal(t, "", got)

	matches, err := f.retr.RetrieveMatches(context.Background(), "anything", "u9_d9")
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestRetrieveDefaultTopK(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.ingestor.IngestText(ctx, pad("", "alpha ", 2600), "u1_d1")
	require.NoError(t, err)

	retr := rag.NewRetriever(f.embedder, f.index, rag.RetrieverConfig{})
	matches, err := retr.RetrieveMatches(ctx, "alpha", "u1_d1")
	require.NoError(t, err)
	require.Len(t, matches, rag.DefaultTopK)
}

func TestRetrieveErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.retr.Retrieve(ctx, "alpha", "")
	require.True(t, rag.IsConfig(err))

	f.index.queryErr = errors.New("connection refused")
	_, err = f.retr.Retrieve(ctx, "alpha", "u1_d1")
	require.True(t, rag.IsTransient(err))
	f.index.queryErr = nil

	retr := rag.NewRetriever(&failingEmbedder{Embedder: f.embedder}, f.index, rag.RetrieverConfig{})
	_, err = retr.Retrieve(ctx, "alpha", "u1_d1")
	require.True(t, rag.IsTransient(err))
	require.True(t, errors.Is(err, errEmbedDown))
}

type slowEmbedder struct {
	rag.Embedder
}

func (e *slowEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Second):
		return e.Embedder.Embed(ctx, text)
	}
}

func TestRetrieveTimeout(t *testing.T) {
	f := newFixture(t, nil)
	retr := rag.NewRetriever(&slowEmbedder{Embedder: f.embedder}, f.index, rag.RetrieverConfig{Timeout: 10 * time.Millisecond})
	_, err := retr.Retrieve(context.Background(), "alpha", "u1_d1")
	require.True(t, rag.IsTransient(err))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
