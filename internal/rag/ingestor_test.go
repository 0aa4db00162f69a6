package rag_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/aitutor/internal/rag"
	"github.com/xxxsen/aitutor/internal/vectorindex"
)

var testVocab = []string{"alpha", "beta", "gamma", "mitochondria", "powerhouse", "cell", "photosynthesis", "chlorophyll"}

func pad(prefix, filler string, n int) string {
	s := prefix
	for utf8.RuneCountInString(s) < n {
		s += filler
	}
	return string([]rune(s)[:n])
}

// threeChunkDoc is 1200 characters; only the second chunk mentions the cell.
func threeChunkDoc() (string, []string) {
	chunks := []string{
		pad("", "alpha ", 500),
		pad("the mitochondria is the powerhouse of the cell ", "beta ", 500),
		pad("", "gamma ", 200),
	}
	return strings.Join(chunks, ""), chunks
}

type fixture struct {
	embedder rag.Embedder
	memory   *vectorindex.MemoryIndex
	index    *recordingIndex
	ingestor *rag.Ingestor
	retr     *rag.Retriever
}

func newFixture(t *testing.T, embedder rag.Embedder) *fixture {
	t.Helper()
	if embedder == nil {
		embedder = newVocabEmbedder(testVocab...)
	}
	memory := vectorindex.NewMemory()
	require.NoError(t, memory.EnsureReady(context.Background(), len(testVocab)))
	index := &recordingIndex{VectorIndex: memory}
	return &fixture{
		embedder: embedder,
		memory:   memory,
		index:    index,
		ingestor: rag.NewIngestor(embedder, index, rag.IngestorConfig{ChunkSize: 500, Concurrency: 3}),
		retr:     rag.NewRetriever(embedder, index, rag.RetrieverConfig{TopK: 3}),
	}
}

func TestIngestThreeChunks(t *testing.T) {
	f := newFixture(t, nil)
	text, want := threeChunkDoc()
	require.Equal(t, 1200, utf8.RuneCountInString(text))

	count, err := f.ingestor.Ingest(context.Background(), []byte(text), "u1_d1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Equal(t, 3, f.memory.Len("u1_d1"))
	require.Equal(t, 1, f.index.upserts)

	var lengths []int
	for i, v := range f.index.lastUpsert {
		require.Equal(t, rag.ChunkID(i), v.ID)
		require.Equal(t, want[i], v.Metadata[rag.MetadataText])
		lengths = append(lengths, utf8.RuneCountInString(v.Metadata[rag.MetadataText]))
	}
	require.Equal(t, []int{500, 500, 200}, lengths)
}

func TestIngestPDF(t *testing.T) {
	f := newFixture(t, nil)
	count, err := f.ingestor.IngestFile(context.Background(), "bio.pdf", buildPDF("photosynthesis needs light", "chlorophyll is green"), "u1_d1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, "photosynthesis needs light\nchlorophyll is green\n", f.index.lastUpsert[0].Metadata[rag.MetadataText])
}

func TestReingestShrinkLeavesNoStaleChunks(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	text, _ := threeChunkDoc()
	_, err := f.ingestor.IngestText(ctx, text, "u1_d1")
	require.NoError(t, err)

	count, err := f.ingestor.IngestText(ctx, "photosynthesis uses chlorophyll", "u1_d1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, 1, f.memory.Len("u1_d1"))

	got, err := f.retr.Retrieve(ctx, "mitochondria", "u1_d1")
	require.NoError(t, err)
	require.Equal(t, "photosynthesis uses chlorophyll", got)
}

func TestIngestContentErrorWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	text, _ := threeChunkDoc()
	_, err := f.ingestor.IngestText(ctx, text, "u1_d1")
	require.NoError(t, err)

	_, err = f.ingestor.IngestFile(ctx, "broken.pdf", []byte("%PDF-1.7\ngarbage"), "u1_d1")
	require.Error(t, err)
	require.True(t, rag.IsContent(err))
	require.False(t, rag.IsTransient(err))
	require.Equal(t, 1, f.index.upserts)
	require.Equal(t, 1, f.index.deletes)
	require.Equal(t, 3, f.memory.Len("u1_d1"))
}

func TestIngestTransientEmbedFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	text, _ := threeChunkDoc()
	_, err := f.ingestor.IngestText(ctx, text, "u1_d1")
	require.NoError(t, err)

	failing := &failingEmbedder{Embedder: f.embedder, failOn: "beta"}
	ingestor := rag.NewIngestor(failing, f.index, rag.IngestorConfig{ChunkSize: 500})
	_, err = ingestor.IngestText(ctx, text, "u1_d1")
	require.Error(t, err)
	require.True(t, rag.IsTransient(err))
	require.False(t, rag.IsContent(err))
	require.True(t, errors.Is(err, errEmbedDown))
	// the previous version stays searchable
	require.Equal(t, 3, f.memory.Len("u1_d1"))
	require.Equal(t, 1, f.index.deletes)
}

func TestIngestDimensionMismatch(t *testing.T) {
	base := newVocabEmbedder(testVocab...)
	f := newFixture(t, &wrongDimEmbedder{Embedder: base})
	_, err := f.ingestor.IngestText(context.Background(), "alpha beta", "u1_d1")
	require.True(t, rag.IsConfig(err))
	require.Zero(t, f.index.upserts)

	_, err = rag.ProbeDimension(context.Background(), &wrongDimEmbedder{Embedder: base})
	require.True(t, rag.IsConfig(err))

	dim, err := rag.ProbeDimension(context.Background(), base)
	require.NoError(t, err)
	require.Equal(t, len(testVocab), dim)
}

func TestEmbedderConfigErrorIsNotRetryable(t *testing.T) {
	f := newFixture(t, &rejectingEmbedder{Embedder: newVocabEmbedder(testVocab...)})
	ctx := context.Background()

	_, ingestErr := f.ingestor.IngestText(ctx, "alpha beta", "u1_d1")
	_, retrieveErr := f.retr.Retrieve(ctx, "alpha", "u1_d1")
	_, probeErr := rag.ProbeDimension(ctx, f.embedder)

	tests := []struct {
		name string
		err  error
	}{
		{name: "ingest", err: ingestErr},
		{name: "retrieve", err: retrieveErr},
		{name: "probe", err: probeErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			require.True(t, rag.IsConfig(tt.err))
			require.False(t, rag.IsTransient(tt.err))
			require.False(t, rag.IsContent(tt.err))
		})
	}
	require.Zero(t, f.index.upserts)
	require.Zero(t, f.index.deletes)
}

func TestIngestSkipsBlankChunks(t *testing.T) {
	f := newFixture(t, nil)
	text := pad("", "alpha ", 500) + strings.Repeat(" ", 500) + "gamma"
	count, err := f.ingestor.IngestText(context.Background(), text, "u1_d1")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, "chunk_0", f.index.lastUpsert[0].ID)
	require.Equal(t, "chunk_2", f.index.lastUpsert[1].ID)
}

func TestIngestEmptyTextClearsNamespace(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.ingestor.IngestText(ctx, "alpha", "u1_d1")
	require.NoError(t, err)

	count, err := f.ingestor.IngestText(ctx, "   \n ", "u1_d1")
	require.NoError(t, err)
	require.Zero(t, count)
	require.Zero(t, f.memory.Len("u1_d1"))
}

func TestIngestRequiresNamespace(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.ingestor.Ingest(context.Background(), []byte("alpha"), "")
	require.True(t, rag.IsConfig(err))
	require.True(t, rag.IsConfig(f.ingestor.Remove(context.Background(), " ")))
}

func TestRemove(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.ingestor.IngestText(ctx, "alpha", "u1_d1")
	require.NoError(t, err)
	require.NoError(t, f.ingestor.Remove(ctx, "u1_d1"))
	require.Zero(t, f.memory.Len("u1_d1"))
}

func TestConcurrentIngestIsolated(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			word := testVocab[i%len(testVocab)]
			_, errs[i] = f.ingestor.IngestText(ctx, pad("", word+" ", 1100), rag.Namespace(fmt.Sprintf("u%d", i), "doc"))
		}()
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err)
		ns := rag.Namespace(fmt.Sprintf("u%d", i), "doc")
		require.Equal(t, 3, f.memory.Len(ns))
		got, err := f.retr.Retrieve(ctx, "anything", ns)
		require.NoError(t, err)
		word := testVocab[i%len(testVocab)]
		for _, line := range strings.Split(got, "\n") {
			require.Empty(t, strings.Trim(line, word+" "), line)
		}
	}
}
