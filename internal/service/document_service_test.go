package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/aitutor/internal/ai"
	"github.com/xxxsen/aitutor/internal/config"
	"github.com/xxxsen/aitutor/internal/filestore"
	appErr "github.com/xxxsen/aitutor/internal/pkg/errors"
	"github.com/xxxsen/aitutor/internal/rag"
	"github.com/xxxsen/aitutor/internal/vectorindex"
)

type recordingAnswerer struct {
	contexts []string
}

func (r *recordingAnswerer) AskDocument(ctx context.Context, question, docContext string) (string, error) {
	r.contexts = append(r.contexts, docContext)
	if strings.TrimSpace(docContext) == "" {
		return ai.NotFoundAnswer, nil
	}
	return "answer from context", nil
}

type flakyIndex struct {
	rag.VectorIndex
	deleteErr error
}

func (f *flakyIndex) DeleteNamespace(ctx context.Context, ns string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.VectorIndex.DeleteNamespace(ctx, ns)
}

type docFixture struct {
	svc      *DocumentService
	docs     *fakeDocs
	purges   *fakePurges
	index    *vectorindex.MemoryIndex
	flaky    *flakyIndex
	answerer *recordingAnswerer
	files    filestore.Store
}

func newDocFixture(t *testing.T) *docFixture {
	t.Helper()
	provider, err := ai.NewEmbedProvider("local", nil)
	require.NoError(t, err)
	embedder := ai.NewEmbedder(provider, "hash", 64, "")
	index := vectorindex.NewMemory()
	require.NoError(t, index.EnsureReady(context.Background(), 64))
	flaky := &flakyIndex{VectorIndex: index}
	files, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)

	f := &docFixture{
		docs:     newFakeDocs(),
		purges:   &fakePurges{},
		index:    index,
		flaky:    flaky,
		answerer: &recordingAnswerer{},
		files:    files,
	}
	f.svc = NewDocumentService(DocumentServiceDeps{
		Documents: f.docs,
		Purges:    f.purges,
		Files:     files,
		Ingestor:  rag.NewIngestor(embedder, flaky, rag.IngestorConfig{ChunkSize: 40}),
		Retriever: rag.NewRetriever(embedder, flaky, rag.RetrieverConfig{}),
		Answerer:  f.answerer,
	})
	return f
}

const biologyNotes = "Cells are the basic unit of life. The mitochondria is the powerhouse of the cell. Osmosis moves water across membranes."

func TestDocumentUploadAndChat(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	doc, existed, err := f.svc.Upload(ctx, "user1", "notes/bio.txt", []byte(biologyNotes))
	require.NoError(t, err)
	require.False(t, existed)
	require.Equal(t, "bio.txt", doc.Filename)
	require.Equal(t, rag.Namespace("user1", doc.ID), doc.Namespace)
	require.Equal(t, 3, doc.ChunkCount)
	require.Equal(t, 3, f.index.Len(doc.Namespace))

	again, existed, err := f.svc.Upload(ctx, "user1", "bio.txt", []byte("other"))
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, doc.ID, again.ID)

	res, err := f.svc.Chat(ctx, "user1", doc.ID, "What is the powerhouse of the cell?")
	require.NoError(t, err)
	require.Equal(t, "answer from context", res.Answer)
	require.Contains(t, res.ContextUsed, "powerhouse of the cell")

	_, err = f.svc.Chat(ctx, "user2", doc.ID, "powerhouse?")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = f.svc.Chat(ctx, "user1", doc.ID, "  ")
	require.ErrorIs(t, err, appErr.ErrInvalid)

	list, err := f.svc.List(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	empty, err := f.svc.List(ctx, "user2")
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestDocumentUploadRejectedContent(t *testing.T) {
	f := newDocFixture(t)
	_, _, err := f.svc.Upload(context.Background(), "user1", "blob.bin", []byte{0xff, 0xfe, 0x00, 0x81})
	require.Error(t, err)
	require.True(t, rag.IsContent(err))

	docs, err := f.docs.ListAll(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Empty(t, docs)
	_, err = f.files.Open(context.Background(), "anything.bin")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDocumentUploadValidation(t *testing.T) {
	f := newDocFixture(t)
	_, _, err := f.svc.Upload(context.Background(), "user1", "  ", []byte("x"))
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, _, err = f.svc.Upload(context.Background(), "user1", "a.txt", nil)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestDocumentDelete(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	doc, _, err := f.svc.Upload(ctx, "user1", "bio.txt", []byte(biologyNotes))
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, "user2", doc.ID), appErr.ErrNotFound)
	require.NoError(t, f.svc.Delete(ctx, "user1", doc.ID))
	require.Equal(t, 0, f.index.Len(doc.Namespace))
	require.Empty(t, f.purges.added)
	_, err = f.files.Open(ctx, doc.FileKey)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDocumentDeleteQueuesPurge(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	doc, _, err := f.svc.Upload(ctx, "user1", "bio.txt", []byte(biologyNotes))
	require.NoError(t, err)

	f.flaky.deleteErr = errDown
	require.NoError(t, f.svc.Delete(ctx, "user1", doc.ID))
	require.Equal(t, []string{doc.Namespace}, f.purges.added)
	_, err = f.docs.GetByID(ctx, "user1", doc.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDocumentReingest(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	doc, _, err := f.svc.Upload(ctx, "user1", "bio.txt", []byte(biologyNotes))
	require.NoError(t, err)
	other, _, err := f.svc.Upload(ctx, "user2", "short.txt", []byte("Atoms are small."))
	require.NoError(t, err)

	got, err := f.svc.Reingest(ctx, "user1", doc.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.ChunkCount)

	report, err := f.svc.ReingestAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Total)
	require.Equal(t, 0, report.Failed)
	require.Equal(t, 4, report.Chunks)
	require.Equal(t, 1, f.index.Len(other.Namespace))

	require.NoError(t, f.files.Delete(ctx, other.FileKey))
	report, err = f.svc.ReingestAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, f.index.Len(other.Namespace))
}

func TestCleanFilename(t *testing.T) {
	tests := map[string]string{
		"bio.pdf":             "bio.pdf",
		"  dir/sub/bio.pdf ":  "bio.pdf",
		`C:\Users\me\bio.pdf`: "bio.pdf",
		"":                    "",
		"..":                  "",
		"/":                   "",
	}
	for in, want := range tests {
		require.Equal(t, want, cleanFilename(in), in)
	}
}
