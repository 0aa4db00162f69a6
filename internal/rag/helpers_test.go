package rag_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/aitutor/internal/rag"
)

// vocabEmbedder counts occurrences of a fixed vocabulary. Words outside the
// vocabulary are ignored, so blank or unknown text maps to the zero vector.
type vocabEmbedder struct {
	vocab map[string]int
	dim   int
}

func newVocabEmbedder(words ...string) *vocabEmbedder {
	e := &vocabEmbedder{vocab: map[string]int{}, dim: len(words)}
	for i, w := range words {
		e.vocab[w] = i
	}
	return e
}

func (e *vocabEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if i, ok := e.vocab[word]; ok {
			vec[i]++
		}
	}
	return vec, nil
}

func (e *vocabEmbedder) Dimension() int {
	return e.dim
}

type failingEmbedder struct {
	rag.Embedder
	failOn string
}

var errEmbedDown = errors.New("embedding backend unavailable")

func (e *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.failOn == "" || strings.Contains(text, e.failOn) {
		return nil, errEmbedDown
	}
	return e.Embedder.Embed(ctx, text)
}

type wrongDimEmbedder struct {
	rag.Embedder
}

func (e *wrongDimEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return append(vec, 0), nil
}

// rejectingEmbedder fails the way a provider-backed embedder does when the
// model answers with the wrong dimension.
type rejectingEmbedder struct {
	rag.Embedder
}

func (e *rejectingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("%w: short/m returned %d dimensions, configured %d",
		rag.ErrConfig, e.Dimension()-1, e.Dimension())
}

// recordingIndex counts calls and can fail queries.
type recordingIndex struct {
	rag.VectorIndex
	mu         sync.Mutex
	upserts    int
	deletes    int
	queryErr   error
	lastUpsert []rag.Vector
}

func (r *recordingIndex) Upsert(ctx context.Context, ns string, vectors []rag.Vector) error {
	r.mu.Lock()
	r.upserts++
	r.lastUpsert = vectors
	r.mu.Unlock()
	return r.VectorIndex.Upsert(ctx, ns, vectors)
}

func (r *recordingIndex) DeleteNamespace(ctx context.Context, ns string) error {
	r.mu.Lock()
	r.deletes++
	r.mu.Unlock()
	return r.VectorIndex.DeleteNamespace(ctx, ns)
}

func (r *recordingIndex) Query(ctx context.Context, ns string, vec []float32, topK int) ([]rag.Match, error) {
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	return r.VectorIndex.Query(ctx, ns, vec, topK)
}

// buildPDF writes a minimal PDF with one text line per page.
func buildPDF(pages ...string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	buf.WriteString("%PDF-1.4\n")

	n := len(pages)
	fontObj := 3 + 2*n
	kids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+2*i))
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i, text := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontObj, 4+2*i))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}
