package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/aitutor/internal/filestore"
	"github.com/xxxsen/aitutor/internal/model"
	appErr "github.com/xxxsen/aitutor/internal/pkg/errors"
	"github.com/xxxsen/aitutor/internal/pkg/timeutil"
	"github.com/xxxsen/aitutor/internal/rag"
)

const reingestPageSize = 100

type ChatResult struct {
	Answer      string `json:"answer"`
	ContextUsed string `json:"context_used"`
}

type ReingestReport struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
	Chunks int `json:"chunks"`
}

type DocumentServiceDeps struct {
	Documents documentStore
	Purges    purgeQueue
	Files     filestore.Store
	Ingestor  documentIngestor
	Retriever contextRetriever
	Answerer  documentAnswerer
}

type DocumentService struct {
	docs      documentStore
	purges    purgeQueue
	files     filestore.Store
	ingestor  documentIngestor
	retriever contextRetriever
	answerer  documentAnswerer
}

func NewDocumentService(deps DocumentServiceDeps) *DocumentService {
	return &DocumentService{
		docs:      deps.Documents,
		purges:    deps.Purges,
		files:     deps.Files,
		ingestor:  deps.Ingestor,
		retriever: deps.Retriever,
		answerer:  deps.Answerer,
	}
}

// Upload stores and ingests a document. A file with the same name already
// uploaded by the user is returned as is, with existed set.
func (s *DocumentService) Upload(ctx context.Context, userID, filename string, data []byte) (*model.Document, bool, error) {
	name := cleanFilename(filename)
	if name == "" {
		return nil, false, appErr.Wrap(appErr.ErrInvalid, "filename is required")
	}
	if len(data) == 0 {
		return nil, false, appErr.Wrap(appErr.ErrInvalid, "file is empty")
	}
	existing, err := s.docs.GetByFilename(ctx, userID, name)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, appErr.ErrNotFound) {
		return nil, false, err
	}

	logger := logutil.GetLogger(ctx).With(zap.String("user_id", userID), zap.String("filename", name))
	docID := newID()
	ns := rag.Namespace(userID, docID)
	key := docID + strings.ToLower(filepath.Ext(name))
	if err := s.files.Save(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, false, fmt.Errorf("save file: %w", err)
	}
	count, err := s.ingestor.IngestFile(ctx, name, data, ns)
	if err != nil {
		logger.Error("ingest document failed", zap.String("namespace", ns), zap.Error(err))
		s.deleteFile(ctx, key)
		return nil, false, err
	}
	now := timeutil.NowUnix()
	doc := &model.Document{
		ID:         docID,
		UserID:     userID,
		Filename:   name,
		FileKey:    key,
		Namespace:  ns,
		ChunkCount: count,
		Ctime:      now,
		Mtime:      now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.removeNamespace(ctx, ns)
		s.deleteFile(ctx, key)
		if errors.Is(err, appErr.ErrConflict) {
			if existing, getErr := s.docs.GetByFilename(ctx, userID, name); getErr == nil {
				return existing, true, nil
			}
		}
		return nil, false, err
	}
	logger.Info("document uploaded", zap.String("doc_id", docID), zap.Int("chunks", count))
	return doc, false, nil
}

func (s *DocumentService) List(ctx context.Context, userID string) ([]model.Document, error) {
	docs, err := s.docs.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return docs, nil
}

// Chat answers a question from the chunks of one document only.
func (s *DocumentService) Chat(ctx context.Context, userID, docID, question string) (*ChatResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, appErr.Wrap(appErr.ErrInvalid, "question is required")
	}
	doc, err := s.docs.GetByID(ctx, userID, docID)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			return nil, appErr.Wrap(appErr.ErrNotFound, "PDF not found")
		}
		return nil, err
	}
	contextText, err := s.retriever.Retrieve(ctx, question, doc.Namespace)
	if err != nil {
		return nil, err
	}
	answer, err := s.answerer.AskDocument(ctx, question, contextText)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrUpstreamUnavailable, err)
	}
	return &ChatResult{Answer: answer, ContextUsed: contextText}, nil
}

// Delete removes the record first. Vectors that cannot be deleted right away
// are queued for the purge job.
func (s *DocumentService) Delete(ctx context.Context, userID, docID string) error {
	doc, err := s.docs.GetByID(ctx, userID, docID)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, userID, docID); err != nil {
		return err
	}
	s.removeNamespace(ctx, doc.Namespace)
	s.deleteFile(ctx, doc.FileKey)
	return nil
}

func (s *DocumentService) Reingest(ctx context.Context, userID, docID string) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if err := s.reingest(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ReingestAll rebuilds the vectors of every stored document. Failures are
// logged and counted; the walk continues.
func (s *DocumentService) ReingestAll(ctx context.Context) (*ReingestReport, error) {
	report := &ReingestReport{}
	logger := logutil.GetLogger(ctx)
	for offset := uint(0); ; offset += reingestPageSize {
		docs, err := s.docs.ListAll(ctx, reingestPageSize, offset)
		if err != nil {
			return report, err
		}
		for i := range docs {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Total++
			if err := s.reingest(ctx, &docs[i]); err != nil {
				report.Failed++
				logger.Error("reingest document failed", zap.String("doc_id", docs[i].ID), zap.Error(err))
				continue
			}
			report.Chunks += docs[i].ChunkCount
		}
		if len(docs) < reingestPageSize {
			return report, nil
		}
	}
}

func (s *DocumentService) reingest(ctx context.Context, doc *model.Document) error {
	rc, err := s.files.Open(ctx, doc.FileKey)
	if err != nil {
		return fmt.Errorf("open file %s: %w", doc.FileKey, err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return fmt.Errorf("read file %s: %w", doc.FileKey, err)
	}
	count, err := s.ingestor.IngestFile(ctx, doc.Filename, data, doc.Namespace)
	if err != nil {
		return err
	}
	now := timeutil.NowUnix()
	if err := s.docs.UpdateChunkCount(ctx, doc.ID, count, now); err != nil {
		return err
	}
	doc.ChunkCount = count
	doc.Mtime = now
	return nil
}

func (s *DocumentService) removeNamespace(ctx context.Context, ns string) {
	err := s.ingestor.Remove(ctx, ns)
	if err == nil {
		return
	}
	logutil.GetLogger(ctx).Warn("remove namespace failed, queued for purge", zap.String("namespace", ns), zap.Error(err))
	if s.purges == nil {
		return
	}
	if qerr := s.purges.Add(ctx, ns, err.Error(), timeutil.NowUnix()); qerr != nil {
		logutil.GetLogger(ctx).Error("queue namespace purge failed", zap.String("namespace", ns), zap.Error(qerr))
	}
}

func (s *DocumentService) deleteFile(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.files.Delete(ctx, key); err != nil {
		logutil.GetLogger(ctx).Warn("delete stored file failed", zap.String("key", key), zap.Error(err))
	}
}

func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
