package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/aitutor/internal/model"
	"github.com/xxxsen/aitutor/internal/pkg/errcode"
	"github.com/xxxsen/aitutor/internal/pkg/response"
	"github.com/xxxsen/aitutor/internal/service"
)

type documentService interface {
	Upload(ctx context.Context, userID, filename string, data []byte) (*model.Document, bool, error)
	List(ctx context.Context, userID string) ([]model.Document, error)
	Chat(ctx context.Context, userID, docID, question string) (*service.ChatResult, error)
	Delete(ctx context.Context, userID, docID string) error
	Reingest(ctx context.Context, userID, docID string) (*model.Document, error)
}

type DocumentHandler struct {
	docs      documentService
	maxUpload int64
}

func NewDocumentHandler(docs documentService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{docs: docs, maxUpload: maxUploadBytes}
}

type chatRequest struct {
	PDFID    string `json:"pdf_id"`
	Question string `json:"question"`
}

type documentView struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
	CreatedAt  int64  `json:"created_at"`
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1024*1024)
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxUpload > 0 && file.Size > h.maxUpload {
		response.Error(c, errcode.ErrInvalidFile, tooLargeMessage(h.maxUpload))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	data, err := io.ReadAll(opened)
	_ = opened.Close()
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "failed to read file")
		return
	}
	doc, existed, err := h.docs.Upload(c.Request.Context(), getUserID(c), file.Filename, data)
	if err != nil {
		handleError(c, err)
		return
	}
	message := "PDF processed successfully"
	if existed {
		message = "File already exists"
	}
	response.Success(c, gin.H{"message": message, "pdf_id": doc.ID, "chunk_count": doc.ChunkCount})
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docs.List(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	out := make([]documentView, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentView{ID: d.ID, Filename: d.Filename, ChunkCount: d.ChunkCount, CreatedAt: d.Ctime})
	}
	response.Success(c, out)
}

func (h *DocumentHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	res, err := h.docs.Chat(c.Request.Context(), getUserID(c), req.PDFID, req.Question)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.docs.Delete(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "PDF deleted"})
}

func (h *DocumentHandler) Reingest(c *gin.Context) {
	doc, err := h.docs.Reingest(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"pdf_id": doc.ID, "chunk_count": doc.ChunkCount})
}

// tooLargeMessage names the upload limit in whole megabytes, rounded up.
func tooLargeMessage(limit int64) string {
	const mb = 1024 * 1024
	return fmt.Sprintf("File too large. Maximum size is %dMB", (limit+mb-1)/mb)
}
