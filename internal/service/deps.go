package service

import (
	"context"

	"github.com/xxxsen/aitutor/internal/ai"
	"github.com/xxxsen/aitutor/internal/model"
)

type userStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, userID string) (*model.User, error)
}

type documentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, userID, docID string) (*model.Document, error)
	GetByFilename(ctx context.Context, userID, filename string) (*model.Document, error)
	ListByUser(ctx context.Context, userID string) ([]model.Document, error)
	ListAll(ctx context.Context, limit, offset uint) ([]model.Document, error)
	UpdateChunkCount(ctx context.Context, docID string, chunkCount int, mtime int64) error
	Delete(ctx context.Context, userID, docID string) error
}

type purgeQueue interface {
	Add(ctx context.Context, namespace, lastError string, now int64) error
}

type documentIngestor interface {
	IngestFile(ctx context.Context, name string, data []byte, ns string) (int, error)
	Remove(ctx context.Context, ns string) error
}

type contextRetriever interface {
	Retrieve(ctx context.Context, query, ns string) (string, error)
}

type documentAnswerer interface {
	AskDocument(ctx context.Context, question, docContext string) (string, error)
}

type quizStore interface {
	SaveTutorResult(ctx context.Context, quiz *model.Quiz, questions []model.Question, resp *model.AIResponse) error
	GetQuiz(ctx context.Context, quizID string) (*model.Quiz, error)
	ListQuestions(ctx context.Context, quizID string) ([]model.Question, error)
	GetQuestion(ctx context.Context, questionID string) (*model.Question, error)
	GetQuestionsByIDs(ctx context.Context, ids []string) (map[string]model.Question, error)
}

type responseStore interface {
	GetByID(ctx context.Context, id string) (*model.AIResponse, error)
	ListByUser(ctx context.Context, userID string) ([]model.AIResponse, error)
}

type attemptStore interface {
	CreateBatch(ctx context.Context, attempts []model.QuizAttempt) error
	ListHistory(ctx context.Context, userID string, limit int) ([]model.AttemptHistory, error)
}

type tutorModel interface {
	AskTutor(ctx context.Context, question string) (*ai.TutorAnswer, error)
	AskQuick(ctx context.Context, question string) (string, error)
	AnalyzePerformance(ctx context.Context, history string) *ai.PerformanceReport
}
