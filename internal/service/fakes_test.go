package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/xxxsen/aitutor/internal/ai"
	"github.com/xxxsen/aitutor/internal/model"
	appErr "github.com/xxxsen/aitutor/internal/pkg/errors"
)

type fakeUsers struct {
	mu    sync.Mutex
	items map[string]*model.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{items: map[string]*model.User{}}
}

func (f *fakeUsers) Create(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.items {
		if u.Email == user.Email {
			return appErr.ErrConflict
		}
	}
	cp := *user
	f.items[user.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.items {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeUsers) GetByID(ctx context.Context, userID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.items[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, appErr.ErrNotFound
}

type fakeDocs struct {
	mu    sync.Mutex
	items map[string]model.Document
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{items: map[string]model.Document{}}
}

func (f *fakeDocs) Create(ctx context.Context, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.items {
		if d.UserID == doc.UserID && d.Filename == doc.Filename {
			return appErr.ErrConflict
		}
	}
	f.items[doc.ID] = *doc
	return nil
}

func (f *fakeDocs) GetByID(ctx context.Context, userID, docID string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[docID]
	if !ok || d.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	return &d, nil
}

func (f *fakeDocs) GetByFilename(ctx context.Context, userID, filename string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.items {
		if d.UserID == userID && d.Filename == filename {
			cp := d
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeDocs) ListByUser(ctx context.Context, userID string) ([]model.Document, error) {
	all, _ := f.ListAll(ctx, 1000, 0)
	var out []model.Document
	for _, d := range all {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocs) ListAll(ctx context.Context, limit, offset uint) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Document, 0, len(f.items))
	for _, d := range f.items {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDocs) UpdateChunkCount(ctx context.Context, docID string, chunkCount int, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[docID]
	if !ok {
		return appErr.ErrNotFound
	}
	d.ChunkCount = chunkCount
	d.Mtime = mtime
	f.items[docID] = d
	return nil
}

func (f *fakeDocs) Delete(ctx context.Context, userID, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[docID]
	if !ok || d.UserID != userID {
		return appErr.ErrNotFound
	}
	delete(f.items, docID)
	return nil
}

type fakePurges struct {
	added []string
}

func (f *fakePurges) Add(ctx context.Context, namespace, lastError string, now int64) error {
	f.added = append(f.added, namespace)
	return nil
}

type fakeQuizzes struct {
	quizzes   map[string]model.Quiz
	questions map[string]model.Question
	responses map[string]model.AIResponse
	saveErr   error
}

func newFakeQuizzes() *fakeQuizzes {
	return &fakeQuizzes{
		quizzes:   map[string]model.Quiz{},
		questions: map[string]model.Question{},
		responses: map[string]model.AIResponse{},
	}
}

func (f *fakeQuizzes) SaveTutorResult(ctx context.Context, quiz *model.Quiz, questions []model.Question, resp *model.AIResponse) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.quizzes[quiz.ID] = *quiz
	for _, q := range questions {
		f.questions[q.ID] = q
	}
	f.responses[resp.ID] = *resp
	return nil
}

func (f *fakeQuizzes) GetQuiz(ctx context.Context, quizID string) (*model.Quiz, error) {
	q, ok := f.quizzes[quizID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &q, nil
}

func (f *fakeQuizzes) ListQuestions(ctx context.Context, quizID string) ([]model.Question, error) {
	var out []model.Question
	for _, q := range f.questions {
		if q.QuizID == quizID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionNumber < out[j].QuestionNumber })
	return out, nil
}

func (f *fakeQuizzes) GetQuestion(ctx context.Context, questionID string) (*model.Question, error) {
	q, ok := f.questions[questionID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &q, nil
}

func (f *fakeQuizzes) GetQuestionsByIDs(ctx context.Context, ids []string) (map[string]model.Question, error) {
	out := map[string]model.Question{}
	for _, id := range ids {
		if q, ok := f.questions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

// fakeResponses reads from the same maps fakeQuizzes writes to.
type fakeResponses struct {
	quizzes *fakeQuizzes
}

func (f *fakeResponses) GetByID(ctx context.Context, id string) (*model.AIResponse, error) {
	r, ok := f.quizzes.responses[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &r, nil
}

func (f *fakeResponses) ListByUser(ctx context.Context, userID string) ([]model.AIResponse, error) {
	var out []model.AIResponse
	for _, r := range f.quizzes.responses {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeAttempts struct {
	saved   []model.QuizAttempt
	history []model.AttemptHistory
}

func (f *fakeAttempts) CreateBatch(ctx context.Context, attempts []model.QuizAttempt) error {
	f.saved = append(f.saved, attempts...)
	return nil
}

func (f *fakeAttempts) ListHistory(ctx context.Context, userID string, limit int) ([]model.AttemptHistory, error) {
	return f.history, nil
}

type fakeTutorModel struct {
	answer      *ai.TutorAnswer
	err         error
	quick       string
	quickCalls  int
	lastHistory string
}

func (f *fakeTutorModel) AskTutor(ctx context.Context, question string) (*ai.TutorAnswer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *fakeTutorModel) AskQuick(ctx context.Context, question string) (string, error) {
	f.quickCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.quick, nil
}

func (f *fakeTutorModel) AnalyzePerformance(ctx context.Context, history string) *ai.PerformanceReport {
	f.lastHistory = history
	return &ai.PerformanceReport{AverageScore: 50, StrongTopics: []string{}, WeakTopics: []string{}, Advice: "ok"}
}

var errDown = errors.New("backend down")
