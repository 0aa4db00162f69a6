package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/aitutor/internal/ai"
	"github.com/xxxsen/aitutor/internal/model"
	appErr "github.com/xxxsen/aitutor/internal/pkg/errors"
)

type tutorFixture struct {
	svc      *TutorService
	quizzes  *fakeQuizzes
	attempts *fakeAttempts
	model    *fakeTutorModel
}

func newTutorFixture() *tutorFixture {
	quizzes := newFakeQuizzes()
	f := &tutorFixture{
		quizzes:  quizzes,
		attempts: &fakeAttempts{},
		model: &fakeTutorModel{
			answer: &ai.TutorAnswer{
				Question: "What is osmosis?",
				Answer:   "Water moving across a membrane.",
				Topic:    "Osmosis",
				Field:    "Biology",
				Quiz: map[string]ai.QuizItem{
					"1":  {Question: "Osmosis moves?", Options: map[string]string{"1": "Salt", "2": "Water", "3": "Air", "4": "Light"}, Answer: 2, Difficulty: "easy"},
					"2":  {Question: "Across a?", Options: map[string]string{"1": "Membrane", "2": "Wall", "3": "Cell", "4": "Gap"}, Answer: 1, Difficulty: "medium"},
					"3":  {Question: "Broken", Answer: 9},
					"10": {Question: "Tenth?", Options: map[string]string{"1": "a", "2": "b", "3": "c", "4": "d"}, Answer: 4},
				},
			},
			quick: "Short answer.",
		},
	}
	f.svc = NewTutorService(TutorServiceDeps{
		Quizzes:        quizzes,
		Responses:      &fakeResponses{quizzes: quizzes},
		Attempts:       f.attempts,
		Model:          f.model,
		QuickCacheSize: 8,
		QuickCacheTTL:  time.Minute,
	})
	return f
}

func TestAskTutorPersistsQuiz(t *testing.T) {
	f := newTutorFixture()
	ctx := context.Background()

	res, err := f.svc.AskTutor(ctx, "user1", " What is osmosis? ")
	require.NoError(t, err)
	require.Equal(t, "Osmosis", res.Topic)
	require.Len(t, res.Quiz, 3)
	require.NotContains(t, res.Quiz, "3")
	require.Len(t, f.quizzes.questions, 3)

	saved := f.quizzes.responses[res.ResponseID]
	require.Equal(t, "What is osmosis?", saved.UserQuestion)
	require.Equal(t, res.QuizID, saved.QuizID)

	view, err := f.svc.GetQuiz(ctx, "user1", res.ResponseID)
	require.NoError(t, err)
	require.Equal(t, "Osmosis", view.Topic)
	require.Len(t, view.QuestionIDs, 3)

	q, err := f.svc.GetQuestion(ctx, view.QuestionIDs[0])
	require.NoError(t, err)
	require.Equal(t, res.QuizID, q.QuizID)

	_, err = f.svc.GetResponse(ctx, "user2", res.ResponseID)
	require.ErrorIs(t, err, appErr.ErrForbidden)
	_, err = f.svc.GetQuiz(ctx, "user2", res.ResponseID)
	require.ErrorIs(t, err, appErr.ErrForbidden)
	_, err = f.svc.GetResponse(ctx, "user1", "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	topics, err := f.svc.Topics(ctx, "user1")
	require.NoError(t, err)
	require.Equal(t, []TopicItem{{Topic: "Osmosis", ResponseID: res.ResponseID}}, topics)
}

func TestAskTutorErrors(t *testing.T) {
	f := newTutorFixture()
	_, err := f.svc.AskTutor(context.Background(), "user1", "  ")
	require.ErrorIs(t, err, appErr.ErrInvalid)

	f.model.err = errDown
	_, err = f.svc.AskTutor(context.Background(), "user1", "q")
	require.ErrorIs(t, err, errDown)
	require.Empty(t, f.quizzes.quizzes)

	f.model.err = nil
	f.model.answer = &ai.TutorAnswer{Answer: "text", Quiz: map[string]ai.QuizItem{}}
	res, err := f.svc.AskTutor(context.Background(), "user1", "q")
	require.NoError(t, err)
	require.Equal(t, "General", res.Topic)
}

func TestAskQuickCaches(t *testing.T) {
	f := newTutorFixture()
	ctx := context.Background()
	a, err := f.svc.AskQuick(ctx, "What is DNA?")
	require.NoError(t, err)
	b, err := f.svc.AskQuick(ctx, "  what is   dna? ")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, 1, f.model.quickCalls)

	_, err = f.svc.AskQuick(ctx, "")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestScoreAnswers(t *testing.T) {
	questions := map[string]model.Question{
		"q1": {ID: "q1", QuizID: "quiz", CorrectOption: 2},
		"q2": {ID: "q2", QuizID: "quiz", CorrectOption: 1},
		"qx": {ID: "qx", QuizID: "other", CorrectOption: 1},
	}
	answers := []SubmittedAnswer{
		{QuestionID: "q1", Answer: "2"},
		{QuestionID: "q2", Answer: float64(3)},
		{QuestionID: "q3", Answer: 1},
		{QuestionID: "qx", Answer: "1"},
		{QuestionID: "q1", Answer: "two"},
	}
	res, picks := scoreAnswers("quiz", answers, questions)
	require.Equal(t, 1, res.Score)
	require.Equal(t, 5, res.Total)
	require.Len(t, res.Details, 4)
	require.True(t, *res.Details[0].Correct)
	require.False(t, *res.Details[1].Correct)
	require.Equal(t, "Question not found", res.Details[2].Error)
	require.Equal(t, "Question not found", res.Details[3].Error)
	require.Len(t, picks, 2)
}

func TestSubmitQuiz(t *testing.T) {
	f := newTutorFixture()
	ctx := context.Background()
	res, err := f.svc.AskTutor(ctx, "user1", "What is osmosis?")
	require.NoError(t, err)
	view, err := f.svc.GetQuiz(ctx, "user1", res.ResponseID)
	require.NoError(t, err)

	var answers []SubmittedAnswer
	for _, id := range view.QuestionIDs {
		q := f.quizzes.questions[id]
		answers = append(answers, SubmittedAnswer{QuestionID: id, Answer: q.CorrectOption})
	}
	out, err := f.svc.SubmitQuiz(ctx, "user1", view.ID, answers)
	require.NoError(t, err)
	require.Equal(t, 3, out.Score)
	require.Len(t, f.attempts.saved, 3)

	_, err = f.svc.SubmitQuiz(ctx, "user1", "", answers)
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = f.svc.SubmitQuiz(ctx, "user1", view.ID, nil)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestSummary(t *testing.T) {
	f := newTutorFixture()
	ctx := context.Background()

	res, err := f.svc.Summary(ctx, "user1")
	require.NoError(t, err)
	require.False(t, res.HasData)
	require.Equal(t, "No quizzes attempted yet.", res.Message)

	f.attempts.history = []model.AttemptHistory{
		{Topic: "Cells", QuestionText: "Powerhouse?", IsCorrect: true},
		{Topic: "Osmosis", QuestionText: "Moves?", IsCorrect: false},
	}
	res, err = f.svc.Summary(ctx, "user1")
	require.NoError(t, err)
	require.True(t, res.HasData)
	require.NotNil(t, res.Analysis)
	require.Equal(t, "Topic: Cells | Question: Powerhouse? | Status: CORRECT\nTopic: Osmosis | Question: Moves? | Status: WRONG\n", f.model.lastHistory)
}
