package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/aitutor/internal/ai"
	"github.com/xxxsen/aitutor/internal/model"
	appErr "github.com/xxxsen/aitutor/internal/pkg/errors"
	"github.com/xxxsen/aitutor/internal/pkg/timeutil"
)

const (
	summaryHistoryLimit = 50
	defaultTopic        = "General"
)

type TutorResult struct {
	ResponseID string                 `json:"response_id"`
	UserID     string                 `json:"user_id"`
	QuizID     string                 `json:"quiz_id"`
	Question   string                 `json:"question"`
	Answer     string                 `json:"answer"`
	Topic      string                 `json:"topic"`
	Field      string                 `json:"field"`
	Quiz       map[string]ai.QuizItem `json:"quiz"`
}

type QuizView struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	ResponseID  string   `json:"response_id"`
	QuestionIDs []string `json:"question_ids"`
	Topic       string   `json:"topic"`
}

type TopicItem struct {
	Topic      string `json:"topic"`
	ResponseID string `json:"response_id"`
}

type SubmittedAnswer struct {
	QuestionID string      `json:"question_id"`
	Answer     interface{} `json:"answer"`
}

type AnswerDetail struct {
	QuestionID string `json:"question_id"`
	Correct    *bool  `json:"correct,omitempty"`
	Error      string `json:"error,omitempty"`
}

type SubmitResult struct {
	Score   int            `json:"score"`
	Total   int            `json:"total"`
	Details []AnswerDetail `json:"details"`
}

type SummaryResult struct {
	HasData  bool                  `json:"has_data"`
	Message  string                `json:"message,omitempty"`
	Analysis *ai.PerformanceReport `json:"analysis,omitempty"`
}

type TutorServiceDeps struct {
	Quizzes   quizStore
	Responses responseStore
	Attempts  attemptStore
	Model     tutorModel
	// QuickCacheSize and QuickCacheTTL bound the AskQuick answer cache; zero
	// disables it.
	QuickCacheSize int
	QuickCacheTTL  time.Duration
}

type TutorService struct {
	quizzes   quizStore
	responses responseStore
	attempts  attemptStore
	model     tutorModel
	cache     *expirable.LRU[string, string]
}

func NewTutorService(deps TutorServiceDeps) *TutorService {
	s := &TutorService{
		quizzes:   deps.Quizzes,
		responses: deps.Responses,
		attempts:  deps.Attempts,
		model:     deps.Model,
	}
	if deps.QuickCacheSize > 0 && deps.QuickCacheTTL > 0 {
		s.cache = expirable.NewLRU[string, string](deps.QuickCacheSize, nil, deps.QuickCacheTTL)
	}
	return s
}

// AskTutor generates an answer with a quiz and stores both. Quiz items the
// model got malformed are dropped.
func (s *TutorService) AskTutor(ctx context.Context, userID, question string) (*TutorResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, appErr.Wrap(appErr.ErrInvalid, "question is required")
	}
	answer, err := s.model.AskTutor(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrUpstreamUnavailable, err)
	}
	topic := strings.TrimSpace(answer.Topic)
	if topic == "" {
		topic = defaultTopic
	}
	now := timeutil.NowUnix()
	quiz := &model.Quiz{ID: newID(), Topic: topic, CreatedBy: userID, Ctime: now}
	items, questions := buildQuestions(quiz.ID, answer.Quiz, now)
	if dropped := len(answer.Quiz) - len(items); dropped > 0 {
		logutil.GetLogger(ctx).Warn("dropped malformed quiz items", zap.Int("dropped", dropped))
	}
	resp := &model.AIResponse{
		ID:           newID(),
		UserID:       userID,
		QuizID:       quiz.ID,
		UserQuestion: question,
		Topic:        topic,
		AnswerText:   answer.Answer,
		Ctime:        now,
	}
	if err := s.quizzes.SaveTutorResult(ctx, quiz, questions, resp); err != nil {
		return nil, fmt.Errorf("save tutor result: %w", err)
	}
	return &TutorResult{
		ResponseID: resp.ID,
		UserID:     userID,
		QuizID:     quiz.ID,
		Question:   answer.Question,
		Answer:     answer.Answer,
		Topic:      topic,
		Field:      answer.Field,
		Quiz:       items,
	}, nil
}

func buildQuestions(quizID string, quiz map[string]ai.QuizItem, now int64) (map[string]ai.QuizItem, []model.Question) {
	keys := make([]string, 0, len(quiz))
	for k := range quiz {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	kept := make(map[string]ai.QuizItem, len(quiz))
	questions := make([]model.Question, 0, len(quiz))
	for _, k := range keys {
		item := quiz[k]
		if strings.TrimSpace(item.Question) == "" || item.Answer < 1 || item.Answer > 4 {
			continue
		}
		kept[k] = item
		questions = append(questions, model.Question{
			ID:             newID(),
			QuizID:         quizID,
			QuestionNumber: k,
			QuestionText:   item.Question,
			Option1:        item.Options["1"],
			Option2:        item.Options["2"],
			Option3:        item.Options["3"],
			Option4:        item.Options["4"],
			CorrectOption:  int(item.Answer),
			Difficulty:     item.Difficulty,
			Ctime:          now,
		})
	}
	return kept, questions
}

func (s *TutorService) GetResponse(ctx context.Context, userID, responseID string) (*model.AIResponse, error) {
	resp, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			return nil, appErr.Wrap(appErr.ErrNotFound, "Response not found")
		}
		return nil, err
	}
	if resp.UserID != userID {
		return nil, appErr.Wrap(appErr.ErrForbidden, "Not authorized to view this response")
	}
	return resp, nil
}

func (s *TutorService) GetQuiz(ctx context.Context, userID, responseID string) (*QuizView, error) {
	resp, err := s.GetResponse(ctx, userID, responseID)
	if err != nil {
		return nil, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, resp.QuizID)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			return nil, appErr.Wrap(appErr.ErrNotFound, "Quiz not found")
		}
		return nil, err
	}
	questions, err := s.quizzes.ListQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	return &QuizView{ID: quiz.ID, UserID: resp.UserID, ResponseID: resp.ID, QuestionIDs: ids, Topic: quiz.Topic}, nil
}

func (s *TutorService) GetQuestion(ctx context.Context, questionID string) (*model.Question, error) {
	q, err := s.quizzes.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			return nil, appErr.Wrap(appErr.ErrNotFound, "Question not found")
		}
		return nil, err
	}
	return q, nil
}

func (s *TutorService) Topics(ctx context.Context, userID string) ([]TopicItem, error) {
	responses, err := s.responses.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]TopicItem, 0, len(responses))
	for _, r := range responses {
		if r.Topic == "" || r.ID == "" {
			continue
		}
		items = append(items, TopicItem{Topic: r.Topic, ResponseID: r.ID})
	}
	return items, nil
}

func (s *TutorService) AskQuick(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", appErr.Wrap(appErr.ErrInvalid, "question is required")
	}
	key := quickCacheKey(question)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
	}
	answer, err := s.model.AskQuick(ctx, question)
	if err != nil {
		return "", fmt.Errorf("%w: %w", appErr.ErrUpstreamUnavailable, err)
	}
	if s.cache != nil {
		s.cache.Add(key, answer)
	}
	return answer, nil
}

func quickCacheKey(question string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return "quick:" + hex.EncodeToString(sum[:])
}

func (s *TutorService) SubmitQuiz(ctx context.Context, userID, quizID string, answers []SubmittedAnswer) (*SubmitResult, error) {
	quizID = strings.TrimSpace(quizID)
	if quizID == "" || len(answers) == 0 {
		return nil, appErr.Wrap(appErr.ErrInvalid, "Missing data")
	}
	ids := make([]string, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.QuestionID)
	}
	questions, err := s.quizzes.GetQuestionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	result, picks := scoreAnswers(quizID, answers, questions)
	now := timeutil.NowUnix()
	attempts := make([]model.QuizAttempt, 0, len(picks))
	for _, p := range picks {
		attempts = append(attempts, model.QuizAttempt{
			ID:             newID(),
			UserID:         userID,
			QuizID:         quizID,
			QuestionID:     p.questionID,
			SelectedOption: p.option,
			IsCorrect:      p.correct,
			Ctime:          now,
		})
	}
	if err := s.attempts.CreateBatch(ctx, attempts); err != nil {
		return nil, fmt.Errorf("save quiz attempts: %w", err)
	}
	return result, nil
}

type scoredPick struct {
	questionID string
	option     int
	correct    bool
}

// scoreAnswers grades answers against known questions. Answers that are not
// option numbers are skipped; unknown questions get an error detail. Total
// is always the number of submitted answers.
func scoreAnswers(quizID string, answers []SubmittedAnswer, questions map[string]model.Question) (*SubmitResult, []scoredPick) {
	result := &SubmitResult{Total: len(answers), Details: []AnswerDetail{}}
	var picks []scoredPick
	for _, a := range answers {
		option, ok := parseOption(a.Answer)
		if !ok {
			continue
		}
		q, found := questions[a.QuestionID]
		if !found || q.QuizID != quizID {
			result.Details = append(result.Details, AnswerDetail{QuestionID: a.QuestionID, Error: "Question not found"})
			continue
		}
		correct := q.CorrectOption == option
		if correct {
			result.Score++
		}
		result.Details = append(result.Details, AnswerDetail{QuestionID: a.QuestionID, Correct: &correct})
		picks = append(picks, scoredPick{questionID: a.QuestionID, option: option, correct: correct})
	}
	return result, picks
}

func parseOption(v interface{}) (int, bool) {
	switch val := v.(type) {
	case float64:
		if val != float64(int(val)) {
			return 0, false
		}
		return int(val), true
	case int:
		return val, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Summary asks the model to analyse the user's latest attempts.
func (s *TutorService) Summary(ctx context.Context, userID string) (*SummaryResult, error) {
	history, err := s.attempts.ListHistory(ctx, userID, summaryHistoryLimit)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return &SummaryResult{HasData: false, Message: "No quizzes attempted yet."}, nil
	}
	return &SummaryResult{HasData: true, Analysis: s.model.AnalyzePerformance(ctx, formatHistory(history))}, nil
}

func formatHistory(history []model.AttemptHistory) string {
	var sb strings.Builder
	for _, h := range history {
		status := "WRONG"
		if h.IsCorrect {
			status = "CORRECT"
		}
		fmt.Fprintf(&sb, "Topic: %s | Question: %s | Status: %s\n", h.Topic, h.QuestionText, status)
	}
	return sb.String()
}
