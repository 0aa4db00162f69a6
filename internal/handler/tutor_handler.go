package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/aitutor/internal/model"
	"github.com/xxxsen/aitutor/internal/pkg/errcode"
	"github.com/xxxsen/aitutor/internal/pkg/response"
	"github.com/xxxsen/aitutor/internal/service"
)

type tutorService interface {
	AskTutor(ctx context.Context, userID, question string) (*service.TutorResult, error)
	GetResponse(ctx context.Context, userID, responseID string) (*model.AIResponse, error)
	GetQuiz(ctx context.Context, userID, responseID string) (*service.QuizView, error)
	GetQuestion(ctx context.Context, questionID string) (*model.Question, error)
	Topics(ctx context.Context, userID string) ([]service.TopicItem, error)
	AskQuick(ctx context.Context, question string) (string, error)
	SubmitQuiz(ctx context.Context, userID, quizID string, answers []service.SubmittedAnswer) (*service.SubmitResult, error)
	Summary(ctx context.Context, userID string) (*service.SummaryResult, error)
}

type TutorHandler struct {
	tutor tutorService
}

func NewTutorHandler(tutor tutorService) *TutorHandler {
	return &TutorHandler{tutor: tutor}
}

type askRequest struct {
	Question string `json:"question"`
}

type submitQuizRequest struct {
	QuizID  string                    `json:"quiz_id"`
	Answers []service.SubmittedAnswer `json:"answers"`
}

type questionView struct {
	QuestionID    string   `json:"question_id"`
	QuizID        string   `json:"quiz_id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Difficulty    string   `json:"difficulty"`
}

func bindQuestion(c *gin.Context) (string, bool) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return "", false
	}
	return req.Question, true
}

func (h *TutorHandler) AskTutor(c *gin.Context) {
	question, ok := bindQuestion(c)
	if !ok {
		return
	}
	res, err := h.tutor.AskTutor(c.Request.Context(), getUserID(c), question)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *TutorHandler) AskQuick(c *gin.Context) {
	question, ok := bindQuestion(c)
	if !ok {
		return
	}
	answer, err := h.tutor.AskQuick(c.Request.Context(), question)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"answer": answer})
}

func (h *TutorHandler) GetResponse(c *gin.Context) {
	res, err := h.tutor.GetResponse(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *TutorHandler) GetQuiz(c *gin.Context) {
	quiz, err := h.tutor.GetQuiz(c.Request.Context(), getUserID(c), c.Param("response_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, quiz)
}

func (h *TutorHandler) GetQuestion(c *gin.Context) {
	q, err := h.tutor.GetQuestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, questionView{
		QuestionID:    q.ID,
		QuizID:        q.QuizID,
		Question:      q.QuestionText,
		Options:       []string{q.Option1, q.Option2, q.Option3, q.Option4},
		CorrectOption: q.CorrectOption,
		Difficulty:    q.Difficulty,
	})
}

func (h *TutorHandler) Topics(c *gin.Context) {
	topics, err := h.tutor.Topics(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"topics": topics})
}

func (h *TutorHandler) SubmitQuiz(c *gin.Context) {
	var req submitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	res, err := h.tutor.SubmitQuiz(c.Request.Context(), getUserID(c), req.QuizID, req.Answers)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *TutorHandler) Summary(c *gin.Context) {
	res, err := h.tutor.Summary(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}
