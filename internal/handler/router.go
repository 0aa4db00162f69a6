package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/aitutor/internal/middleware"
)

type RouterDeps struct {
	Auth        *AuthHandler
	Documents   *DocumentHandler
	Tutor       *TutorHandler
	Sessions    middleware.Authenticator
	AskInterval time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/auth/register", deps.Auth.Register)
	api.POST("/auth/login", deps.Auth.Login)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.Sessions))
	limit := middleware.RateLimit(deps.AskInterval)

	authGroup.POST("/pdf/upload", deps.Documents.Upload)
	authGroup.GET("/pdf/list", deps.Documents.List)
	authGroup.POST("/pdf/chat", limit, deps.Documents.Chat)
	authGroup.DELETE("/pdf/:id", deps.Documents.Delete)
	authGroup.POST("/pdf/:id/reingest", deps.Documents.Reingest)

	authGroup.POST("/ask-tutor", limit, deps.Tutor.AskTutor)
	authGroup.POST("/ask-quick", limit, deps.Tutor.AskQuick)
	authGroup.GET("/response/:id", deps.Tutor.GetResponse)
	authGroup.GET("/quiz/:response_id", deps.Tutor.GetQuiz)
	authGroup.GET("/question/:id", deps.Tutor.GetQuestion)
	authGroup.GET("/user/topics", deps.Tutor.Topics)
	authGroup.GET("/user/summary", deps.Tutor.Summary)
	authGroup.POST("/quiz/submit", deps.Tutor.SubmitQuiz)
}
