package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/aitutor/internal/model"
	"github.com/xxxsen/aitutor/internal/pkg/errcode"
	"github.com/xxxsen/aitutor/internal/pkg/jwt"
	"github.com/xxxsen/aitutor/internal/pkg/response"
	"github.com/xxxsen/aitutor/internal/service"
)

type authService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, plainPassword string) (*model.User, string, error)
}

type AuthHandler struct {
	auth authService
}

func NewAuthHandler(auth authService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phone_number"`
	Password       string `json:"password"`
	VerifyPassword string `json:"verify_password"`
	Student        bool   `json:"student"`
	Tutor          bool   `json:"tutor"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsStudent bool   `json:"is_student"`
	IsTutor   bool   `json:"is_tutor"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	user, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		VerifyPassword: req.VerifyPassword,
		PhoneNumber:    req.PhoneNumber,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Student:        req.Student,
		Tutor:          req.Tutor,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "User registered successfully", "user_id": user.ID})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	user, token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"access_token": token,
		"token_type":   jwt.TokenType,
		"user": userView{
			UserID:    user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			IsStudent: user.IsStudent,
			IsTutor:   user.IsTutor,
		},
	})
}
