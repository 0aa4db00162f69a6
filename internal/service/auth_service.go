package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/xxxsen/aitutor/internal/model"
	appErr "github.com/xxxsen/aitutor/internal/pkg/errors"
	"github.com/xxxsen/aitutor/internal/pkg/jwt"
	"github.com/xxxsen/aitutor/internal/pkg/password"
	"github.com/xxxsen/aitutor/internal/pkg/timeutil"
)

type RegisterInput struct {
	Email          string
	Password       string
	VerifyPassword string
	PhoneNumber    string
	FirstName      string
	LastName       string
	Student        bool
	Tutor          bool
}

type AuthService struct {
	users     userStore
	jwtSecret []byte
	jwtTTL    time.Duration
}

func NewAuthService(users userStore, secret []byte, ttl time.Duration) *AuthService {
	return &AuthService{users: users, jwtSecret: secret, jwtTTL: ttl}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, appErr.Wrap(appErr.ErrInvalid, "invalid email")
	}
	if in.Password == "" {
		return nil, appErr.Wrap(appErr.ErrInvalid, "password is required")
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, appErr.Wrap(appErr.ErrConflict, "Email already registered")
	} else if !errors.Is(err, appErr.ErrNotFound) {
		return nil, err
	}
	if !in.Student && !in.Tutor {
		return nil, appErr.Wrap(appErr.ErrInvalid, "User must be either a student or a tutor")
	}
	if in.Password != in.VerifyPassword {
		return nil, appErr.Wrap(appErr.ErrInvalid, "Passwords do not match")
	}
	hash, err := password.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return nil, appErr.Wrap(appErr.ErrInvalid, "Password is too long")
		}
		return nil, err
	}
	now := timeutil.NowUnix()
	user := &model.User{
		ID:           newID(),
		Email:        email,
		PasswordHash: hash,
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		IsStudent:    in.Student,
		IsTutor:      in.Tutor,
		Ctime:        now,
		Mtime:        now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, appErr.ErrConflict) {
			return nil, appErr.Wrap(appErr.ErrConflict, "Email already registered")
		}
		return nil, err
	}
	return user, nil
}

// Login answers both unknown emails and wrong passwords with the same error.
func (s *AuthService) Login(ctx context.Context, email, plainPassword string) (*model.User, string, error) {
	invalid := appErr.Wrap(appErr.ErrUnauthorized, "Invalid email or password")
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			return nil, "", invalid
		}
		return nil, "", err
	}
	if !password.Match(user.PasswordHash, plainPassword) {
		return nil, "", invalid
	}
	token, err := jwt.GenerateToken(user.ID, user.Email, s.jwtSecret, s.jwtTTL)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Authenticate resolves a bearer token to an existing user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := jwt.ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrUnauthorized, "Could not validate credentials")
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			return nil, appErr.Wrap(appErr.ErrUnauthorized, "Could not validate credentials")
		}
		return nil, err
	}
	return user, nil
}
