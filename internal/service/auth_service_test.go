package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/aitutor/internal/pkg/errors"
)

func validRegister() RegisterInput {
	return RegisterInput{
		Email:          "Ada@Example.com",
		Password:       "secret",
		VerifyPassword: "secret",
		FirstName:      "Ada",
		Student:        true,
	}
}

func TestAuthRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *RegisterInput)
		kind   error
		msg    string
	}{
		{"bad email", func(in *RegisterInput) { in.Email = "nope" }, appErr.ErrInvalid, "invalid email"},
		{"no role", func(in *RegisterInput) { in.Student = false }, appErr.ErrInvalid, "User must be either a student or a tutor"},
		{"mismatch", func(in *RegisterInput) { in.VerifyPassword = "other" }, appErr.ErrInvalid, "Passwords do not match"},
		{"empty password", func(in *RegisterInput) { in.Password = ""; in.VerifyPassword = "" }, appErr.ErrInvalid, "password is required"},
		{"long password", func(in *RegisterInput) {
			in.Password = strings.Repeat("x", 80)
			in.VerifyPassword = in.Password
		}, appErr.ErrInvalid, "Password is too long"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewAuthService(newFakeUsers(), []byte("k"), time.Hour)
			in := validRegister()
			tc.mutate(&in)
			_, err := svc.Register(context.Background(), in)
			require.ErrorIs(t, err, tc.kind)
			require.Equal(t, tc.msg, err.Error())
		})
	}
}

func TestAuthRegisterAndLogin(t *testing.T) {
	svc := NewAuthService(newFakeUsers(), []byte("k"), time.Hour)
	ctx := context.Background()

	user, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", user.Email)
	require.NotEqual(t, "secret", user.PasswordHash)

	_, err = svc.Register(ctx, validRegister())
	require.ErrorIs(t, err, appErr.ErrConflict)
	require.Equal(t, "Email already registered", err.Error())

	got, token, err := svc.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.NotEmpty(t, token)

	authed, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, user.ID, authed.ID)

	_, _, err = svc.Login(ctx, "ada@example.com", "wrong")
	require.ErrorIs(t, err, appErr.ErrUnauthorized)
	_, _, err = svc.Login(ctx, "who@example.com", "secret")
	require.ErrorIs(t, err, appErr.ErrUnauthorized)
	_, err = svc.Authenticate(ctx, "garbage")
	require.ErrorIs(t, err, appErr.ErrUnauthorized)
}
