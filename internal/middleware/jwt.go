package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/aitutor/internal/model"
	"github.com/xxxsen/aitutor/internal/pkg/errcode"
	appErr "github.com/xxxsen/aitutor/internal/pkg/errors"
	"github.com/xxxsen/aitutor/internal/pkg/jwt"
	"github.com/xxxsen/aitutor/internal/pkg/response"
)

const (
	ContextUserIDKey    = "user_id"
	ContextUserEmailKey = "user_email"
)

// Authenticator resolves a bearer token to the user it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// JWTAuth admits requests whose bearer token belongs to an existing user.
func JWTAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, errcode.ErrUnauthorized, "Not authenticated")
			c.Abort()
			return
		}
		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, appErr.ErrUnauthorized) {
				response.Error(c, errcode.ErrUnauthorized, "Could not validate credentials")
			} else {
				logutil.GetLogger(c.Request.Context()).Error("authenticate failed", zap.Error(err))
				response.Error(c, errcode.ErrInternal, "internal error")
			}
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextUserEmailKey, user.Email)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, jwt.TokenType) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
