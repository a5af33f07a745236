package middleware

import (
	"context"
	"log/slog"
	"strings"

	"tripsplit-backend/utils"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
)

// TokenVerifier turns a bearer token into a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// JWTVerifier accepts HS256 tokens signed with Secret.
type JWTVerifier struct {
	Secret string
}

func (v JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	return utils.ParseToken(v.Secret, token)
}

// FirebaseVerifier accepts Firebase Auth ID tokens; the user id is the Firebase uid.
type FirebaseVerifier struct {
	Client *auth.Client
}

func (v FirebaseVerifier) Verify(ctx context.Context, token string) (string, error) {
	t, err := v.Client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}
	return t.UID, nil
}

// AuthRequired rejects requests without a valid bearer token and stores the
// caller's id under "user_id".
func AuthRequired(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			utils.Unauthorized(c, "Authorization header required")
			return
		}

		userID, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			slog.Debug("rejected token", "path", c.FullPath(), "error", err)
			utils.Unauthorized(c, "Invalid or expired token")
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
