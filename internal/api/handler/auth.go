package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/merkledrop-io/merkledrop/internal/webhooks"
)

// AdminClaims are the JWT claims of an operator bearer token.
type AdminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// AdminTokens issues and verifies operator tokens signed with HS256.
// The shared secret comes from deployment configuration; claim endpoints
// never see these tokens, only the admin surface does.
type AdminTokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewAdminTokens creates an AdminTokens issuer. ttl defaults to 12 hours.
func NewAdminTokens(secret, issuer string, ttl time.Duration) *AdminTokens {
	if ttl == 0 {
		ttl = 12 * time.Hour
	}
	return &AdminTokens{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Issue creates a signed operator token for the given subject.
func (t *AdminTokens) Issue(subject string) (string, error) {
	now := time.Now().UTC()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		Role: "admin",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an operator token, returning its subject.
func (t *AdminTokens) Verify(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&AdminClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("verify admin token: %w", err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid || claims.Role != "admin" {
		return "", fmt.Errorf("invalid admin token claims")
	}
	return claims.Subject, nil
}

// RequireAdmin returns a middleware that rejects requests without a valid
// operator bearer token. The verified subject is stored in the context for
// audit attribution.
func RequireAdmin(tokens *AdminTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		subject, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			return
		}

		c.Set(webhooks.AdminSubjectKey, subject)
		c.Next()
	}
}
