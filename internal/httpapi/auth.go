package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ctxUserID = "userID"

var errNoToken = errors.New("authorization token required")

// RequireUser validates an HS256 bearer token and stores its userId claim.
// Websocket clients may pass the token as ?token= instead.
func RequireUser(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "server misconfigured: JWT_SECRET not set"})
			return
		}
		raw, err := bearer(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": err.Error()})
			return
		}
		uid, err := ParseUserToken(secret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}
		c.Set(ctxUserID, uid)
		c.Next()
	}
}

func bearer(c *gin.Context) (string, error) {
	if h := c.GetHeader("Authorization"); h != "" {
		const p = "Bearer "
		if !strings.HasPrefix(h, p) {
			return "", errNoToken
		}
		return strings.TrimSpace(strings.TrimPrefix(h, p)), nil
	}
	if t := strings.TrimSpace(c.Query("token")); t != "" {
		return t, nil
	}
	return "", errNoToken
}

// ParseUserToken returns the userId claim of a valid token. Numeric ids are
// accepted and formatted as decimal strings.
func ParseUserToken(secret []byte, raw string) (string, error) {
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	switch v := claims["userId"].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	}
	return "", errors.New("userId claim missing")
}

// IssueUserToken signs an HS256 token carrying userId. ttl <= 0 means no expiry.
func IssueUserToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{"userId": userID, "iat": time.Now().Unix()}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// RequireAdmin checks X-Admin-Token (or a bearer token) against token.
// An empty token disables the guarded routes entirely.
func RequireAdmin(token string) gin.HandlerFunc {
	want := []byte(strings.TrimSpace(token))
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "admin API disabled"})
			return
		}
		got := c.GetHeader("X-Admin-Token")
		if got == "" {
			got, _ = bearer(c)
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string { return c.GetString(ctxUserID) }
