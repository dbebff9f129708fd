package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenIssuer = "editcount"
	KeySubject  = "subject"
)

// Claims carried by scan control tokens
type Claims struct {
	jwt.RegisteredClaims
}

// JWTAuth requires a bearer token signed with secretKey
func JWTAuth(secretKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			AbortWithError(c, http.StatusUnauthorized, "MISSING_TOKEN", "Authorization token is required")
			return
		}

		scheme, tokenString, found := strings.Cut(authHeader, " ")
		if !found || scheme != "Bearer" || tokenString == "" {
			AbortWithError(c, http.StatusUnauthorized, "INVALID_TOKEN_FORMAT", "Authorization token must be in format: Bearer <token>")
			return
		}

		claims, err := ParseToken(tokenString, secretKey)
		if err != nil {
			switch {
			case errors.Is(err, jwt.ErrTokenSignatureInvalid):
				AbortWithError(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid token signature")
			case errors.Is(err, jwt.ErrTokenExpired):
				AbortWithError(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired")
			case errors.Is(err, jwt.ErrTokenNotValidYet):
				AbortWithError(c, http.StatusUnauthorized, "TOKEN_NOT_VALID_YET", "Token is not valid yet")
			default:
				AbortWithError(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
			}
			return
		}

		c.Set(KeySubject, claims.Subject)
		c.Next()
	}
}

// ParseToken validates a token and returns its claims
func ParseToken(tokenString, secretKey string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// GenerateToken issues a token for subject that expires after ttl
func GenerateToken(subject, secretKey string, ttl time.Duration) (string, error) {
	if secretKey == "" {
		return "", errors.New("jwt secret is not configured")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    TokenIssuer,
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}
