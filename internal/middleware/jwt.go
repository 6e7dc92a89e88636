package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Roles carried by tokens.
const (
	RoleAdmin  = "admin"
	RoleDriver = "driver"
)

// Context keys set by RequireAuth.
const (
	CtxOrgID   = "org_id"
	CtxRole    = "role"
	CtxSubject = "sub"
)

var (
	secret   = []byte("supersecret")
	tokenTTL = 72 * time.Hour
)

// Configure sets the signing secret and token lifetime. Call it once at
// startup before serving requests.
func Configure(jwtSecret string, ttl time.Duration) {
	if jwtSecret != "" {
		secret = []byte(jwtSecret)
	}
	if ttl > 0 {
		tokenTTL = ttl
	}
}

// Claims identify the organization a token acts for, the role and the
// subject (organization id for admins, license number for drivers).
type Claims struct {
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(orgID, role, subject string) (string, error) {
	now := time.Now()
	claims := Claims{
		OrgID: orgID,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.OrgID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// tokenFrom reads the bearer token, falling back to the "token" query
// parameter that websocket clients use.
func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// authenticate validates the request token and stores its claims in c.
// On failure the request is aborted with 401.
func authenticate(c *gin.Context) bool {
	tokenString := tokenFrom(c)
	if tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
		return false
	}

	claims, err := ValidateToken(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return false
	}

	// Store claims in context for downstream handlers
	c.Set(CtxOrgID, claims.OrgID)
	c.Set(CtxRole, claims.Role)
	c.Set(CtxSubject, claims.Subject)
	return true
}

// RequireAuth ensures a valid JWT is present
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authenticate(c) {
			c.Next()
		}
	}
}

// RequireAuthWithRole ensures the JWT is valid and carries one of roles.
func RequireAuthWithRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c) {
			return
		}
		if !slices.Contains(roles, c.GetString(CtxRole)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		c.Next()
	}
}

// OrgID returns the organization of the authenticated request.
func OrgID(c *gin.Context) string { return c.GetString(CtxOrgID) }

// Subject returns the token subject of the authenticated request.
func Subject(c *gin.Context) string { return c.GetString(CtxSubject) }
