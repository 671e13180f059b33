package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/brightclass/api/pkg/response"
)

type AdminAuthMiddleware struct {
	jwtSecret string
}

type AdminClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func NewAdminAuthMiddleware(jwtSecret string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{jwtSecret: jwtSecret}
}

// Authenticate guards the administrative routes: a valid HMAC token
// with the admin role is required.
func (m *AdminAuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		token, err := jwt.ParseWithClaims(parts[1], &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(m.jwtSecret), nil
		})
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		claims, ok := token.Claims.(*AdminClaims)
		if !ok || !token.Valid {
			return response.Unauthorized(c, "Invalid token claims")
		}
		if claims.Role != "admin" {
			return response.Forbidden(c, "Admin role required")
		}

		c.Locals("adminId", claims.UserID)
		return c.Next()
	}
}

// GenerateToken creates a new admin JWT token (useful for testing)
func (m *AdminAuthMiddleware) GenerateToken(userID, role string) (string, error) {
	claims := AdminClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "brightclass-api",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.jwtSecret))
}
