package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/pkg/config"
	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/models"
)

/* ============================== JWT Claims ============================== */

// Claims represents the JWT payload we issue and expect.
type Claims struct {
	Sub   string `json:"sub"`   // user ID
	Staff bool   `json:"staff"` // staff or superuser
	jwt.RegisteredClaims
}

/* ============================== JWT Helpers ============================= */

// Tokens signs and verifies HS256 tokens shared by the web and mobile clients.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	log    *logger.Logger
}

func NewTokens(cfg config.JWTConfig, log *logger.Logger) *Tokens {
	return &Tokens{secret: []byte(cfg.Secret), ttl: cfg.TTL(), log: log}
}

// Issue signs a token for the given user.
func (t *Tokens) Issue(userID string, staff bool) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:   userID,
		Staff: staff,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

/* ============================== Middleware ============================== */

// RequireAuth validates a Bearer JWT and injects userID and staff into the context.
func (t *Tokens) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return fiber.ErrUnauthorized
		}
		tokenStr := strings.TrimPrefix(h, "Bearer ")

		token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(tk *jwt.Token) (any, error) {
			return t.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return fiber.ErrUnauthorized
		}

		claims, ok := token.Claims.(*Claims)
		if !ok {
			return fiber.ErrUnauthorized
		}

		c.Locals("userID", claims.Sub)
		c.Locals("staff", claims.Staff)
		if t.log != nil {
			c.SetUserContext(t.log.WithUserID(c.UserContext(), claims.Sub))
		}
		return c.Next()
	}
}

// MustUserID reads the authenticated user ID from context or panics (programming error).
func MustUserID(c *fiber.Ctx) string {
	if v := c.Locals("userID"); v != nil {
		return v.(string)
	}
	panic(errors.New("user not in context"))
}

// IsStaff reads the staff claim set by RequireAuth.
func IsStaff(c *fiber.Ctx) bool {
	v, _ := c.Locals("staff").(bool)
	return v
}

// RequireStaff must run after RequireAuth.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsStaff(c) {
			return fiber.ErrForbidden
		}
		return c.Next()
	}
}

// CurrentUser loads the authenticated user row.
func CurrentUser(c *fiber.Ctx, db *gorm.DB) (*models.User, error) {
	id, err := uuid.Parse(MustUserID(c))
	if err != nil {
		return nil, fiber.ErrUnauthorized
	}
	var u models.User
	if err := db.WithContext(c.UserContext()).First(&u, "id = ?", id).Error; err != nil {
		return nil, fiber.ErrUnauthorized
	}
	return &u, nil
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusPaymentRequired:
		return "PAYMENT_REQUIRED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusGone:
		return "GONE"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case fiber.StatusBadGateway:
		return "BAD_GATEWAY"
	case fiber.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorHandler is a global Fiber error handler that returns a consistent JSON shape.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if strings.TrimSpace(fe.Message) != "" {
			msg = fe.Message
		} else {
			msg = fiber.ErrInternalServerError.Message
			switch code {
			case fiber.StatusBadRequest:
				msg = fiber.ErrBadRequest.Message
			case fiber.StatusUnauthorized:
				msg = fiber.ErrUnauthorized.Message
			case fiber.StatusForbidden:
				msg = fiber.ErrForbidden.Message
			case fiber.StatusNotFound:
				msg = fiber.ErrNotFound.Message
			case fiber.StatusConflict:
				msg = fiber.ErrConflict.Message
			}
		}
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Code:    httpCodeToString(code),
		Error:   true,
		Message: msg,
	})
}
