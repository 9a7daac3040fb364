package http

import (
	"errors"
	"net/http"
	"strings"

	"commerce-service/internal/dto"
	"commerce-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

var errBadToken = errors.New("invalid access token")

type claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier проверяет access-токены HS256, выпущенные сервисом авторизации.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

func (v *TokenVerifier) Verify(token string) (uuid.UUID, service.Role, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return uuid.Nil, "", err
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return uuid.Nil, "", errBadToken
	}
	sub := c.Sub
	if sub == "" {
		sub = c.Subject
	}
	uid, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", errBadToken
	}
	return uid, normalizeRole(c.Role), nil
}

// normalizeRole сервис авторизации выдаёт роли без префикса (ADMIN, CUSTOMER)
func normalizeRole(r string) service.Role {
	r = strings.ToUpper(strings.TrimSpace(r))
	if !strings.HasPrefix(r, "ROLE_") {
		r = "ROLE_" + r
	}
	if service.Role(r) == service.RoleAdmin {
		return service.RoleAdmin
	}
	return service.RoleCustomer
}

// AuthRequired кладёт пользователя, роль и язык в контекст запроса.
func AuthRequired(v *TokenVerifier, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := ExtractBearerToken(c.GetHeader("Authorization"))
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewUnauthorizedError("missing or invalid Authorization header"))
			return
		}
		uid, role, err := v.Verify(token)
		if err != nil {
			log.Warn("token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewUnauthorizedError("invalid token"))
			return
		}

		ctx := service.WithUserID(c.Request.Context(), uid)
		ctx = service.WithRole(ctx, role)
		ctx = service.WithLanguage(ctx, preferredLanguage(c.GetHeader("Accept-Language")))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := service.RoleFromContext(c.Request.Context()); role != service.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewForbiddenError("admin role required"))
			return
		}
		c.Next()
	}
}

// ExtractBearerToken "Bearer <token>", регистр схемы не важен, кавычки вокруг токена снимаются.
func ExtractBearerToken(authz string) (string, bool) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(authz), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(rest), "\"'"), true
}

// preferredLanguage базовый язык самого приоритетного тега: "cs-CZ,en;q=0.8" -> "cs"
func preferredLanguage(header string) string {
	if header == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	base, _ := tags[0].Base()
	return base.String()
}
