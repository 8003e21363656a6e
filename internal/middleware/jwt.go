package middleware

import (
	"fmt"
	"strings"
	"time"

	"billdesk/internal/common"
	"billdesk/internal/models"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const tokenContextKey = "user"

// Claims carried by access tokens. The subject is the principal id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTMiddleware validates the bearer token and stores the principal on the
// request context. keyFunc takes precedence over secret when set.
func JWTMiddleware(secret string, keyFunc jwt.Keyfunc) echo.MiddlewareFunc {
	cfg := echojwt.Config{
		ContextKey: tokenContextKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(Claims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			logrus.WithError(err).WithField("path", c.Path()).Debug("rejected bearer token")
			return common.SendError(c, common.NewUnauthenticatedError("Invalid or missing token"))
		},
	}
	if keyFunc != nil {
		cfg.KeyFunc = keyFunc
	} else {
		cfg.SigningKey = []byte(secret)
	}
	validate := echojwt.WithConfig(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return validate(principalFromToken(next))
	}
}

func principalFromToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := c.Get(tokenContextKey).(*jwt.Token)
		if !ok {
			return common.SendError(c, common.NewUnauthenticatedError("Missing token"))
		}
		principal, err := PrincipalFromClaims(token.Claims)
		if err != nil {
			return common.SendError(c, common.NewUnauthenticatedError(err.Error()))
		}

		ctx := common.WithPrincipal(c.Request().Context(), principal)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// PrincipalFromClaims extracts the caller id and role from token claims.
func PrincipalFromClaims(claims jwt.Claims) (models.Principal, error) {
	c, ok := claims.(*Claims)
	if !ok {
		return models.Principal{}, fmt.Errorf("Invalid claims")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Principal{}, fmt.Errorf("Invalid subject in token")
	}
	role := models.Role(strings.ToLower(c.Role))
	switch role {
	case models.RoleAdmin, models.RoleCustomer:
	case "":
		role = models.RoleCustomer
	default:
		return models.Principal{}, fmt.Errorf("Unknown role in token")
	}
	return models.Principal{ID: id, Role: role}, nil
}

// NewJWKSKeyFunc fetches the key set at url and keeps it refreshed. The
// returned stop function ends the background refresh.
func NewJWKSKeyFunc(url string) (jwt.Keyfunc, func(), error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logrus.WithError(err).Warn("jwks refresh failed")
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load JWKS from %s: %w", url, err)
	}
	return jwks.Keyfunc, jwks.EndBackground, nil
}
