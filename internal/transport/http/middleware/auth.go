package middleware

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/Additional-Code/paygate/internal/config"
	"github.com/Additional-Code/paygate/internal/presentation/http/response"
	"github.com/Additional-Code/paygate/pkg/errorbank"
)

// The LMS splits its JWT across two cookies: header.payload and signature.
const (
	CookieHeaderPayload = "edx-jwt-cookie-header-payload"
	CookieSignature     = "edx-jwt-cookie-signature"
)

const claimsKey = "paygate.claims"

var errMissingCookies = errors.New("jwt cookies not present")

// Module provides the authenticator to Fx.
var Module = fx.Provide(NewAuthenticator)

// Claims are the LMS JWT claims the gateway relies on.
type Claims struct {
	UserID        int64  `json:"user_id"`
	Username      string `json:"preferred_username"`
	Email         string `json:"email"`
	Administrator bool   `json:"administrator"`
	jwt.RegisteredClaims
}

// Authenticator validates LMS-issued JWTs on learner and staff routes.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator builds an Authenticator from the auth configuration.
func NewAuthenticator(cfg config.Config) *Authenticator {
	return &Authenticator{secret: []byte(cfg.Auth.JWTSecret), issuer: cfg.Auth.JWTIssuer}
}

// RequireUser rejects requests without a valid token with 401.
func (a *Authenticator) RequireUser() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:       claimsKey,
		TokenLookup:      "header:Authorization:JWT ,header:Authorization:Bearer ",
		TokenLookupFuncs: []echomw.ValuesExtractor{splitCookieExtractor},
		ParseTokenFunc:   a.parse,
		ErrorHandler: func(c echo.Context, err error) error {
			return response.New(c).
				WithError(errorbank.Unauthorized("authentication required", errorbank.WithCause(err))).
				Build()
		},
	})
}

// RequireStaff must run after RequireUser; non-administrators get 403.
func (a *Authenticator) RequireStaff() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := UserFrom(c)
			if !ok {
				return response.New(c).WithError(errorbank.Unauthorized("authentication required")).Build()
			}
			if !claims.Administrator {
				return response.New(c).WithError(errorbank.Forbidden("staff access required")).Build()
			}
			return next(c)
		}
	}
}

// UserFrom returns the claims stored by RequireUser.
func UserFrom(c echo.Context) (*Claims, bool) {
	claims, ok := c.Get(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

func (a *Authenticator) parse(_ echo.Context, raw string) (interface{}, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("token for user %d has no preferred_username", claims.UserID)
	}
	return claims, nil
}

func splitCookieExtractor(c echo.Context) ([]string, error) {
	headerPayload, err := c.Cookie(CookieHeaderPayload)
	if err != nil || headerPayload.Value == "" {
		return nil, errMissingCookies
	}
	sig, err := c.Cookie(CookieSignature)
	if err != nil || sig.Value == "" {
		return nil, errMissingCookies
	}
	return []string{headerPayload.Value + "." + sig.Value}, nil
}
