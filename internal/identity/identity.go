package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"interactive-video-service/internal/domain"
)

// Provider resolves the viewer behind a request.
type Provider interface {
	ViewerID(r *http.Request) (string, error)
}

// QueryProvider trusts the viewerId query parameter. Meant for local
// development and demos.
type QueryProvider struct {
	AllowAnonymous bool
}

func (p QueryProvider) ViewerID(r *http.Request) (string, error) {
	if id := r.URL.Query().Get("viewerId"); id != "" {
		return id, nil
	}
	return anonymous(p.AllowAnonymous)
}

// JWTProvider reads an HMAC-signed token from the Authorization header or the
// token query parameter (browsers cannot set headers on WebSocket upgrades)
// and uses its subject as the viewer ID.
type JWTProvider struct {
	secret         []byte
	allowAnonymous bool
}

func NewJWTProvider(secret string, allowAnonymous bool) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), allowAnonymous: allowAnonymous}
}

func (p *JWTProvider) ViewerID(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		return anonymous(p.allowAnonymous)
	}
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return subject, nil
}

// Sign issues a token whose subject is the viewer ID.
func (p *JWTProvider) Sign(claims jwt.RegisteredClaims) (string, error) {
	if claims.Subject == "" {
		return "", errors.New("subject required")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func anonymous(allowed bool) (string, error) {
	if !allowed {
		return "", domain.ErrUnauthorized
	}
	return domain.AnonymousViewer, nil
}
