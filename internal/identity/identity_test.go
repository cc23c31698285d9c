package identity

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"interactive-video-service/internal/domain"
)

func TestJWTProvider(t *testing.T) {
	p := NewJWTProvider("secret", true)
	token, err := p.Sign(jwt.RegisteredClaims{
		Subject:   "viewer-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	r := httptest.NewRequest("GET", "/ws?videoId=v1", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	if id, err := p.ViewerID(r); err != nil || id != "viewer-42" {
		t.Fatalf("expected viewer-42 from header, got %q %v", id, err)
	}

	r = httptest.NewRequest("GET", "/ws?videoId=v1&token="+token, nil)
	if id, err := p.ViewerID(r); err != nil || id != "viewer-42" {
		t.Fatalf("expected viewer-42 from query, got %q %v", id, err)
	}

	r = httptest.NewRequest("GET", "/ws?videoId=v1", nil)
	if id, err := p.ViewerID(r); err != nil || id != domain.AnonymousViewer {
		t.Fatalf("expected anonymous viewer, got %q %v", id, err)
	}
}

func TestJWTProviderRejectsBadTokens(t *testing.T) {
	p := NewJWTProvider("secret", false)
	forged, _ := NewJWTProvider("other", false).Sign(jwt.RegisteredClaims{Subject: "viewer-42"})
	expired, _ := p.Sign(jwt.RegisteredClaims{
		Subject:   "viewer-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})

	for name, token := range map[string]string{"forged": forged, "expired": expired} {
		r := httptest.NewRequest("GET", "/ws?token="+token, nil)
		if _, err := p.ViewerID(r); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized, got %v", name, err)
		}
	}

	r := httptest.NewRequest("GET", "/ws", nil)
	if _, err := p.ViewerID(r); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected anonymous to be rejected, got %v", err)
	}
}

func TestQueryProvider(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?viewerId=u1", nil)
	if id, _ := (QueryProvider{}).ViewerID(r); id != "u1" {
		t.Fatalf("expected u1, got %q", id)
	}
	r = httptest.NewRequest("GET", "/ws", nil)
	if _, err := (QueryProvider{}).ViewerID(r); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized without anonymous access, got %v", err)
	}
}
