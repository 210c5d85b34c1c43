package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/gilkh/livret/internal/middleware"
)

func TestRenderTokens(t *testing.T) {
	tokens := NewTokens("s3cret", time.Minute)
	token, err := tokens.RenderToken("a1")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		verifier   *Tokens
		assignment string
		wantErr    error
	}{
		{"valid", tokens, "a1", nil},
		{"other assignment", tokens, "a2", ErrWrongPurpose},
		{"other secret", NewTokens("different", time.Minute), "a1", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.verifier.VerifyRender(token, tt.assignment)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifyRender() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRenderTokenExpires(t *testing.T) {
	tokens := NewTokens("s3cret", time.Minute)
	start := time.Now()
	tokens.now = func() time.Time { return start }
	token, err := tokens.RenderToken("a1")
	if err != nil {
		t.Fatal(err)
	}
	tokens.now = func() time.Time { return start.Add(2 * time.Minute) }
	if err := tokens.VerifyRender(token, "a1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyRender() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	tokens := NewTokens("s3cret", time.Minute)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tokens.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestRequireBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := NewTokens("s3cret", time.Minute)
	apiToken, _ := tokens.Issue("u1", "ADMIN", time.Hour)
	renderToken, _ := tokens.RenderToken("a1")

	router := gin.New()
	router.GET("/private", tokens.RequireBearer(), func(c *gin.Context) {
		claims, _ := CurrentClaims(c)
		c.String(http.StatusOK, claims.Subject)
	})

	tests := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"bearer", "Bearer " + apiToken, "", http.StatusOK},
		{"cookie", "", apiToken, http.StatusOK},
		{"render token", "Bearer " + renderToken, "", http.StatusUnauthorized},
		{"garbage", "Bearer abc", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "auth_token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK && w.Body.String() != "u1" {
				t.Errorf("subject = %q", w.Body.String())
			}
		})
	}
}

func TestPasswordGate(t *testing.T) {
	hash, err := HashPassword("carnet2025")
	if err != nil {
		t.Fatal(err)
	}
	gate := NewPasswordGate(middleware.NewKeyedLimiter(3))

	if err := gate.Check("1.1.1.1", hash, "carnet2025"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := gate.Check("1.1.1.1", hash, "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("wrong password error = %v", err)
	}
	if err := gate.Check("1.1.1.1", "", "carnet2025"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("template without password error = %v", err)
	}
	if err := gate.Check("1.1.1.1", hash, "carnet2025"); !errors.Is(err, ErrTooManyAttempts) {
		t.Errorf("fourth attempt error = %v, want ErrTooManyAttempts", err)
	}
	if err := gate.Check("2.2.2.2", hash, "carnet2025"); err != nil {
		t.Errorf("other client blocked: %v", err)
	}

	if _, err := HashPassword(""); err == nil {
		t.Error("empty password should not hash")
	}
}
