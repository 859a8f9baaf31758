package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func TestIssueParse(t *testing.T) {
	s, err := Issue("operator", "classattend", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := Parse(s.Token, "secret", "classattend")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "operator" || claims.Role != OperatorRole {
		t.Errorf("unexpected claims %+v", claims)
	}

	if _, err := Parse(s.Token, "other-secret", "classattend"); err == nil {
		t.Error("expected signature failure")
	}
	if _, err := Parse(s.Token, "secret", "someone-else"); err == nil {
		t.Error("expected issuer mismatch")
	}
}

func TestParse_Expired(t *testing.T) {
	s, err := Issue("operator", "classattend", "secret", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(s.Token, "secret", "classattend"); err == nil {
		t.Error("expected expired token to fail")
	}
}

func TestParse_WrongRole(t *testing.T) {
	claims := Claims{Subject: "dev-1", Role: "device", RegisteredClaims: jwt.RegisteredClaims{Issuer: "classattend"}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(tok, "secret", "classattend"); err == nil {
		t.Error("expected role mismatch")
	}
}

func TestCheckPassword(t *testing.T) {
	if !CheckPassword("hunter2", "hunter2") {
		t.Error("expected match")
	}
	if CheckPassword("hunter2", "hunter3") || CheckPassword("", "") {
		t.Error("expected mismatch")
	}
}

func TestOperatorAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(OperatorAuth("secret", "classattend", "/login"))
	r.GET("/reports", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/override", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	s, err := Issue("operator", "classattend", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		setup  func(*http.Request)
		want   int
	}{
		{"cookie", http.MethodGet, "/reports", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: s.Token}) }, http.StatusOK},
		{"bearer", http.MethodPost, "/override", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+s.Token) }, http.StatusOK},
		{"page redirect", http.MethodGet, "/reports", func(*http.Request) {}, http.StatusSeeOther},
		{"form rejected", http.MethodPost, "/override", func(*http.Request) {}, http.StatusUnauthorized},
		{"bad cookie", http.MethodPost, "/override", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: "nope"}) }, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			tc.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusSeeOther && !strings.HasPrefix(w.Header().Get("Location"), "/login?next=") {
				t.Errorf("unexpected redirect %q", w.Header().Get("Location"))
			}
		})
	}
}
