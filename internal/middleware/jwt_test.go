package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

const testSecret = "test-secret"

func sign(t *testing.T, typ service.TokenType, userID int, ttl time.Duration, perms ...string) string {
	t.Helper()
	claims := service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl))},
		TokenType:        typ,
		UserID:           userID,
		Permissions:      perms,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetClaims(c).UserID})
	})
	r.GET("/x", handlers...)
	return r
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil {
		return ""
	}
	return body.Error.Code
}

func TestRequireJWT(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: testSecret})
	student := sign(t, service.TokenTypeStudent, 5, time.Hour)
	admin := sign(t, service.TokenTypeAdmin, 1, time.Hour)
	expired := sign(t, service.TokenTypeStudent, 5, -time.Minute)

	tests := []struct {
		name       string
		mw         gin.HandlerFunc
		header     string
		query      string
		wantStatus int
		wantCode   response.ErrCode
	}{
		{name: "student header", mw: RequireStudentJWT(auth), header: "Bearer " + student, wantStatus: http.StatusOK},
		{name: "student query", mw: RequireStudentJWT(auth), query: student, wantStatus: http.StatusOK},
		{name: "missing", mw: RequireStudentJWT(auth), wantStatus: http.StatusUnauthorized, wantCode: response.ErrTokenRequired},
		{name: "garbage", mw: RequireStudentJWT(auth), header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantCode: response.ErrTokenInvalid},
		{name: "expired", mw: RequireStudentJWT(auth), header: "Bearer " + expired, wantStatus: http.StatusUnauthorized, wantCode: response.ErrTokenExpired},
		{name: "admin on student route", mw: RequireStudentJWT(auth), header: "Bearer " + admin, wantStatus: http.StatusForbidden, wantCode: response.ErrStudentAccessOnly},
		{name: "student on admin route", mw: RequireAdminJWT(auth), header: "Bearer " + student, wantStatus: http.StatusForbidden, wantCode: response.ErrAdminAccessOnly},
		{name: "ws query", mw: RequireStudentWSAuth(auth), query: student, wantStatus: http.StatusOK},
		{name: "ws ignores header", mw: RequireStudentWSAuth(auth), header: "Bearer " + student, wantStatus: http.StatusUnauthorized, wantCode: response.ErrTokenRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/x"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			testEngine(tt.mw).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantCode != "" && errorCode(t, w) != tt.wantCode {
				t.Fatalf("expected %s, got %s", tt.wantCode, errorCode(t, w))
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: testSecret})
	reader := sign(t, service.TokenTypeAdmin, 1, time.Hour, string(model.PermissionResultsRead))

	t.Run("granted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+reader)
		w := httptest.NewRecorder()
		testEngine(RequireAdminJWT(auth), RequirePermission(model.PermissionResultsRead)).ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})

	t.Run("any of", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+reader)
		w := httptest.NewRecorder()
		mw := RequireAnyPermission(model.PermissionResultsExport, model.PermissionResultsRead)
		testEngine(RequireAdminJWT(auth), mw).ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})

	t.Run("denied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+reader)
		w := httptest.NewRecorder()
		testEngine(RequireAdminJWT(auth), RequirePermission(model.PermissionAssessmentsPublish)).ServeHTTP(w, req)
		if w.Code != http.StatusForbidden || errorCode(t, w) != response.ErrPermissionDenied {
			t.Fatalf("expected 403 PERMISSION_DENIED, got %d %s", w.Code, errorCode(t, w))
		}
	})

	t.Run("no claims", func(t *testing.T) {
		w := httptest.NewRecorder()
		testEngine(RequirePermission(model.PermissionResultsRead)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})
}
